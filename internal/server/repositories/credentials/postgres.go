package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/bindguard/internal/common"
	"github.com/dmitrijs2005/bindguard/internal/dbx"
)

// PostgresRepository implements Repository over dbx.DBTX (satisfied by
// *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Get fetches the password file for username. A missing row yields
// StateNotFound, a null column StateNoCredential.
func (r *PostgresRepository) Get(ctx context.Context, username string) (Lookup, error) {
	query :=
		`SELECT password_file FROM users
		 WHERE username = $1
		 `

	var file []byte
	err := r.db.QueryRowContext(ctx, query, username).Scan(&file)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Lookup{State: StateNotFound}, nil
		}
		return Lookup{}, fmt.Errorf("db error: %w", err)
	}

	if file == nil {
		return Lookup{State: StateNoCredential}, nil
	}
	return Lookup{State: StateFound, File: file}, nil
}

// Set replaces the password file for username in one UPDATE statement.
func (r *PostgresRepository) Set(ctx context.Context, username string, file []byte) error {
	query :=
		`UPDATE users SET password_file = $2
		 WHERE username = $1
		 `

	res, err := r.db.ExecContext(ctx, query, username, file)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return common.ErrorNotFound
	}
	return nil
}
