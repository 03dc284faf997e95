package credentials

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/bindguard/internal/common"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

const getQuery = `(?s)^SELECT\s+password_file\s+FROM\s+users\s+WHERE\s+username\s*=\s*\$1\s*$`
const setQuery = `(?s)^UPDATE\s+users\s+SET\s+password_file\s*=\s*\$2\s+WHERE\s+username\s*=\s*\$1\s*$`

func TestGet_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"password_file"}).AddRow([]byte("file-bytes"))
	mock.ExpectQuery(getQuery).
		WithArgs("alice").
		WillReturnRows(rows)

	got, err := repo.Get(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.State != StateFound || string(got.File) != "file-bytes" {
		t.Fatalf("unexpected lookup: %+v", got)
	}
}

func TestGet_NoCredential(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"password_file"}).AddRow(nil)
	mock.ExpectQuery(getQuery).
		WithArgs("alice").
		WillReturnRows(rows)

	got, err := repo.Get(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.State != StateNoCredential || got.File != nil {
		t.Fatalf("unexpected lookup: %+v", got)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(getQuery).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	got, err := repo.Get(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.State != StateNotFound {
		t.Fatalf("unexpected lookup: %+v", got)
	}
}

func TestGet_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(getQuery).
		WithArgs("alice").
		WillReturnError(errors.New("db down"))

	_, err := repo.Get(context.Background(), "alice")
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestSet_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(setQuery).
		WithArgs("alice", []byte("new-file")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Set(context.Background(), "alice", []byte("new-file")); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSet_NoSuchUser(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(setQuery).
		WithArgs("ghost", []byte("file")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Set(context.Background(), "ghost", []byte("file")); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestSet_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(setQuery).
		WithArgs("alice", []byte("file")).
		WillReturnError(errors.New("db down"))

	err := repo.Set(context.Background(), "alice", []byte("file"))
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}
