package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/bindguard/internal/dbx"
	"github.com/dmitrijs2005/bindguard/internal/server/repositories/credentials"
	"github.com/dmitrijs2005/bindguard/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/bindguard/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Credentials(db dbx.DBTX) credentials.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
}
