package repomanager

import (
	"context"
	"database/sql"

	"github.com/mapster/mapster/internal/dbx"
	"github.com/mapster/mapster/internal/server/repositories/itineraries"
	"github.com/mapster/mapster/internal/server/repositories/refreshtokens"
	"github.com/mapster/mapster/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so services can run
// them on the pool or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Itineraries(db dbx.DBTX) itineraries.Repository
}
