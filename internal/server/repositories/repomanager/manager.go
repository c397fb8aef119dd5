package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/framekeeper/internal/dbx"
	"github.com/dmitrijs2005/framekeeper/internal/server/repositories/resources"
	"github.com/dmitrijs2005/framekeeper/internal/server/repositories/updatesessions"
)

// RepositoryManager hands out repositories bound to a DBTX, so services can
// run several repository calls inside one transaction via dbx.WithTx.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Resources(db dbx.DBTX) resources.Repository
	UpdateSessions(db dbx.DBTX) updatesessions.Repository
}
