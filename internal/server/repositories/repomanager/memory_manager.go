package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/framekeeper/internal/dbx"
	"github.com/dmitrijs2005/framekeeper/internal/server/repositories/resources"
	"github.com/dmitrijs2005/framekeeper/internal/server/repositories/updatesessions"
)

// InMemoryRepositoryManager hands out shared in-memory repositories,
// ignoring the DBTX. Used in tests and DSN-less local runs.
type InMemoryRepositoryManager struct {
	resources      *resources.MemoryRepository
	updateSessions *updatesessions.MemoryRepository
}

func NewInMemoryRepositoryManager() *InMemoryRepositoryManager {
	return &InMemoryRepositoryManager{
		resources:      resources.NewMemoryRepository(),
		updateSessions: updatesessions.NewMemoryRepository(),
	}
}

func (m *InMemoryRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	return nil
}

func (m *InMemoryRepositoryManager) Resources(db dbx.DBTX) resources.Repository {
	return m.resources
}

func (m *InMemoryRepositoryManager) UpdateSessions(db dbx.DBTX) updatesessions.Repository {
	return m.updateSessions
}
