package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/framekeeper/internal/dbx"
	"github.com/dmitrijs2005/framekeeper/internal/server/migrations"
	"github.com/dmitrijs2005/framekeeper/internal/server/repositories/resources"
	"github.com/dmitrijs2005/framekeeper/internal/server/repositories/updatesessions"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

type PostgresRepositoryManager struct {
}

func NewPostgresRepositoryManager() *PostgresRepositoryManager {
	return &PostgresRepositoryManager{}
}

func (m *PostgresRepositoryManager) Resources(db dbx.DBTX) resources.Repository {
	return resources.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) UpdateSessions(db dbx.DBTX) updatesessions.Repository {
	return updatesessions.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}

	if err := goose.UpContext(ctx, db, "."); err != nil {
		return err
	}

	return nil
}
