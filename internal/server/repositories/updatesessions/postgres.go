// Package updatesessions provides the PostgreSQL-backed repository for
// asynchronous album-update sessions.
package updatesessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/framekeeper/internal/common"
	"github.com/dmitrijs2005/framekeeper/internal/dbx"
	"github.com/dmitrijs2005/framekeeper/internal/server/models"
)

// PostgresRepository implements update-session storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new update session.
func (r *PostgresRepository) Create(ctx context.Context, s *models.UpdateSession) error {
	query := `
		INSERT INTO update_sessions (id, device_id, ready, expired, created_at, sealed_links, links_nonce)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`
	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.DeviceID, s.ReadyForTransfer, s.Expired, s.CreatedAt, s.SealedLinks, s.LinksNonce)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Get returns the session with the given id, or common.ErrNotFound.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.UpdateSession, error) {
	query := ` SELECT id, device_id, ready, expired, created_at, sealed_links, links_nonce FROM update_sessions
		WHERE id=$1
		`
	s := &models.UpdateSession{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.DeviceID, &s.ReadyForTransfer, &s.Expired, &s.CreatedAt, &s.SealedLinks, &s.LinksNonce)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to select update session: %w", err)
	}
	return s, nil
}

// SetLinks stores the sealed link map produced by a diff run.
func (r *PostgresRepository) SetLinks(ctx context.Context, id string, sealedLinks []byte, linksNonce []byte) error {
	query := `UPDATE update_sessions SET sealed_links=$2, links_nonce=$3 WHERE id=$1`
	return r.execOne(ctx, query, id, sealedLinks, linksNonce)
}

// Consume claims the session in a single statement so two concurrent polls
// cannot both succeed. The sealed payload columns are untouched by the
// claim, so RETURNING yields the values needed to decrypt; Expire clears
// them afterwards.
func (r *PostgresRepository) Consume(ctx context.Context, id string) (*models.UpdateSession, error) {
	query := `
		UPDATE update_sessions SET expired=true
		WHERE id=$1 AND expired=false
		RETURNING id, device_id, ready, created_at, sealed_links, links_nonce;
	`
	s := &models.UpdateSession{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.DeviceID, &s.ReadyForTransfer, &s.CreatedAt, &s.SealedLinks, &s.LinksNonce)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to consume update session: %w", err)
	}
	return s, nil
}

// MarkReady flags the session as ready for the device to consume.
func (r *PostgresRepository) MarkReady(ctx context.Context, id string) error {
	query := `UPDATE update_sessions SET ready=true WHERE id=$1`
	return r.execOne(ctx, query, id)
}

// Expire terminally invalidates the session and drops its sealed payload.
func (r *PostgresRepository) Expire(ctx context.Context, id string) error {
	query := `UPDATE update_sessions SET expired=true, sealed_links=NULL, links_nonce=NULL WHERE id=$1`
	return r.execOne(ctx, query, id)
}

// DeleteStale removes sessions already expired or created before the cutoff.
// Returns the number of rows removed.
func (r *PostgresRepository) DeleteStale(ctx context.Context, createdBefore time.Time) (int64, error) {
	query := `DELETE FROM update_sessions WHERE expired=true OR created_at < $1`
	result, err := r.db.ExecContext(ctx, query, createdBefore)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return common.ErrNotFound
	}
	return nil
}
