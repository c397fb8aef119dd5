// Package resources provides the PostgreSQL-backed repository for the
// durable resource registry.
package resources

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

// PostgresRepository implements resource storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new resource record.
func (r *PostgresRepository) Create(ctx context.Context, res *models.Resource) error {
	query := `
		INSERT INTO resources (id, device_id, key_hash, key_created_at, storage_location, source, origin_hash, album_handle, session_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
	`
	_, err := r.db.ExecContext(ctx, query,
		res.ID, res.DeviceID, res.KeyHash, res.KeyCreatedAt, res.StorageLocation,
		string(res.Source), res.OriginHash, res.AlbumHandle, res.SessionCode)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetByIDAndDevice returns the resource with the given id owned by deviceID.
// Returns common.ErrNotFound when no such row exists; the caller decides how
// to surface that (the registry collapses it into an auth failure).
func (r *PostgresRepository) GetByIDAndDevice(ctx context.Context, id string, deviceID string) (*models.Resource, error) {
	query := ` SELECT id, device_id, key_hash, key_created_at, storage_location, source, origin_hash, album_handle, session_code FROM resources
		WHERE id=$1 AND device_id=$2
		`
	res := &models.Resource{}
	var source string
	err := r.db.QueryRowContext(ctx, query, id, deviceID).Scan(
		&res.ID, &res.DeviceID, &res.KeyHash, &res.KeyCreatedAt, &res.StorageLocation,
		&source, &res.OriginHash, &res.AlbumHandle, &res.SessionCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to select resource: %w", err)
	}
	res.Source = models.ResourceSource(source)
	return res, nil
}

// UpdateKey stores a freshly rotated key hash and its creation timestamp.
// Exactly one row must be affected.
func (r *PostgresRepository) UpdateKey(ctx context.Context, id string, keyHash []byte, keyCreatedAt time.Time) error {
	query := `UPDATE resources SET key_hash=$2, key_created_at=$3 WHERE id=$1`
	result, err := r.db.ExecContext(ctx, query, id, keyHash, keyCreatedAt)
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

// Delete removes a resource record. Deleting an absent row is not an error,
// which keeps retries of partially applied diff batches safe.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM resources WHERE id=$1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ListByDeviceAlbum returns all resources a device holds for an album handle.
func (r *PostgresRepository) ListByDeviceAlbum(ctx context.Context, deviceID string, albumHandle string) ([]*models.Resource, error) {
	query := ` SELECT id, device_id, key_hash, key_created_at, storage_location, source, origin_hash, album_handle, session_code FROM resources
		WHERE device_id=$1 AND album_handle=$2
		`
	return r.list(ctx, query, deviceID, albumHandle)
}

// ClearStaleSessionCodes blanks the transient session_code on any resource
// of the device still tagged with a different pairing session. This keeps an
// abandoned pairing attempt from leaking resources into a later one.
func (r *PostgresRepository) ClearStaleSessionCodes(ctx context.Context, deviceID string, currentSessionCode string) error {
	query := `UPDATE resources SET session_code='' WHERE device_id=$1 AND session_code <> '' AND session_code <> $2`
	if _, err := r.db.ExecContext(ctx, query, deviceID, currentSessionCode); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ListKeyCreatedBefore returns resources whose key was last rotated before
// cutoff. Used by the sweeper to find hard-expired records.
func (r *PostgresRepository) ListKeyCreatedBefore(ctx context.Context, cutoff time.Time) ([]*models.Resource, error) {
	query := ` SELECT id, device_id, key_hash, key_created_at, storage_location, source, origin_hash, album_handle, session_code FROM resources
		WHERE key_created_at < $1
		`
	return r.list(ctx, query, cutoff)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.Resource, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select resources: %w", err)
	}
	defer rows.Close()

	var result []*models.Resource
	for rows.Next() {
		var item models.Resource
		var source string
		if err := rows.Scan(
			&item.ID, &item.DeviceID, &item.KeyHash, &item.KeyCreatedAt, &item.StorageLocation,
			&source, &item.OriginHash, &item.AlbumHandle, &item.SessionCode,
		); err != nil {
			return nil, err
		}
		item.Source = models.ResourceSource(source)
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
