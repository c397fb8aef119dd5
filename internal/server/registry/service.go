// Package registry implements the durable resource registry: the catalogue
// of stored images guarded by rotating HMAC-verified credentials.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/framekeeper/internal/common"
	"github.com/dmitrijs2005/framekeeper/internal/cryptox"
	"github.com/dmitrijs2005/framekeeper/internal/logging"
	"github.com/dmitrijs2005/framekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/framekeeper/internal/server/models"
	"github.com/dmitrijs2005/framekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/framekeeper/internal/server/storage"
	"github.com/google/uuid"
)

const (
	// KeyLifetime is the hard expiry window of a resource key. A key older
	// than this is unrecoverable; the resource is deleted on touch or by the
	// sweeper.
	KeyLifetime = 30 * 24 * time.Hour

	// RotationWindow is the tail of the lifetime during which a touch
	// triggers rotation.
	RotationWindow = 7 * 24 * time.Hour
)

// IngestRequest carries everything needed to store one image.
type IngestRequest struct {
	DeviceID      string
	SourceBytes   []byte
	OriginLocator string
	Source        models.ResourceSource
	AlbumHandle   string
	SessionCode   string
	Geometry      models.ScreenGeometry
}

// Service is the resource registry.
type Service struct {
	db        *sql.DB
	repos     repomanager.RepositoryManager
	blobs     storage.BlobStore
	pipeline  ImagePipeline
	logger    logging.Logger
	keySecret []byte
	now       func() time.Time
}

// NewService constructs the registry. keySecret is the derived HMAC secret
// for key hashing, never the raw configured secret.
func NewService(db *sql.DB, repos repomanager.RepositoryManager, blobs storage.BlobStore,
	pipeline ImagePipeline, keySecret []byte, logger logging.Logger) *Service {
	return &Service{
		db:        db,
		repos:     repos,
		blobs:     blobs,
		pipeline:  pipeline,
		logger:    logger.With("module", "registry"),
		keySecret: keySecret,
		now:       time.Now,
	}
}

// Ingest processes and stores one image, returning the new resource ID and
// its plaintext access key. The key is returned exactly once and never
// logged; only its keyed hash is persisted.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (string, string, error) {
	processed, err := s.pipeline.Process(ctx, req.SourceBytes, req.Geometry)
	if err != nil {
		return "", "", fmt.Errorf("image processing error: %w", err)
	}

	id := uuid.New().String()
	plaintextKey := cryptox.NewResourceKey()

	location, err := s.blobs.Put(ctx, id, processed)
	if err != nil {
		return "", "", fmt.Errorf("blob store error: %w", err)
	}

	res := &models.Resource{
		ID:              id,
		DeviceID:        req.DeviceID,
		KeyHash:         cryptox.KeyHash(s.keySecret, plaintextKey),
		KeyCreatedAt:    s.now(),
		StorageLocation: location,
		Source:          req.Source,
		OriginHash:      cryptox.OriginHash(req.OriginLocator),
		AlbumHandle:     req.AlbumHandle,
		SessionCode:     req.SessionCode,
	}

	if err := s.repos.Resources(s.db).Create(ctx, res); err != nil {
		// The record never existed; drop the orphaned blob, best effort.
		if derr := s.blobs.Delete(ctx, location); derr != nil {
			s.logger.Warn(ctx, "orphaned blob after failed ingest", "resource_id", id)
		}
		return "", "", err
	}

	metrics.IngestedTotal.Inc()
	s.logger.Info(ctx, "resource ingested", "resource_id", id, "device_id", req.DeviceID, "source", string(req.Source))

	return id, plaintextKey, nil
}

// getVerified looks up the resource scoped by device and checks the supplied
// key in constant time. Unknown ID, device mismatch and key mismatch all
// collapse to ErrAuthFailure.
func (s *Service) getVerified(ctx context.Context, resourceID, suppliedKey, deviceID string) (*models.Resource, error) {
	res, err := s.repos.Resources(s.db).GetByIDAndDevice(ctx, resourceID, deviceID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			metrics.AuthFailuresTotal.Inc()
			return nil, common.ErrAuthFailure
		}
		return nil, err
	}
	if !cryptox.VerifyKey(s.keySecret, suppliedKey, res.KeyHash) {
		metrics.AuthFailuresTotal.Inc()
		return nil, common.ErrAuthFailure
	}
	return res, nil
}

// Verify authorizes the supplied key and returns the resource record without
// touching the blob. Used where a resource serves as the device's credential
// for a related operation, such as an album-change check.
func (s *Service) Verify(ctx context.Context, resourceID, suppliedKey, deviceID string) (*models.Resource, error) {
	return s.getVerified(ctx, resourceID, suppliedKey, deviceID)
}

// VerifyAndFetch authorizes the supplied key and returns the stored bytes.
// A record whose blob is gone is a data-loss condition: logged loudly and
// surfaced as ErrNotFound so callers can tell it apart from a bad key.
func (s *Service) VerifyAndFetch(ctx context.Context, resourceID, suppliedKey, deviceID string) ([]byte, error) {
	res, err := s.getVerified(ctx, resourceID, suppliedKey, deviceID)
	if err != nil {
		return nil, err
	}

	data, err := s.blobs.Get(ctx, res.StorageLocation)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			s.logger.Error(ctx, "resource record exists but bytes are gone",
				"resource_id", resourceID, "storage_location", res.StorageLocation)
			return nil, common.ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// CheckRotation verifies the key and advances the rotation state machine:
// no-op while the key is fresh, reissue inside the rotation window, delete
// past hard expiry. Rotation is touch-driven; the sweeper catches resources
// the device never revisits.
func (s *Service) CheckRotation(ctx context.Context, resourceID, suppliedKey, deviceID string) (string, error) {
	res, err := s.getVerified(ctx, resourceID, suppliedKey, deviceID)
	if err != nil {
		return "", err
	}

	remaining := res.KeyCreatedAt.Add(KeyLifetime).Sub(s.now())

	if remaining > RotationWindow {
		return "", nil
	}

	if remaining <= 0 {
		// An expired-but-unrotated resource is unrecoverable: the device is
		// forced back through discovery.
		if err := s.deleteResource(ctx, res); err != nil {
			return "", err
		}
		metrics.AuthFailuresTotal.Inc()
		return "", common.ErrAuthFailure
	}

	newKey, err := s.rotate(ctx, res)
	if err != nil {
		return "", err
	}
	metrics.RotationsTotal.WithLabelValues("due").Inc()
	return newKey, nil
}

// ForceRotate reissues a resource's key regardless of age. Used by the sync
// engine so a stale delivered package stops working after an album edit.
func (s *Service) ForceRotate(ctx context.Context, res *models.Resource) (string, error) {
	newKey, err := s.rotate(ctx, res)
	if err != nil {
		return "", err
	}
	metrics.RotationsTotal.WithLabelValues("forced").Inc()
	return newKey, nil
}

func (s *Service) rotate(ctx context.Context, res *models.Resource) (string, error) {
	newKey := cryptox.NewResourceKey()
	newHash := cryptox.KeyHash(s.keySecret, newKey)
	if err := s.repos.Resources(s.db).UpdateKey(ctx, res.ID, newHash, s.now()); err != nil {
		return "", err
	}
	s.logger.Info(ctx, "key rotated", "resource_id", res.ID)
	return newKey, nil
}

// Revoke deletes every candidate whose ownership and key verify; failed
// candidates are echoed back untouched. Idempotent: an already-deleted
// resource simply fails verification and lands in the failed map.
func (s *Service) Revoke(ctx context.Context, deviceID string, candidates map[string]string) map[string]string {
	failed := make(map[string]string)
	for resourceID, suppliedKey := range candidates {
		res, err := s.getVerified(ctx, resourceID, suppliedKey, deviceID)
		if err != nil {
			failed[resourceID] = suppliedKey
			continue
		}
		if err := s.deleteResource(ctx, res); err != nil {
			s.logger.Error(ctx, "revoke delete failed", "resource_id", resourceID)
			failed[resourceID] = suppliedKey
		}
	}
	return failed
}

// ScrubStaleByDevice clears the transient session tag on resources left
// behind by an abandoned pairing attempt of the same device.
func (s *Service) ScrubStaleByDevice(ctx context.Context, deviceID string, currentSessionCode string) error {
	return s.repos.Resources(s.db).ClearStaleSessionCodes(ctx, deviceID, currentSessionCode)
}

// ResourcesFor lists the device's resources for one album handle.
func (s *Service) ResourcesFor(ctx context.Context, deviceID string, albumHandle string) ([]*models.Resource, error) {
	return s.repos.Resources(s.db).ListByDeviceAlbum(ctx, deviceID, albumHandle)
}

// Delete removes a resource record and its blob.
func (s *Service) Delete(ctx context.Context, res *models.Resource) error {
	return s.deleteResource(ctx, res)
}

// PurgeExpired removes every resource whose key passed hard expiry.
// Called by the sweeper; returns the number of resources removed.
func (s *Service) PurgeExpired(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-KeyLifetime)
	expired, err := s.repos.Resources(s.db).ListKeyCreatedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, res := range expired {
		if err := s.deleteResource(ctx, res); err != nil {
			s.logger.Error(ctx, "purge failed", "resource_id", res.ID)
			continue
		}
		purged++
		metrics.SweptResourcesTotal.Inc()
	}
	return purged, nil
}

// deleteResource removes the registry record first, then the blob. Both
// halves are idempotent, so a partially applied delete is safe to retry.
func (s *Service) deleteResource(ctx context.Context, res *models.Resource) error {
	if err := s.repos.Resources(s.db).Delete(ctx, res.ID); err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, res.StorageLocation); err != nil {
		return err
	}
	return nil
}
