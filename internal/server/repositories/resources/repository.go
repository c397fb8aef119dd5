package resources

import (
	"context"
	"time"

	"github.com/dmitrijs2005/framekeeper/internal/server/models"
)

// Repository is the persistence contract of the resource registry.
type Repository interface {
	Create(ctx context.Context, r *models.Resource) error
	GetByIDAndDevice(ctx context.Context, id string, deviceID string) (*models.Resource, error)
	UpdateKey(ctx context.Context, id string, keyHash []byte, keyCreatedAt time.Time) error
	Delete(ctx context.Context, id string) error
	ListByDeviceAlbum(ctx context.Context, deviceID string, albumHandle string) ([]*models.Resource, error)
	ClearStaleSessionCodes(ctx context.Context, deviceID string, currentSessionCode string) error
	ListKeyCreatedBefore(ctx context.Context, cutoff time.Time) ([]*models.Resource, error)
}
