package resources

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/framekeeper/internal/common"
	"github.com/dmitrijs2005/framekeeper/internal/server/models"
)

// MemoryRepository is an in-memory Repository used in tests and local runs.
type MemoryRepository struct {
	mu    sync.RWMutex
	items map[string]*models.Resource
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[string]*models.Resource)}
}

func (r *MemoryRepository) clone(res *models.Resource) *models.Resource {
	cp := *res
	cp.KeyHash = append([]byte(nil), res.KeyHash...)
	return &cp
}

func (r *MemoryRepository) Create(ctx context.Context, res *models.Resource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[res.ID] = r.clone(res)
	return nil
}

func (r *MemoryRepository) GetByIDAndDevice(ctx context.Context, id string, deviceID string) (*models.Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.items[id]
	if !ok || res.DeviceID != deviceID {
		return nil, common.ErrNotFound
	}
	return r.clone(res), nil
}

func (r *MemoryRepository) UpdateKey(ctx context.Context, id string, keyHash []byte, keyCreatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.items[id]
	if !ok {
		return common.ErrNotFound
	}
	res.KeyHash = append([]byte(nil), keyHash...)
	res.KeyCreatedAt = keyCreatedAt
	return nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

func (r *MemoryRepository) ListByDeviceAlbum(ctx context.Context, deviceID string, albumHandle string) ([]*models.Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*models.Resource
	for _, res := range r.items {
		if res.DeviceID == deviceID && res.AlbumHandle == albumHandle {
			result = append(result, r.clone(res))
		}
	}
	return result, nil
}

func (r *MemoryRepository) ClearStaleSessionCodes(ctx context.Context, deviceID string, currentSessionCode string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range r.items {
		if res.DeviceID == deviceID && res.SessionCode != "" && res.SessionCode != currentSessionCode {
			res.SessionCode = ""
		}
	}
	return nil
}

func (r *MemoryRepository) ListKeyCreatedBefore(ctx context.Context, cutoff time.Time) ([]*models.Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*models.Resource
	for _, res := range r.items {
		if res.KeyCreatedAt.Before(cutoff) {
			result = append(result, r.clone(res))
		}
	}
	return result, nil
}
