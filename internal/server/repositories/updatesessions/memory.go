package updatesessions

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/framekeeper/internal/common"
	"github.com/dmitrijs2005/framekeeper/internal/server/models"
)

// MemoryRepository is an in-memory Repository used in tests and local runs.
type MemoryRepository struct {
	mu    sync.Mutex
	items map[string]*models.UpdateSession
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[string]*models.UpdateSession)}
}

func clone(s *models.UpdateSession) *models.UpdateSession {
	cp := *s
	cp.SealedLinks = append([]byte(nil), s.SealedLinks...)
	cp.LinksNonce = append([]byte(nil), s.LinksNonce...)
	return &cp
}

func (r *MemoryRepository) Create(ctx context.Context, s *models.UpdateSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[s.ID] = clone(s)
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (*models.UpdateSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.items[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return clone(s), nil
}

func (r *MemoryRepository) SetLinks(ctx context.Context, id string, sealedLinks []byte, linksNonce []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.items[id]
	if !ok {
		return common.ErrNotFound
	}
	s.SealedLinks = append([]byte(nil), sealedLinks...)
	s.LinksNonce = append([]byte(nil), linksNonce...)
	return nil
}

func (r *MemoryRepository) MarkReady(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.items[id]
	if !ok {
		return common.ErrNotFound
	}
	s.ReadyForTransfer = true
	return nil
}

func (r *MemoryRepository) Consume(ctx context.Context, id string) (*models.UpdateSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.items[id]
	if !ok || s.Expired {
		return nil, common.ErrNotFound
	}
	claimed := clone(s)
	s.Expired = true
	return claimed, nil
}

func (r *MemoryRepository) Expire(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.items[id]
	if !ok {
		return common.ErrNotFound
	}
	s.Expired = true
	s.SealedLinks = nil
	s.LinksNonce = nil
	return nil
}

func (r *MemoryRepository) DeleteStale(ctx context.Context, createdBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.items {
		if s.Expired || s.CreatedAt.Before(createdBefore) {
			delete(r.items, id)
			n++
		}
	}
	return n, nil
}
