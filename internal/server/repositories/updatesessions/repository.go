package updatesessions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/framekeeper/internal/server/models"
)

// Repository is the persistence contract of the durable update-session store.
type Repository interface {
	Create(ctx context.Context, s *models.UpdateSession) error
	Get(ctx context.Context, id string) (*models.UpdateSession, error)
	SetLinks(ctx context.Context, id string, sealedLinks []byte, linksNonce []byte) error
	MarkReady(ctx context.Context, id string) error
	// Consume atomically claims a not-yet-expired session, marking it
	// expired and returning its pre-claim state. A second Consume of the
	// same id returns ErrNotFound.
	Consume(ctx context.Context, id string) (*models.UpdateSession, error)
	Expire(ctx context.Context, id string) error
	DeleteStale(ctx context.Context, createdBefore time.Time) (int64, error)
}
