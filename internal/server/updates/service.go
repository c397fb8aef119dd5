// Package updates implements the durable update-session store: short-lived
// sessions delivering the result of an asynchronous album-diff run to a
// polling device.
//
// The link map of a session is persisted sealed: AES-GCM under a random key
// that only exists inside the signed access token handed to the device. The
// server keeps the ciphertext and the token-signing secret, so neither half
// alone reveals a plaintext resource key.
package updates

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/framekeeper/internal/common"
	"github.com/dmitrijs2005/framekeeper/internal/cryptox"
	"github.com/dmitrijs2005/framekeeper/internal/logging"
	"github.com/dmitrijs2005/framekeeper/internal/server/models"
	"github.com/dmitrijs2005/framekeeper/internal/server/repositories/repomanager"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims binds an access token to one update session and smuggles the
// link-decryption key to the device. The device treats the token as opaque.
type Claims struct {
	jwt.RegisteredClaims
	SessionID string
	LinkKey   []byte
}

// Service is the update-session store.
type Service struct {
	db            *sql.DB
	repos         repomanager.RepositoryManager
	tokenSecret   []byte
	tokenValidity time.Duration
	logger        logging.Logger
	now           func() time.Time
}

// NewService constructs the store. tokenSecret is the derived token-signing
// secret; tokenValidity bounds how long an unconsumed session stays
// claimable.
func NewService(db *sql.DB, repos repomanager.RepositoryManager, tokenSecret []byte,
	tokenValidity time.Duration, logger logging.Logger) *Service {
	return &Service{
		db:            db,
		repos:         repos,
		tokenSecret:   tokenSecret,
		tokenValidity: tokenValidity,
		logger:        logger.With("module", "updates"),
		now:           time.Now,
	}
}

// Create opens a pending session for the device and returns its ID, the
// signed access token and the link key the diff run must seal with. The
// link key is not retained anywhere else.
func (s *Service) Create(ctx context.Context, deviceID string) (string, string, []byte, error) {
	id := uuid.New().String()
	linkKey := cryptox.NewLinkKey()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(s.now().Add(s.tokenValidity)),
		},
		SessionID: id,
		LinkKey:   linkKey,
	})
	accessKey, err := token.SignedString(s.tokenSecret)
	if err != nil {
		return "", "", nil, fmt.Errorf("token signing error: %w", err)
	}

	err = s.repos.UpdateSessions(s.db).Create(ctx, &models.UpdateSession{
		ID:        id,
		DeviceID:  deviceID,
		CreatedAt: s.now(),
	})
	if err != nil {
		return "", "", nil, err
	}

	return id, accessKey, linkKey, nil
}

// SetLinks seals the resource-ID-to-key map under linkKey and stores it.
func (s *Service) SetLinks(ctx context.Context, sessionID string, links map[string]string, linkKey []byte) error {
	sealed, nonce, err := cryptox.SealLinks(links, linkKey)
	if err != nil {
		return fmt.Errorf("sealing links: %w", err)
	}
	return s.repos.UpdateSessions(s.db).SetLinks(ctx, sessionID, sealed, nonce)
}

// MarkReady flags the session as consumable.
func (s *Service) MarkReady(ctx context.Context, sessionID string) error {
	return s.repos.UpdateSessions(s.db).MarkReady(ctx, sessionID)
}

// Expire terminally invalidates the session.
func (s *Service) Expire(ctx context.Context, sessionID string) error {
	return s.repos.UpdateSessions(s.db).Expire(ctx, sessionID)
}

// CheckReadyAndConsume validates the access token and device binding, and if
// the session is ready, claims it (single use), decrypts the sealed links
// and returns them. ready=false with a nil error means "poll again later".
func (s *Service) CheckReadyAndConsume(ctx context.Context, sessionID, deviceID, accessKey string) (map[string]string, bool, error) {
	claims, err := s.parseToken(accessKey)
	if err != nil || claims.SessionID != sessionID {
		return nil, false, common.ErrAuthFailure
	}

	sess, err := s.repos.UpdateSessions(s.db).Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, false, common.ErrAuthFailure
		}
		return nil, false, err
	}
	if sess.DeviceID != deviceID || sess.Expired {
		return nil, false, common.ErrAuthFailure
	}
	if !sess.ReadyForTransfer {
		return nil, false, nil
	}

	claimed, err := s.repos.UpdateSessions(s.db).Consume(ctx, sessionID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			// Lost the race to a concurrent poll.
			return nil, false, common.ErrAuthFailure
		}
		return nil, false, err
	}

	links, err := cryptox.OpenLinks(claimed.SealedLinks, claimed.LinksNonce, claims.LinkKey)
	if err != nil {
		return nil, false, fmt.Errorf("opening sealed links: %w", err)
	}

	// Drop the sealed payload now that it has been handed out.
	if err := s.repos.UpdateSessions(s.db).Expire(ctx, sessionID); err != nil {
		s.logger.Warn(ctx, "failed to scrub consumed session", "session_id", sessionID)
	}

	return links, true, nil
}

// PurgeStale removes expired sessions and sessions older than maxAge.
// Called by the sweeper.
func (s *Service) PurgeStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	return s.repos.UpdateSessions(s.db).DeleteStale(ctx, s.now().Add(-maxAge))
}

func (s *Service) parseToken(accessKey string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(accessKey, claims, func(t *jwt.Token) (interface{}, error) {
		return s.tokenSecret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, common.ErrAuthFailure
	}
	return claims, nil
}
