// Package pairing implements the ephemeral pairing-session store: a TTL
// cache of LinkSession records indexed by session ID and by pairing code.
//
// Sessions never touch durable storage. The TTL cache bounds both lifetime
// (10 minutes from creation or last write by default) and the pairing-code
// namespace: evicted sessions free their codes for reuse.
package pairing

import (
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/framekeeper/internal/common"
	"github.com/dmitrijs2005/framekeeper/internal/server/models"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// maxCodeAttempts bounds retry-on-collision during code issuance. With a
// 33^7 namespace and a capacity-bounded live set, hitting this limit means
// the cache capacity is badly undersized.
const maxCodeAttempts = 20

// StatusState is the device-visible state of a pairing session.
type StatusState int

const (
	// StatusExpired covers missing sessions, binding mismatches and
	// terminally expired sessions alike, so polling leaks nothing.
	StatusExpired StatusState = iota
	StatusReady
	StatusInProgress
)

// Status is the result of a poll: the state plus, while in progress, the
// number of resources ingested so far.
type Status struct {
	State         StatusState
	IngestedCount int
}

// session wraps the record with a mutex serializing per-session mutation.
// Concurrent image ingestion for one session funnels through this lock, so
// read-modify-write of the resource package cannot lose entries.
type session struct {
	mu   sync.Mutex
	data models.LinkSession
}

// Store is the in-memory pairing-session store.
type Store struct {
	mu       sync.Mutex // guards code check-and-reserve during Create
	sessions *expirable.LRU[string, *session]
	codes    *expirable.LRU[string, string]
}

// NewStore builds a store with the given capacity and TTL. Capacity bounds
// the live-code namespace; TTL evicts abandoned sessions.
func NewStore(capacity int, ttl time.Duration) *Store {
	return &Store{
		sessions: expirable.NewLRU[string, *session](capacity, nil, ttl),
		codes:    expirable.NewLRU[string, string](capacity, nil, ttl),
	}
}

// Create issues a new session for the device with a unique pairing code.
// Collisions against live codes are retried internally.
func (s *Store) Create(deviceID string, screenWidth, screenHeight int) (sessionID string, pairingCode string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	code := ""
	for i := 0; i < maxCodeAttempts; i++ {
		candidate, err := newPairingCode()
		if err != nil {
			return "", "", err
		}
		if _, live := s.codes.Get(candidate); !live {
			code = candidate
			break
		}
	}
	if code == "" {
		return "", "", fmt.Errorf("issuing pairing code: %w", common.ErrCollision)
	}

	id := uuid.New().String()
	sess := &session{data: models.LinkSession{
		ID:              id,
		DeviceID:        deviceID,
		PairingCode:     code,
		ScreenWidth:     screenWidth,
		ScreenHeight:    screenHeight,
		ResourcePackage: make(map[string]string),
	}}

	s.sessions.Add(id, sess)
	s.codes.Add(code, id)

	return id, code, nil
}

// get returns the live session or nil.
func (s *Store) get(sessionID string) *session {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil
	}
	return sess
}

// touch refreshes the session TTL after a write.
func (s *Store) touch(sessionID string, sess *session) {
	s.sessions.Add(sessionID, sess)
}

// Snapshot returns a copy of the session record, for orchestration code that
// needs the device binding, geometry and pending links without holding the
// session lock.
func (s *Store) Snapshot(sessionID string) (models.LinkSession, error) {
	sess := s.get(sessionID)
	if sess == nil {
		return models.LinkSession{}, common.ErrExpired
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.data.Expired {
		return models.LinkSession{}, common.ErrExpired
	}

	cp := sess.data
	cp.PendingSourceLinks = append([]string(nil), sess.data.PendingSourceLinks...)
	cp.ResourcePackage = make(map[string]string, len(sess.data.ResourcePackage))
	for k, v := range sess.data.ResourcePackage {
		cp.ResourcePackage[k] = v
	}
	return cp, nil
}

// AttachSourceLinks replaces the queued source locators for the session.
func (s *Store) AttachSourceLinks(sessionID string, locators []string) error {
	sess := s.get(sessionID)
	if sess == nil {
		return common.ErrExpired
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.data.Expired {
		return common.ErrExpired
	}
	sess.data.PendingSourceLinks = append([]string(nil), locators...)
	s.touch(sessionID, sess)
	return nil
}

// RecordIngestedResource appends one ingested resource and its plaintext key
// to the session's resource package. Safe under concurrent ingestion.
func (s *Store) RecordIngestedResource(sessionID string, resourceID string, plaintextKey string) error {
	sess := s.get(sessionID)
	if sess == nil {
		return common.ErrExpired
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.data.Expired {
		return common.ErrExpired
	}
	sess.data.ResourcePackage[resourceID] = plaintextKey
	s.touch(sessionID, sess)
	return nil
}

// MarkReady flags the session's package as complete.
func (s *Store) MarkReady(sessionID string) error {
	sess := s.get(sessionID)
	if sess == nil {
		return common.ErrExpired
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.data.Expired {
		return common.ErrExpired
	}
	sess.data.ReadyForTransfer = true
	sess.data.PendingSourceLinks = nil
	s.touch(sessionID, sess)
	return nil
}

// PollStatus re-validates the device and code binding on every call; any
// mismatch reads as expired.
func (s *Store) PollStatus(sessionID string, deviceID string, pairingCode string) Status {
	sess := s.get(sessionID)
	if sess == nil {
		return Status{State: StatusExpired}
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.data.Expired || sess.data.DeviceID != deviceID || sess.data.PairingCode != pairingCode {
		return Status{State: StatusExpired}
	}
	if sess.data.ReadyForTransfer {
		return Status{State: StatusReady}
	}
	return Status{State: StatusInProgress, IngestedCount: len(sess.data.ResourcePackage)}
}

// DeliverPackage hands the plaintext resource package to the device. This is
// the only point where plaintext keys leave the process; the caller must
// Expire the session immediately afterwards.
func (s *Store) DeliverPackage(sessionID string, deviceID string, pairingCode string) (map[string]string, error) {
	sess := s.get(sessionID)
	if sess == nil {
		return nil, common.ErrAuthFailure
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.data.Expired || sess.data.DeviceID != deviceID || sess.data.PairingCode != pairingCode {
		return nil, common.ErrAuthFailure
	}

	pkg := make(map[string]string, len(sess.data.ResourcePackage))
	for k, v := range sess.data.ResourcePackage {
		pkg[k] = v
	}
	return pkg, nil
}

// Expire terminally invalidates the session and unlinks its pairing code.
func (s *Store) Expire(sessionID string) {
	sess := s.get(sessionID)
	if sess == nil {
		return
	}
	sess.mu.Lock()
	sess.data.Expired = true
	code := sess.data.PairingCode
	sess.mu.Unlock()

	s.codes.Remove(code)
	s.sessions.Remove(sessionID)
}
