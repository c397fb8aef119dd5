// Package linking orchestrates browser-side ingestion into a pairing
// session: attaching source links, ingesting image bytes into the registry,
// recording the issued keys into the session package and delivering it.
package linking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/framekeeper/internal/logging"
	"github.com/dmitrijs2005/framekeeper/internal/server/models"
	"github.com/dmitrijs2005/framekeeper/internal/server/pairing"
	"github.com/dmitrijs2005/framekeeper/internal/server/registry"
	"github.com/dmitrijs2005/framekeeper/internal/server/syncer"
)

// fetchWorkers bounds concurrent downloads of pending source links.
const fetchWorkers = 4

// Service drives the ingestion side of a pairing session.
type Service struct {
	sessions *pairing.Store
	registry *registry.Service
	fetcher  syncer.ItemFetcher
	logger   logging.Logger

	fetchTimeout time.Duration
}

func NewService(sessions *pairing.Store, reg *registry.Service, fetcher syncer.ItemFetcher,
	fetchTimeout time.Duration, logger logging.Logger) *Service {
	return &Service{
		sessions:     sessions,
		registry:     reg,
		fetcher:      fetcher,
		logger:       logger.With("module", "linking"),
		fetchTimeout: fetchTimeout,
	}
}

// AttachSourceLinks queues the browser-selected source locators on the
// session for a later IngestPending run.
func (s *Service) AttachSourceLinks(ctx context.Context, sessionID string, locators []string) error {
	return s.sessions.AttachSourceLinks(sessionID, locators)
}

// IngestUpload stores one directly uploaded image into the session. The
// session stays open for further uploads until Complete is called.
func (s *Service) IngestUpload(ctx context.Context, sessionID string, name string, data []byte) (string, error) {
	sess, err := s.sessions.Snapshot(sessionID)
	if err != nil {
		return "", err
	}

	id, err := s.ingestOne(ctx, sess, data, name, models.SourceUpload, "")
	if err != nil {
		return "", err
	}
	return id, nil
}

// IngestPending downloads and ingests every queued source link, recording
// the issued keys into the session package, then marks the session ready.
// Downloads run concurrently on a bounded worker set; the session's
// per-entry locking keeps concurrent package writes safe. source
// distinguishes picker selections from scraped albums; albumHandle tags
// album resources for later reconciliation.
func (s *Service) IngestPending(ctx context.Context, sessionID string, source models.ResourceSource, albumHandle string) error {
	sess, err := s.sessions.Snapshot(sessionID)
	if err != nil {
		return err
	}

	// Resources tagged by an abandoned earlier attempt of this device must
	// not leak into this session's package.
	if err := s.registry.ScrubStaleByDevice(ctx, sess.DeviceID, sess.PairingCode); err != nil {
		return err
	}

	var (
		wg   sync.WaitGroup
		sem  = make(chan struct{}, fetchWorkers)
		errs = make(chan error, len(sess.PendingSourceLinks))
	)
	for _, locator := range sess.PendingSourceLinks {
		wg.Add(1)
		sem <- struct{}{}
		go func(locator string) {
			defer wg.Done()
			defer func() { <-sem }()

			fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
			data, err := s.fetcher.Fetch(fetchCtx, locator)
			cancel()
			if err != nil {
				errs <- fmt.Errorf("fetching %q: %w", locator, err)
				return
			}
			if _, err := s.ingestOne(ctx, sess, data, locator, source, albumHandle); err != nil {
				errs <- err
			}
		}(locator)
	}
	wg.Wait()
	close(errs)

	// A partial package is still deliverable; failed items are logged and
	// dropped rather than failing the whole session.
	failed := 0
	for err := range errs {
		failed++
		s.logger.Error(ctx, "pending link ingestion failed", "session_id", sessionID, "error", err.Error())
	}
	if failed == len(sess.PendingSourceLinks) && failed > 0 {
		return fmt.Errorf("all %d pending links failed", failed)
	}

	return s.sessions.MarkReady(sessionID)
}

// Complete marks an upload-driven session ready for transfer.
func (s *Service) Complete(ctx context.Context, sessionID string) error {
	return s.sessions.MarkReady(sessionID)
}

// Deliver hands the plaintext resource package to the device and terminally
// expires the session. The transient session tags on the delivered resources
// are scrubbed so they cannot leak into a later pairing attempt.
func (s *Service) Deliver(ctx context.Context, sessionID, deviceID, pairingCode string) (map[string]string, error) {
	pkg, err := s.sessions.DeliverPackage(sessionID, deviceID, pairingCode)
	if err != nil {
		return nil, err
	}
	s.sessions.Expire(sessionID)

	if err := s.registry.ScrubStaleByDevice(ctx, deviceID, ""); err != nil {
		s.logger.Warn(ctx, "scrubbing session tags after delivery failed", "device_id", deviceID)
	}

	s.logger.Info(ctx, "package delivered", "session_id", sessionID, "device_id", deviceID, "resources", len(pkg))
	return pkg, nil
}

func (s *Service) ingestOne(ctx context.Context, sess models.LinkSession, data []byte,
	locator string, source models.ResourceSource, albumHandle string) (string, error) {
	id, key, err := s.registry.Ingest(ctx, registry.IngestRequest{
		DeviceID:      sess.DeviceID,
		SourceBytes:   data,
		OriginLocator: locator,
		Source:        source,
		AlbumHandle:   albumHandle,
		SessionCode:   sess.PairingCode,
		Geometry:      models.ScreenGeometry{Width: sess.ScreenWidth, Height: sess.ScreenHeight},
	})
	if err != nil {
		return "", err
	}
	if err := s.sessions.RecordIngestedResource(sess.ID, id, key); err != nil {
		// The session vanished mid-ingestion, so the key just issued can
		// never reach the device. Drop the useless resource.
		s.registry.Revoke(ctx, sess.DeviceID, map[string]string{id: key})
		return "", err
	}
	return id, nil
}
