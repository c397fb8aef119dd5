// Package syncer implements the external-album synchronization engine: it
// re-resolves a previously linked album, diffs it against the registry's
// origin index and repopulates an update session the device polls.
//
// Resolution and partitioning run synchronously on the triggering request
// and never mutate anything; the mutation phase runs on a background worker
// fed through a channel the engine owns. The triggering request therefore
// returns immediately with a session handle, and no delete can interleave
// with an in-flight fetch of the new set.
package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/framekeeper/internal/common"
	"github.com/dmitrijs2005/framekeeper/internal/cryptox"
	"github.com/dmitrijs2005/framekeeper/internal/logging"
	"github.com/dmitrijs2005/framekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/framekeeper/internal/server/models"
	"github.com/dmitrijs2005/framekeeper/internal/server/registry"
	"github.com/dmitrijs2005/framekeeper/internal/server/updates"
	"github.com/sethvargo/go-retry"
)

// Handle is what the triggering request hands back to the device: the
// update-session ID and the access key for its single consume poll.
type Handle struct {
	UpdateSessionID string
	AccessKey       string
}

// job is one queued mutation phase of a diff run.
type job struct {
	deviceID    string
	albumHandle string
	geometry    models.ScreenGeometry

	// sessionID/linkKey are empty for pure-removal (album deleted) jobs.
	sessionID string
	linkKey   []byte

	remove []*models.Resource
	keep   []*models.Resource
	add    []string
}

// Engine orchestrates album reconciliation.
type Engine struct {
	registry *registry.Service
	updates  *updates.Service
	source   AlbumSource
	fetcher  ItemFetcher
	logger   logging.Logger

	maxAlbumItems int
	sourceTimeout time.Duration

	jobs chan job
}

// NewEngine constructs the engine. maxAlbumItems bounds accepted album
// sizes; sourceTimeout bounds each external call.
func NewEngine(reg *registry.Service, upd *updates.Service, source AlbumSource, fetcher ItemFetcher,
	maxAlbumItems int, sourceTimeout time.Duration, logger logging.Logger) *Engine {
	return &Engine{
		registry:      reg,
		updates:       upd,
		source:        source,
		fetcher:       fetcher,
		logger:        logger.With("module", "syncer"),
		maxAlbumItems: maxAlbumItems,
		sourceTimeout: sourceTimeout,
		jobs:          make(chan job, 64),
	}
}

// Run processes queued diff jobs until ctx is cancelled. Intended to be
// started once as a background goroutine.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-e.jobs:
			e.process(ctx, j)
		}
	}
}

// resolve lists the album's current items with bounded timeout and retry.
func (e *Engine) resolve(ctx context.Context, albumHandle string) ([]string, error) {
	var locators []string

	backoff := retry.WithMaxRetries(2, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		listCtx, cancel := context.WithTimeout(ctx, e.sourceTimeout)
		defer cancel()

		items, err := e.source.ListCurrentItems(listCtx, albumHandle)
		if err != nil {
			return retry.RetryableError(err)
		}
		locators = items
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrSourceUnavailable, err)
	}
	return locators, nil
}

// Reconcile re-resolves the album and partitions it against the registry.
// It returns nil when the album is unchanged (or deleted), or the handle of
// a freshly created update session whose population has been dispatched to
// the worker. No irreversible mutation happens before the new set is fully
// resolved.
func (e *Engine) Reconcile(ctx context.Context, deviceID, albumHandle string, geometry models.ScreenGeometry) (*Handle, error) {
	locators, err := e.resolve(ctx, albumHandle)
	if err != nil {
		metrics.ReconcileRunsTotal.WithLabelValues("source_unavailable").Inc()
		return nil, err
	}

	if len(locators) > e.maxAlbumItems {
		metrics.ReconcileRunsTotal.WithLabelValues("overflow").Inc()
		return nil, common.ErrOverflow
	}

	existing, err := e.registry.ResourcesFor(ctx, deviceID, albumHandle)
	if err != nil {
		return nil, err
	}

	if len(locators) == 0 {
		// Album deleted upstream: drop everything we hold for it.
		metrics.ReconcileRunsTotal.WithLabelValues("album_deleted").Inc()
		if len(existing) > 0 {
			e.enqueue(ctx, job{deviceID: deviceID, albumHandle: albumHandle, remove: existing})
		}
		return nil, nil
	}

	newOrigins := make(map[string]string, len(locators)) // origin hash -> locator
	for _, l := range locators {
		newOrigins[cryptox.OriginHash(l)] = l
	}

	var remove, keep []*models.Resource
	for _, res := range existing {
		if _, ok := newOrigins[res.OriginHash]; ok {
			keep = append(keep, res)
			delete(newOrigins, res.OriginHash)
		} else {
			remove = append(remove, res)
		}
	}
	add := make([]string, 0, len(newOrigins))
	for _, locator := range newOrigins {
		add = append(add, locator)
	}

	if len(remove) == 0 && len(add) == 0 {
		// Identical sets: no mutation, no needless rotation.
		metrics.ReconcileRunsTotal.WithLabelValues("no_change").Inc()
		return nil, nil
	}

	sessionID, accessKey, linkKey, err := e.updates.Create(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	e.enqueue(ctx, job{
		deviceID:    deviceID,
		albumHandle: albumHandle,
		geometry:    geometry,
		sessionID:   sessionID,
		linkKey:     linkKey,
		remove:      remove,
		keep:        keep,
		add:         add,
	})

	metrics.ReconcileRunsTotal.WithLabelValues("changed").Inc()
	return &Handle{UpdateSessionID: sessionID, AccessKey: accessKey}, nil
}

func (e *Engine) enqueue(ctx context.Context, j job) {
	select {
	case e.jobs <- j:
	case <-ctx.Done():
	}
}

// process applies one diff batch. Each sub-operation is independently safe
// to retry (idempotent delete, fresh-ID ingest, harmless re-rotation), so a
// failure mid-batch leaves the session unready and the whole run can be
// repeated end to end.
func (e *Engine) process(ctx context.Context, j job) {
	for _, res := range j.remove {
		if err := e.registry.Delete(ctx, res); err != nil {
			e.logger.Error(ctx, "diff removal failed", "resource_id", res.ID, "error", err.Error())
			return
		}
	}

	// Pure removal: nothing to deliver.
	if j.sessionID == "" {
		e.logger.Info(ctx, "album removed", "device_id", j.deviceID, "album", j.albumHandle)
		return
	}

	links := make(map[string]string, len(j.keep)+len(j.add))

	// Surviving resources get fresh keys even if not yet due, so a stale
	// package from an earlier delivery stops working after the edit.
	for _, res := range j.keep {
		newKey, err := e.registry.ForceRotate(ctx, res)
		if err != nil {
			e.logger.Error(ctx, "diff rotation failed", "resource_id", res.ID, "error", err.Error())
			return
		}
		links[res.ID] = newKey
	}

	for _, locator := range j.add {
		fetchCtx, cancel := context.WithTimeout(ctx, e.sourceTimeout)
		data, err := e.fetcher.Fetch(fetchCtx, locator)
		cancel()
		if err != nil {
			e.logger.Error(ctx, "diff item fetch failed", "device_id", j.deviceID, "error", err.Error())
			return
		}

		id, key, err := e.registry.Ingest(ctx, registry.IngestRequest{
			DeviceID:      j.deviceID,
			SourceBytes:   data,
			OriginLocator: locator,
			Source:        models.SourceScrapedAlbum,
			AlbumHandle:   j.albumHandle,
			Geometry:      j.geometry,
		})
		if err != nil {
			e.logger.Error(ctx, "diff ingest failed", "device_id", j.deviceID, "error", err.Error())
			return
		}
		links[id] = key
	}

	if err := e.updates.SetLinks(ctx, j.sessionID, links, j.linkKey); err != nil {
		e.logger.Error(ctx, "storing diff links failed", "session_id", j.sessionID, "error", err.Error())
		return
	}
	if err := e.updates.MarkReady(ctx, j.sessionID); err != nil {
		e.logger.Error(ctx, "marking diff session ready failed", "session_id", j.sessionID, "error", err.Error())
		return
	}

	e.logger.Info(ctx, "album reconciled", "device_id", j.deviceID, "album", j.albumHandle,
		"removed", len(j.remove), "rotated", len(j.keep), "added", len(j.add))
}
