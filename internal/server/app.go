// Package server initializes and runs the broker: it wires the stores,
// services and background workers, handles graceful shutdown and starts the
// HTTP server.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/framekeeper/internal/cryptox"
	"github.com/dmitrijs2005/framekeeper/internal/logging"
	"github.com/dmitrijs2005/framekeeper/internal/server/config"
	"github.com/dmitrijs2005/framekeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/framekeeper/internal/server/linking"
	"github.com/dmitrijs2005/framekeeper/internal/server/pairing"
	"github.com/dmitrijs2005/framekeeper/internal/server/registry"
	"github.com/dmitrijs2005/framekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/framekeeper/internal/server/storage"
	"github.com/dmitrijs2005/framekeeper/internal/server/sweeper"
	"github.com/dmitrijs2005/framekeeper/internal/server/syncer"
	"github.com/dmitrijs2005/framekeeper/internal/server/updates"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	api    *httpapi.Server
	engine *syncer.Engine
	swp    *sweeper.Sweeper
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	var (
		db    *sql.DB
		repos repomanager.RepositoryManager
		err   error
	)
	if cfg.DatabaseDSN != "" {
		db, err = sql.Open("pgx", cfg.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		repos = repomanager.NewPostgresRepositoryManager()
		if err := repos.RunMigrations(ctx, db); err != nil {
			return nil, fmt.Errorf("migration error: %w", err)
		}
	} else {
		logger.Warn(ctx, "no database DSN configured, using in-memory stores")
		repos = repomanager.NewInMemoryRepositoryManager()
	}

	var blobs storage.BlobStore
	if cfg.S3Bucket != "" {
		blobs, err = storage.NewS3BlobStore(ctx, storage.S3Config{
			RootUser:     cfg.S3RootUser,
			RootPassword: cfg.S3RootPassword,
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("blob store init error: %w", err)
		}
	} else {
		logger.Warn(ctx, "no S3 bucket configured, using in-memory blob store")
		blobs = storage.NewMemoryBlobStore()
	}

	reg := registry.NewService(db, repos, blobs, registry.PassthroughPipeline{},
		cryptox.DeriveSecret(cfg.SecretKey, "keyhash"), logger)
	upd := updates.NewService(db, repos,
		cryptox.DeriveSecret(cfg.SecretKey, "token"), cfg.UpdateTokenValidity, logger)
	sessions := pairing.NewStore(cfg.PairSessionCapacity, cfg.PairSessionTTL)

	source := syncer.NewHTTPAlbumSource(cfg.AlbumSourceBaseURL, cfg.SourceTimeout)
	fetcher := syncer.NewHTTPFetcher(cfg.SourceTimeout)
	engine := syncer.NewEngine(reg, upd, source, fetcher, cfg.MaxAlbumItems, cfg.SourceTimeout, logger)

	link := linking.NewService(sessions, reg, fetcher, cfg.SourceTimeout, logger)
	swp := sweeper.New(reg, upd, cfg.SweepInterval, cfg.UpdateSessionMaxAge, logger)
	api := httpapi.NewServer(sessions, link, reg, upd, engine, logger)

	return &App{config: cfg, logger: logger, db: db, api: api, engine: engine, swp: swp}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	srv := &http.Server{
		Addr:    app.config.EndpointAddrHTTP,
		Handler: app.api.Router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, err.Error())
		}
	}()

	app.logger.Info(ctx, "http server listening", "addr", app.config.EndpointAddrHTTP)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.engine.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.swp.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error(ctx, err.Error())
		}
	}
}
