// Package app initializes and runs the NexCal client. It opens the local
// cache database, warm-starts the in-memory store from it, connects the
// object storage writer and the Nexus fetcher, and runs the reconciler until
// shutdown.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"

	"github.com/nexcal/nexcal/internal/config"
	"github.com/nexcal/nexcal/internal/identity"
	"github.com/nexcal/nexcal/internal/ledger"
	"github.com/nexcal/nexcal/internal/logging"
	"github.com/nexcal/nexcal/internal/nexus"
	"github.com/nexcal/nexcal/internal/persist"
	"github.com/nexcal/nexcal/internal/reconcile"
	"github.com/nexcal/nexcal/internal/storage"
	"github.com/nexcal/nexcal/internal/store"
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	store      *store.Store
	reconciler *reconcile.Reconciler
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slogger)

	who, err := actingIdentity(cfg)
	if err != nil {
		return nil, err
	}

	db, err := persist.InitDatabase(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	repo := persist.NewSQLiteRepository(db)
	clk := clock.New()
	st := store.New(clk, logger, store.WithSaver(repo))
	l := ledger.New(clk, logger)

	writer, err := storage.NewS3Writer(ctx, storage.Config{
		Region:       cfg.StorageRegion,
		Bucket:       cfg.StorageBucket,
		BaseEndpoint: cfg.StorageEndpoint,
		AccessKey:    cfg.StorageAccessKey,
		SecretKey:    cfg.StorageSecretKey,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	fetcher := nexus.NewHTTPClient(cfg.NexusBaseURL, cfg.FetchTimeout, logger)
	r := reconcile.New(st, l, fetcher, writer, who, clk, logger)

	app := &App{config: cfg, logger: logger, db: db, store: st, reconciler: r}
	if err := app.warmStart(ctx, repo); err != nil {
		db.Close()
		return nil, fmt.Errorf("warm start error: %w", err)
	}
	return app, nil
}

// actingIdentity prefers the token's subject over the configured user id.
func actingIdentity(cfg *config.Config) (identity.Provider, error) {
	if cfg.AuthToken != "" {
		return identity.NewTokenProvider(cfg.AuthToken)
	}
	if cfg.UserID == "" {
		return nil, fmt.Errorf("no user id or auth token configured")
	}
	return identity.Static{ID: cfg.UserID}, nil
}

// warmStart reloads the persisted cache into the store. Entries that were
// still unsynced when the previous process exited go back on the sync
// schedule; their pending-write records did not survive the restart, so they
// converge as soon as the indexer reaches their persisted sequence.
func (app *App) warmStart(ctx context.Context, repo *persist.SQLiteRepository) error {
	if err := persist.ResetSyncState(ctx, app.db); err != nil {
		return err
	}

	snaps, err := repo.LoadAll(ctx)
	if err != nil {
		return err
	}

	for _, snap := range snaps {
		app.store.Seed(snap)
		if snap.Status() != store.StatusSynced {
			app.reconciler.Reschedule(snap.Resource.Key)
		}
	}

	if len(snaps) > 0 {
		app.logger.Info(ctx, "cache restored", "resources", len(snaps))
	}
	return nil
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

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	app.reconciler.Start(ctx)

	<-ctx.Done()

	app.reconciler.Stop()
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
}
