// Package server wires the upload service together: PostgreSQL, object
// storage, the REST API, the gRPC health endpoint and the expired-upload
// janitor, with graceful shutdown on SIGINT/SIGTERM.
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

	"github.com/dmitrijs2005/contentup/internal/logging"
	"github.com/dmitrijs2005/contentup/internal/server/config"
	"github.com/dmitrijs2005/contentup/internal/server/handlers"
	"github.com/dmitrijs2005/contentup/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/contentup/internal/server/services"
	"github.com/dmitrijs2005/contentup/internal/server/storage"
	"github.com/sethvargo/go-retry"

	gs "github.com/dmitrijs2005/contentup/internal/server/grpc"
)

const (
	connectAttempts = 5
	shutdownTimeout = 10 * time.Second
)

var connectBaseDelay = 500 * time.Millisecond

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	uploads *services.UploadService
}

// openPostgres is a seam for connecting to the database.
var openPostgres = repomanager.OpenPostgres

// connect opens the database, retrying while it is still starting up.
func connect(ctx context.Context, dsn string, logger logging.Logger) (*sql.DB, error) {
	var db *sql.DB

	b := retry.WithMaxRetries(connectAttempts-1, retry.NewExponential(connectBaseDelay))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		var err error
		db, err = openPostgres(ctx, dsn)
		if err != nil {
			logger.Warn(ctx, "database not ready", "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})

	return db, err
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := connect(ctx, c.DatabaseDSN, logger)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	store, err := storage.NewS3Store(ctx, c)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	us := services.NewUploadService(db, rm, store, c, logger)

	return &App{config: c, logger: logger, db: db, uploads: us}, nil
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

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.db)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	srv := &http.Server{
		Addr:              app.config.EndpointAddrHTTP,
		Handler:           handlers.NewRouter(app.uploads, app.config.APIPrefix, app.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			app.logger.Error(ctx, "HTTP shutdown error", "error", err)
		}
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", srv.Addr, "prefix", app.config.APIPrefix)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// runJanitor purges expired uploads every JanitorInterval until ctx ends.
func (app *App) runJanitor(ctx context.Context) {
	ticker := time.NewTicker(app.config.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := app.uploads.PurgeExpired(ctx, now); err != nil {
				app.logger.Error(ctx, "purge failed", "error", err)
			}
		}
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.runJanitor(ctx)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
