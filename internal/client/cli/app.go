package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"

	"github.com/dmitrijs2005/contentup/internal/client/api"
	"github.com/dmitrijs2005/contentup/internal/client/config"
	"github.com/dmitrijs2005/contentup/internal/client/db"
	"github.com/dmitrijs2005/contentup/internal/client/repositories/uploads"
	"github.com/dmitrijs2005/contentup/internal/client/services"
	"github.com/dmitrijs2005/contentup/internal/logging"
	"github.com/dmitrijs2005/contentup/internal/upload"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// uploader is the part of services.UploadService the commands use.
type uploader interface {
	Prepare(ctx context.Context, path string) (*upload.Record, error)
	Upload(ctx context.Context, path string, progress services.ProgressFunc) (*services.Result, error)
	Resume(ctx context.Context, id string, progress services.ProgressFunc) (*services.Result, error)
	Status(ctx context.Context, id string) (*upload.Record, error)
	List(ctx context.Context) ([]*upload.Record, error)
}

type App struct {
	config   *config.Config
	uploads  uploader
	watcher  *services.OnlineWatcher
	logger   logging.Logger
	out      io.Writer
	closers  []io.Closer
	mu       sync.Mutex
	mode     Mode
	terminal bool
}

// NewApp opens the local journal and wires the upload service, the REST
// client and the health watcher.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := logging.NewTextLogger(os.Stderr, level)

	conn, err := db.InitDatabase(ctx, c.DatabaseDSN)
	if err != nil {
		logger.Error(ctx, "error initializing database", "error", err)
		return nil, err
	}

	health, err := services.NewGRPCHealthClient(c.HealthEndpointAddr)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	client := api.New(c.ServerURL, c.APIPrefix, c.RequestTimeout)
	svc := services.NewUploadService(client, uploads.NewSQLiteRepository(conn), c, logger)

	return &App{
		config:   c,
		uploads:  svc,
		watcher:  services.NewOnlineWatcher(health, c.OnlineCheckInterval, logger),
		logger:   logger,
		out:      os.Stdout,
		closers:  []io.Closer{health, conn},
		terminal: isTerminal(int(os.Stdout.Fd())),
	}, nil
}

func (a *App) setMode(mode Mode) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.mode != mode {
		a.mode = mode
		a.logger.Info(context.Background(), "switched mode", "mode", mode)
	}
}

func (a *App) getStatus() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.mode == "" {
		return ""
	}
	return fmt.Sprintf("(%s) ", a.mode)
}

// Run starts the online watcher and the REPL on stdin and blocks until the
// user exits.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.watcher.Watch(ctx, func(online bool) {
			if online {
				a.setMode(ModeOnline)
			} else {
				a.setMode(ModeOffline)
			}
		})
	}()

	printlnFn("Welcome to contentup CLI (type 'help' for commands)")
	runREPL(ctx, a, a.getStatus, bufio.NewScanner(os.Stdin))

	cancel()
	wg.Wait()

	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Warn(ctx, "close failed", "error", err)
		}
	}
}

// interruptible derives a context that an interrupt signal cancels, so that
// Ctrl-C stops the running command and returns to the prompt.
func interruptible(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt)
}
