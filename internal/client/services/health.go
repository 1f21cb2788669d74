package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/contentup/internal/client/config"
	"github.com/dmitrijs2005/contentup/internal/common"
	"github.com/dmitrijs2005/contentup/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthChecker reports whether the upload service is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// GRPCHealthClient asks the gRPC health endpoint of the upload service.
type GRPCHealthClient struct {
	conn   *grpc.ClientConn
	client healthpb.HealthClient
}

// NewGRPCHealthClient prepares a client for addr. No connection is made until
// the first Ping.
func NewGRPCHealthClient(addr string) (*GRPCHealthClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("health client: %w", err)
	}
	return &GRPCHealthClient{conn: conn, client: healthpb.NewHealthClient(conn)}, nil
}

func (c *GRPCHealthClient) Ping(ctx context.Context) error {
	resp, err := c.client.Check(ctx, &healthpb.HealthCheckRequest{Service: common.HealthServiceName})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("upload service is %s", resp.GetStatus())
	}
	return nil
}

func (c *GRPCHealthClient) Close() error {
	return c.conn.Close()
}

// OnlineWatcher probes a HealthChecker periodically and tracks whether the
// service is online.
type OnlineWatcher struct {
	checker  HealthChecker
	interval time.Duration
	timeout  time.Duration
	logger   logging.Logger
}

// NewOnlineWatcher probes checker every interval. A non-positive interval
// means config.DefaultOnlineCheckInterval.
func NewOnlineWatcher(checker HealthChecker, interval time.Duration, logger logging.Logger) *OnlineWatcher {
	if interval <= 0 {
		interval = config.DefaultOnlineCheckInterval
	}
	return &OnlineWatcher{
		checker:  checker,
		interval: interval,
		timeout:  interval,
		logger:   logger.With("module", "online"),
	}
}

// Check probes once.
func (w *OnlineWatcher) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	if err := w.checker.Ping(ctx); err != nil {
		w.logger.Debug(ctx, "health check failed", "error", err)
		return false
	}
	return true
}

// Watch probes immediately and then every interval until ctx is done.
// onChange is called with the first result and on every transition.
func (w *OnlineWatcher) Watch(ctx context.Context, onChange func(online bool)) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	online := w.Check(ctx)
	onChange(online)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if now := w.Check(ctx); now != online {
				online = now
				if ctx.Err() == nil {
					onChange(online)
				}
			}
		}
	}
}
