package config

import (
	"time"

	"github.com/dmitrijs2005/contentup/internal/common"
	"github.com/dmitrijs2005/contentup/internal/upload"
)

// Config holds runtime settings for the contentup CLI.
//
// Fields:
//   - ServerURL: scheme://host:port of the upload REST API.
//   - APIPrefix: path prefix the REST API is mounted under.
//   - HealthEndpointAddr: host:port of the gRPC health endpoint.
//   - ChunkSize: upload chunk size in bytes.
//   - SliceSize: read size used while computing checksums, in bytes.
//   - Workers: number of chunks uploaded concurrently.
//   - MaxRetries: attempts per chunk before the upload is marked failed.
//   - RetryBaseDelay: first backoff delay; later delays grow exponentially.
//   - RequestTimeout: timeout of a single HTTP request.
//   - DatabaseDSN: SQLite DSN of the local upload journal. Empty means
//     ".contentup/uploads.db" under the working directory.
//   - OnlineCheckInterval: how often the client probes server reachability.
//   - LogLevel: debug, info, warn or error.
type Config struct {
	ServerURL           string
	APIPrefix           string
	HealthEndpointAddr  string
	ChunkSize           int64
	SliceSize           int64
	Workers             int
	MaxRetries          int
	RetryBaseDelay      time.Duration
	RequestTimeout      time.Duration
	DatabaseDSN         string
	OnlineCheckInterval time.Duration
	LogLevel            string
}

// DefaultOnlineCheckInterval is used when no positive interval is configured.
const DefaultOnlineCheckInterval = 3 * time.Second

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.APIPrefix = common.DefaultAPIPrefix
	c.HealthEndpointAddr = "127.0.0.1:50051"
	c.ChunkSize = 6 * 1024 * 1024
	c.SliceSize = upload.DefaultSliceSize
	c.Workers = 4
	c.MaxRetries = 5
	c.RetryBaseDelay = 500 * time.Millisecond
	c.RequestTimeout = 60 * time.Second
	c.DatabaseDSN = ""
	c.OnlineCheckInterval = DefaultOnlineCheckInterval
	c.LogLevel = "info"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	cfg.fixIntervals()
	return cfg
}

func (c *Config) fixIntervals() {
	if c.OnlineCheckInterval <= 0 {
		c.OnlineCheckInterval = DefaultOnlineCheckInterval
	}
}
