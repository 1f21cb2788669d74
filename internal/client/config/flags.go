package config

import (
	"flag"
	"time"

	"github.com/dmitrijs2005/contentup/internal/flagx"
)

// parseFlags populates Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   REST API base URL
//	-x string   REST API prefix
//	-g string   gRPC health endpoint address
//	-k int      chunk size, bytes
//	-s int      checksum slice size, bytes
//	-w int      concurrent chunk uploads
//	-r int      attempts per chunk
//	-b int      retry base delay, milliseconds
//	-t int      request timeout, seconds
//	-d string   SQLite DSN
//	-i int      online check interval, seconds
//	-l string   log level
//
// Only the flags above are taken from os.Args (see flagx.ParseOwn), so other
// components may define their own. A parse error panics.
func parseFlags(cfg *Config) {
	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "REST API base URL")
	fs.StringVar(&cfg.APIPrefix, "x", cfg.APIPrefix, "REST API prefix")
	fs.StringVar(&cfg.HealthEndpointAddr, "g", cfg.HealthEndpointAddr, "gRPC health endpoint address")
	fs.Int64Var(&cfg.ChunkSize, "k", cfg.ChunkSize, "chunk size (in bytes)")
	fs.Int64Var(&cfg.SliceSize, "s", cfg.SliceSize, "checksum slice size (in bytes)")
	fs.IntVar(&cfg.Workers, "w", cfg.Workers, "concurrent chunk uploads")
	fs.IntVar(&cfg.MaxRetries, "r", cfg.MaxRetries, "attempts per chunk")
	retryBase := fs.Int("b", int(cfg.RetryBaseDelay.Milliseconds()), "retry base delay (in milliseconds)")
	timeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "SQLite DSN")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level: debug, info, warn, error")

	if err := flagx.ParseOwn(fs); err != nil {
		panic(err)
	}

	cfg.RetryBaseDelay = time.Duration(*retryBase) * time.Millisecond
	cfg.RequestTimeout = time.Duration(*timeout) * time.Second
	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
}
