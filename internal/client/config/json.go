package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/contentup/internal/flagx"
	"github.com/dmitrijs2005/contentup/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
// It relies on timex.Duration so JSON can specify intervals either as
// strings like "3s" or as integer nanoseconds.
type JsonConfig struct {
	ServerURL           string         `json:"server_url"`
	APIPrefix           string         `json:"api_prefix"`
	HealthEndpointAddr  string         `json:"health_endpoint_addr"`
	ChunkSize           int64          `json:"chunk_size"`
	SliceSize           int64          `json:"slice_size"`
	Workers             int            `json:"workers"`
	MaxRetries          int            `json:"max_retries"`
	RetryBaseDelay      timex.Duration `json:"retry_base_delay"`
	RequestTimeout      timex.Duration `json:"request_timeout"`
	DatabaseDSN         string         `json:"database_dsn"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	LogLevel            string         `json:"log_level"`
}

// parseJson overlays cfg with values loaded from the JSON file named by -c
// or -config. Keys missing from the file keep their current value. Read and
// unmarshal errors panic.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	jc := JsonConfig{
		ServerURL:           cfg.ServerURL,
		APIPrefix:           cfg.APIPrefix,
		HealthEndpointAddr:  cfg.HealthEndpointAddr,
		ChunkSize:           cfg.ChunkSize,
		SliceSize:           cfg.SliceSize,
		Workers:             cfg.Workers,
		MaxRetries:          cfg.MaxRetries,
		RetryBaseDelay:      timex.Duration{Duration: cfg.RetryBaseDelay},
		RequestTimeout:      timex.Duration{Duration: cfg.RequestTimeout},
		DatabaseDSN:         cfg.DatabaseDSN,
		OnlineCheckInterval: timex.Duration{Duration: cfg.OnlineCheckInterval},
		LogLevel:            cfg.LogLevel,
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	cfg.ServerURL = jc.ServerURL
	cfg.APIPrefix = jc.APIPrefix
	cfg.HealthEndpointAddr = jc.HealthEndpointAddr
	cfg.ChunkSize = jc.ChunkSize
	cfg.SliceSize = jc.SliceSize
	cfg.Workers = jc.Workers
	cfg.MaxRetries = jc.MaxRetries
	cfg.RetryBaseDelay = jc.RetryBaseDelay.Duration
	cfg.RequestTimeout = jc.RequestTimeout.Duration
	cfg.DatabaseDSN = jc.DatabaseDSN
	cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	cfg.LogLevel = jc.LogLevel
}
