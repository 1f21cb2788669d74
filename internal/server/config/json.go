package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/contentup/internal/flagx"
	"github.com/dmitrijs2005/contentup/internal/timex"
)

// JsonConfig is the on-disk shape of the server configuration. Durations use
// timex.Duration so they may be written as "15m" or as nanoseconds.
type JsonConfig struct {
	EndpointAddrHTTP   string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC   string         `json:"endpoint_addr_grpc"`
	DatabaseDSN        string         `json:"database_dsn"`
	APIPrefix          string         `json:"api_prefix"`
	MaxChunkSize       int64          `json:"max_chunk_size"`
	SessionTTL         timex.Duration `json:"session_ttl"`
	JanitorInterval    timex.Duration `json:"janitor_interval"`
	S3RootUser         string         `json:"s3_root_user"`
	S3RootPassword     string         `json:"s3_root_password"`
	S3Bucket           string         `json:"s3_bucket"`
	S3Region           string         `json:"s3_region"`
	S3BaseEndpoint     string         `json:"s3_base_endpoint"`
	MultipartThreshold int64          `json:"multipart_threshold"`
}

// parseJson overlays config with the JSON file named by -c/-config, if any.
// A missing or malformed file panics. Keys absent from the file leave the
// current value untouched.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{
		EndpointAddrHTTP:   config.EndpointAddrHTTP,
		EndpointAddrGRPC:   config.EndpointAddrGRPC,
		DatabaseDSN:        config.DatabaseDSN,
		APIPrefix:          config.APIPrefix,
		MaxChunkSize:       config.MaxChunkSize,
		SessionTTL:         timex.Duration{Duration: config.SessionTTL},
		JanitorInterval:    timex.Duration{Duration: config.JanitorInterval},
		S3RootUser:         config.S3RootUser,
		S3RootPassword:     config.S3RootPassword,
		S3Bucket:           config.S3Bucket,
		S3Region:           config.S3Region,
		S3BaseEndpoint:     config.S3BaseEndpoint,
		MultipartThreshold: config.MultipartThreshold,
	}

	if err := json.Unmarshal(data, c); err != nil {
		panic(err)
	}

	config.EndpointAddrHTTP = c.EndpointAddrHTTP
	config.EndpointAddrGRPC = c.EndpointAddrGRPC
	config.DatabaseDSN = c.DatabaseDSN
	config.APIPrefix = c.APIPrefix
	config.MaxChunkSize = c.MaxChunkSize
	config.SessionTTL = c.SessionTTL.Duration
	config.JanitorInterval = c.JanitorInterval.Duration
	config.S3RootUser = c.S3RootUser
	config.S3RootPassword = c.S3RootPassword
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
	config.MultipartThreshold = c.MultipartThreshold
}
