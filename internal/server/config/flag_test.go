package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{
			name: "all flags",
			args: []string{"cmd",
				"-a", ":9090", "-g", ":9091", "-d", "db", "-x", "/api/v2",
				"-m", "1024", "-t", "30", "-j", "10",
				"-u", "user", "-p", "password", "-b", "bucket", "-r", "us-west-1", "-e", "http://endpoint",
				"-n", "2048",
			},
			expected: &Config{
				EndpointAddrHTTP:   ":9090",
				EndpointAddrGRPC:   ":9091",
				DatabaseDSN:        "db",
				APIPrefix:          "/api/v2",
				MaxChunkSize:       1024,
				SessionTTL:         30 * time.Minute,
				JanitorInterval:    10 * time.Second,
				S3RootUser:         "user",
				S3RootPassword:     "password",
				S3Bucket:           "bucket",
				S3Region:           "us-west-1",
				S3BaseEndpoint:     "http://endpoint",
				MultipartThreshold: 2048,
			},
		},
		{
			name: "foreign flags are ignored",
			args: []string{"cmd", "-config", "cfg.json", "-a", ":1"},
			expected: &Config{
				EndpointAddrHTTP: ":1",
			},
		},
		{
			name:        "malformed number panics",
			args:        []string{"cmd", "-m", "lots"},
			expectPanic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args
			config := &Config{}

			if tt.expectPanic {
				require.Panics(t, func() { parseFlags(config) })
				return
			}
			require.NotPanics(t, func() { parseFlags(config) })
			assert.Empty(t, cmp.Diff(tt.expected, config))
		})
	}
}
