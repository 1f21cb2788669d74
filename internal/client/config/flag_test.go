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
			args: []string{"cmd", "-a", "http://up:8080", "-x", "/api", "-g", "up:50051",
				"-k", "1024", "-s", "512", "-w", "8", "-r", "2", "-b", "250", "-t", "5",
				"-d", "file:test.db", "-i", "10", "-l", "debug"},
			expected: &Config{
				ServerURL:           "http://up:8080",
				APIPrefix:           "/api",
				HealthEndpointAddr:  "up:50051",
				ChunkSize:           1024,
				SliceSize:           512,
				Workers:             8,
				MaxRetries:          2,
				RetryBaseDelay:      250 * time.Millisecond,
				RequestTimeout:      5 * time.Second,
				DatabaseDSN:         "file:test.db",
				OnlineCheckInterval: 10 * time.Second,
				LogLevel:            "debug",
			},
		},
		{name: "incorrect check interval", args: []string{"cmd", "-a", "http://up:8080", "-i", "abc"}, expectPanic: true},
		{name: "incorrect chunk size", args: []string{"cmd", "-k", "big"}, expectPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args

			config := &Config{}

			if !tt.expectPanic {
				require.NotPanics(t, func() { parseFlags(config) })
				assert.Empty(t, cmp.Diff(tt.expected, config))
			} else {
				require.Panics(t, func() { parseFlags(config) })
			}
		})
	}
}
