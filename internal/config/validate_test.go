package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Defaults(t *testing.T) {
	require.NoError(t, Validate(DefaultConfig()))
}

func TestValidate_Fields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"server scheme", func(c *Config) { c.ServerURL = "localhost:8080" }, "server_url"},
		{"server host", func(c *Config) { c.ServerURL = "http://" }, "server_url"},
		{"frontend", func(c *Config) { c.FrontendURL = "::bad" }, "frontend_url"},
		{"workers low", func(c *Config) { c.Upload.ParallelUploads = 0 }, "parallel_uploads"},
		{"workers high", func(c *Config) { c.Upload.ParallelUploads = 17 }, "parallel_uploads"},
		{"max size", func(c *Config) { c.Upload.MaxFileSize = "lots" }, "max_file_size"},
		{"expiry", func(c *Config) { c.Share.DefaultExpiryHours = 0 }, "default_expiry_hours"},
		{"log level", func(c *Config) { c.Logging.LogLevel = "trace" }, "log_level"},
		{"log format", func(c *Config) { c.Logging.LogFormat = "xml" }, "log_format"},
		{"connect timeout", func(c *Config) { c.Network.ConnectTimeout = "500ms" }, "connect_timeout"},
		{"request timeout", func(c *Config) { c.Network.RequestTimeout = "soon" }, "request_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"", 0},
		{"0", 0},
		{"512", 512},
		{"1KB", kilobyte},
		{"1KiB", kibibyte},
		{"1.5GB", 1500 * megabyte},
		{"10 MiB", 10 * mebibyte},
		{"2tb", 2 * terabyte},
	}

	for _, tt := range tests {
		got, err := ParseSize(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseSize_Invalid(t *testing.T) {
	for _, in := range []string{"abc", "-1", "-5MB", "1XB"} {
		_, err := ParseSize(in)
		assert.Error(t, err, in)
	}
}
