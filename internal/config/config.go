// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for vaultbox. Values are layered
// defaults -> config file -> environment -> CLI flags.
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	ServerURL   string        `toml:"server_url" json:"server_url"`
	FrontendURL string        `toml:"frontend_url" json:"frontend_url"`
	Upload      UploadConfig  `toml:"upload" json:"upload"`
	Share       ShareConfig   `toml:"share" json:"share"`
	Logging     LoggingConfig `toml:"logging" json:"logging"`
	Network     NetworkConfig `toml:"network" json:"network"`
}

// UploadConfig controls how local files are sent to the backend.
type UploadConfig struct {
	Encrypt         bool   `toml:"encrypt" json:"encrypt"`
	ParallelUploads int    `toml:"parallel_uploads" json:"parallel_uploads"`
	MaxFileSize     string `toml:"max_file_size" json:"max_file_size"`
}

// ShareConfig holds defaults for new share links.
type ShareConfig struct {
	DefaultExpiryHours int `toml:"default_expiry_hours" json:"default_expiry_hours"`
}

// LoggingConfig controls log output: level and format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level" json:"log_level"`
	LogFormat string `toml:"log_format" json:"log_format"`
}

// NetworkConfig controls HTTP client behavior.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout" json:"connect_timeout"`
	RequestTimeout string `toml:"request_timeout" json:"request_timeout"`
	UserAgent      string `toml:"user_agent" json:"user_agent"`
}

// ConnectTimeoutDuration returns the parsed connect timeout. Validate has
// already rejected malformed values, so parse errors fall back to the default.
func (n *NetworkConfig) ConnectTimeoutDuration() time.Duration {
	return durationOr(n.ConnectTimeout, defaultConnectTimeout)
}

// RequestTimeoutDuration returns the parsed per-request timeout.
func (n *NetworkConfig) RequestTimeoutDuration() time.Duration {
	return durationOr(n.RequestTimeout, defaultRequestTimeout)
}

// MaxFileSizeBytes returns the upload size limit in bytes; 0 means unlimited.
func (u *UploadConfig) MaxFileSizeBytes() int64 {
	n, err := ParseSize(u.MaxFileSize)
	if err != nil {
		return 0
	}

	return n
}

func durationOr(s, fallback string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}

	d, _ := time.ParseDuration(fallback) //nolint:errcheck // constant is valid

	return d
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to zero value".
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	ServerURL  *string // --server flag
	Encrypt    *bool   // put --encrypt
}
