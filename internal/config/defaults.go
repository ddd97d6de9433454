package config

// Default values for configuration options: the first layer of the
// override chain.
const (
	defaultServerURL        = "http://localhost:8080"
	defaultFrontendURL      = "http://localhost:3000"
	defaultParallelUploads  = 4
	defaultMaxFileSize      = "0"
	defaultShareExpiryHours = 24
	defaultLogLevel         = "info"
	defaultLogFormat        = "auto"
	defaultConnectTimeout   = "10s"
	defaultRequestTimeout   = "60s"
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding, so unset fields keep their defaults.
func DefaultConfig() *Config {
	return &Config{
		ServerURL:   defaultServerURL,
		FrontendURL: defaultFrontendURL,
		Upload: UploadConfig{
			ParallelUploads: defaultParallelUploads,
			MaxFileSize:     defaultMaxFileSize,
		},
		Share: ShareConfig{
			DefaultExpiryHours: defaultShareExpiryHours,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		Network: NetworkConfig{
			ConnectTimeout: defaultConnectTimeout,
			RequestTimeout: defaultRequestTimeout,
		},
	}
}
