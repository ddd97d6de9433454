package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig    = "VAULTBOX_CONFIG"
	EnvServerURL = "VAULTBOX_SERVER_URL"
	EnvDataDir   = "VAULTBOX_DATA_DIR"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // VAULTBOX_CONFIG: override config file path
	ServerURL  string // VAULTBOX_SERVER_URL: backend root URL
	DataDir    string // VAULTBOX_DATA_DIR: session and ledger directory
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; Resolve applies the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		ServerURL:  os.Getenv(EnvServerURL),
		DataDir:    os.Getenv(EnvDataDir),
	}
}
