package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal errors with "did you mean?"
// suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values, so the CLI works without a
// config file.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolved is a fully layered configuration, the file it came from, and
// the directory holding the session and upload ledger.
type Resolved struct {
	*Config
	Path    string `json:"config_path"`
	DataDir string `json:"data_dir"`
}

// SessionPath returns the login session file.
func (r *Resolved) SessionPath() string {
	return inDir(r.DataDir, sessionFileName)
}

// LedgerPath returns the upload ledger database.
func (r *Resolved) LedgerPath() string {
	return inDir(r.DataDir, ledgerFileName)
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	// Config path: CLI > env > default.
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	if env.ServerURL != "" {
		cfg.ServerURL = env.ServerURL
	}

	if cli.ServerURL != nil {
		cfg.ServerURL = *cli.ServerURL
	}

	if cli.Encrypt != nil {
		cfg.Upload.Encrypt = *cli.Encrypt
	}

	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")
	cfg.FrontendURL = strings.TrimRight(cfg.FrontendURL, "/")

	// Overrides can break URL constraints the file passed.
	if err := errors.Join(validateURL("server_url", cfg.ServerURL)...); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	dataDir := DefaultDataDir()
	if env.DataDir != "" {
		dataDir = env.DataDir
	}

	return &Resolved{Config: cfg, Path: cfgPath, DataDir: dataDir}, nil
}
