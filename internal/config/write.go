package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// configFilePermissions is the standard permission mode for config files.
const configFilePermissions = 0o644

// configDirPermissions is the standard permission mode for config directories.
const configDirPermissions = 0o755

// configTemplate is the config file written on first login. Every option is
// present as a commented-out default so users can discover them.
const configTemplate = `# vaultbox configuration

server_url = %q
# frontend_url = "http://localhost:3000"

[upload]
# encrypt = false
# parallel_uploads = 4
# max_file_size = "0"

[share]
# default_expiry_hours = 24

[logging]
# log_level = "info"
# log_format = "auto"

[network]
# connect_timeout = "10s"
# request_timeout = "60s"
# user_agent = ""
`

// CreateDefault writes a new config file from the template with the given
// server URL. The write is atomic and parent directories are created.
func CreateDefault(path, serverURL string) error {
	slog.Info("creating config file", slog.String("path", path))

	return atomicWriteFile(path, []byte(fmt.Sprintf(configTemplate, serverURL)))
}

// SetTopLevelKey sets a key outside any [section] of an existing config file,
// replacing its line when present and inserting it before the first section
// otherwise. Comments and the rest of the file are preserved.
func SetTopLevelKey(path, key, value string) error {
	slog.Info("setting config key",
		slog.String("path", path),
		slog.String("key", key),
	)

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	newLine := fmt.Sprintf("%s = %s", key, formatTOMLValue(value))

	end := len(lines)

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") {
			end = i

			break
		}

		if isKeyLine(trimmed, key) {
			lines[i] = newLine

			return atomicWriteFile(path, []byte(strings.Join(lines, "\n")))
		}
	}

	// Keep the blank line that usually separates globals from the first
	// section.
	insertAt := end
	for insertAt > 0 && strings.TrimSpace(lines[insertAt-1]) == "" {
		insertAt--
	}

	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:insertAt]...)
	out = append(out, newLine)
	out = append(out, lines[insertAt:]...)

	return atomicWriteFile(path, []byte(strings.Join(out, "\n")))
}

func isKeyLine(trimmed, key string) bool {
	rest, ok := strings.CutPrefix(trimmed, key)
	if !ok {
		return false
	}

	return strings.HasPrefix(strings.TrimSpace(rest), "=")
}

// formatTOMLValue formats a value for TOML output. Booleans and integers are
// written bare; all other values are quoted strings.
func formatTOMLValue(value string) string {
	if value == "true" || value == "false" {
		return value
	}

	if _, err := strconv.ParseInt(value, 10, 64); err == nil {
		return value
	}

	return fmt.Sprintf("%q", value)
}

// atomicWriteFile writes data to a temporary file in the same directory as
// path, then renames it over the target, so a crash never leaves a partial
// config file. Parent directories are created as needed.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirPermissions); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tempPath := f.Name()

	succeeded := false
	defer func() {
		if !succeeded {
			os.Remove(tempPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()

		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Chmod(tempPath, configFilePermissions); err != nil {
		return fmt.Errorf("setting file permissions: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	succeeded = true

	return nil
}
