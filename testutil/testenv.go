// Package testutil provides shared environment helpers for E2E tests. It
// depends only on stdlib so that E2E tests (which cannot import internal/)
// can use it.
package testutil

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// AllowedServersEnv lists the backends E2E tests may write to.
const AllowedServersEnv = "VAULTBOX_ALLOWED_TEST_SERVERS"

// LoadDotEnv reads KEY=VALUE pairs from a .env file at the given path.
// Missing file is not an error (CI sets env vars directly).
// Existing env vars take precedence over .env values.
func LoadDotEnv(envPath string) {
	f, err := os.Open(envPath)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), "\"'")

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// RequireEnv returns the values of keys, crashing the process when any is
// unset.
func RequireEnv(keys ...string) map[string]string {
	values := make(map[string]string, len(keys))

	var missing []string

	for _, k := range keys {
		v := os.Getenv(k)
		if v == "" {
			missing = append(missing, k)
			continue
		}

		values[k] = v
	}

	if len(missing) > 0 {
		fmt.Fprintf(os.Stderr, "FATAL: required environment not set: %s\n", strings.Join(missing, ", "))
		fmt.Fprintln(os.Stderr, "Set them in .env or run: go run ./cmd/e2e-account --server <url>")
		os.Exit(1)
	}

	return values
}

// ValidateAllowlist crashes the process unless server's host is listed in
// VAULTBOX_ALLOWED_TEST_SERVERS, so E2E runs never touch a production
// backend by accident.
func ValidateAllowlist(server string) {
	allowlist := os.Getenv(AllowedServersEnv)
	if allowlist == "" {
		fmt.Fprintf(os.Stderr, "FATAL: %s not set\n", AllowedServersEnv)
		fmt.Fprintf(os.Stderr, "Example: %s=localhost:8080,staging.vault.example.com\n", AllowedServersEnv)
		os.Exit(1)
	}

	u, err := url.Parse(server)
	if err != nil || u.Host == "" {
		fmt.Fprintf(os.Stderr, "FATAL: invalid test server URL %q\n", server)
		os.Exit(1)
	}

	for _, a := range strings.Split(allowlist, ",") {
		if strings.EqualFold(strings.TrimSpace(a), u.Host) {
			return
		}
	}

	fmt.Fprintf(os.Stderr, "FATAL: %s is not in %s=%q\n", u.Host, AllowedServersEnv, allowlist)
	os.Exit(1)
}

// FindModuleRoot walks up from the current directory to find go.mod.
// Returns the fallback if the root is not found.
func FindModuleRoot(fallback string) string {
	dir, err := os.Getwd()
	if err != nil {
		return fallback
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}

		dir = parent
	}
}

// WriteDotEnv merges values into the .env file at path, keeping unrelated
// lines. The file is written with owner-only permissions.
func WriteDotEnv(path string, values map[string]string) error {
	var lines []string

	if data, err := os.ReadFile(path); err == nil {
		for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
			key, _, _ := strings.Cut(line, "=")
			if _, replaced := values[strings.TrimSpace(key)]; !replaced {
				lines = append(lines, line)
			}
		}
	}

	for k, v := range values {
		lines = append(lines, fmt.Sprintf("%s=%q", k, v))
	}

	return os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600)
}
