//go:build e2e

package e2e

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/vaultbox/vaultbox-go/testutil"
)

// Environment read by the E2E suite. cmd/e2e-account writes all three to
// .env for a fresh throwaway account.
const (
	envServer   = "VAULTBOX_E2E_SERVER"
	envEmail    = "VAULTBOX_E2E_EMAIL"
	envPassword = "VAULTBOX_E2E_PASSWORD"
)

var (
	binaryPath string
	serverURL  string
	email      string
	password   string

	// isolatedRoot holds the data dir and config used by every CLI
	// invocation, so the suite never reads a real session.
	isolatedRoot string
)

func setup() func() {
	root := testutil.FindModuleRoot("..")
	testutil.LoadDotEnv(filepath.Join(root, ".env"))

	env := testutil.RequireEnv(envServer, envEmail, envPassword)
	serverURL = strings.TrimRight(env[envServer], "/")
	email = env[envEmail]
	password = env[envPassword]

	testutil.ValidateAllowlist(serverURL)

	tmp, err := os.MkdirTemp("", "vaultbox-e2e-*")
	if err != nil {
		fatalf("creating temp dir: %v", err)
	}

	binaryPath = filepath.Join(tmp, "vaultbox")

	build := exec.Command("go", "build", "-o", binaryPath, ".")
	build.Dir = root
	build.Stdout = os.Stdout
	build.Stderr = os.Stderr

	if err := build.Run(); err != nil {
		os.RemoveAll(tmp)
		fatalf("building binary: %v", err)
	}

	isolatedRoot = filepath.Join(tmp, "home")
	if err := os.MkdirAll(isolatedRoot, 0o700); err != nil {
		os.RemoveAll(tmp)
		fatalf("creating isolated root: %v", err)
	}

	// Child processes inherit these; nothing under the real HOME is touched.
	os.Setenv("VAULTBOX_DATA_DIR", filepath.Join(isolatedRoot, "data"))
	os.Setenv("VAULTBOX_CONFIG", filepath.Join(isolatedRoot, "config.toml"))
	os.Setenv("VAULTBOX_SERVER_URL", serverURL)

	if err := login(); err != nil {
		os.RemoveAll(tmp)
		fatalf("logging in as %s: %v", email, err)
	}

	return func() { os.RemoveAll(tmp) }
}

func login() error {
	cmd := exec.Command(binaryPath, "login", "--email", email)
	cmd.Stdin = strings.NewReader(password + "\n")

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, out)
	}

	return nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FATAL: "+format+"\n", args...)
	os.Exit(1)
}
