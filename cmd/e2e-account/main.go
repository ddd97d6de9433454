// Registers a throwaway account for the E2E suite and records its
// credentials in .env.
//
// Usage: go run ./cmd/e2e-account --server http://localhost:8080
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/vaultbox/vaultbox-go/internal/api"
	"github.com/vaultbox/vaultbox-go/testutil"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "backend root URL")
	envFile := flag.String("env", "", "file to write credentials to (default: <module root>/.env)")
	flag.Parse()

	if *envFile == "" {
		*envFile = filepath.Join(testutil.FindModuleRoot("."), ".env")
	}

	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	username := "e2e-" + id
	email := username + "@example.com"
	password := uuid.NewString()

	ctx := context.Background()
	client := api.NewClient(strings.TrimRight(*server, "/"), nil, api.Anonymous{}, slog.Default(), "")

	if err := client.Register(ctx, username, email, password); err != nil {
		fmt.Fprintf(os.Stderr, "registering %s: %v\n", username, err)
		os.Exit(1)
	}

	if _, err := client.Login(ctx, email, password); err != nil {
		fmt.Fprintf(os.Stderr, "account created but login failed: %v\n", err)
		os.Exit(1)
	}

	if err := testutil.WriteDotEnv(*envFile, map[string]string{
		"VAULTBOX_E2E_SERVER":   *server,
		"VAULTBOX_E2E_EMAIL":    email,
		"VAULTBOX_E2E_PASSWORD": password,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "writing %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	fmt.Printf("Registered %s. Credentials saved to %s.\n", email, *envFile)
}
