package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/vaultbox/vaultbox-go/internal/api"
	"github.com/vaultbox/vaultbox-go/internal/config"
	"github.com/vaultbox/vaultbox-go/internal/session"
)

// version is set at build time via ldflags.
var version = "dev"

// CLIFlags holds the global persistent flags.
type CLIFlags struct {
	ConfigPath string
	ServerURL  string
	JSON       bool
	Verbose    bool
	Quiet      bool
}

// CLIContext is built once per invocation by the root pre-run and carried
// in the command context.
type CLIContext struct {
	Flags  CLIFlags
	Cfg    *config.Resolved
	Logger *slog.Logger
	Out    io.Writer // command output (tables, JSON)
	Err    io.Writer // status messages and prompts
}

type cliContextKey struct{}

// cliContextFrom returns the CLIContext stored in ctx, or nil.
func cliContextFrom(ctx context.Context) *CLIContext {
	cc, _ := ctx.Value(cliContextKey{}).(*CLIContext)

	return cc
}

// mustCLIContext returns the CLIContext or panics; every subcommand runs
// after the root pre-run, so a missing context is a programming error.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("vaultbox: command context missing CLIContext")
	}

	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	var flags CLIFlags

	cmd := &cobra.Command{
		Use:     "vaultbox",
		Short:   "vaultbox file storage client",
		Long:    "Upload, download and share files stored on a vaultbox server.",
		Version: version,
		// Errors are printed by main.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := newCLIContext(cmd, flags)
			if err != nil {
				return err
			}

			cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cc))

			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "", "config file path")
	pf.StringVar(&flags.ServerURL, "server", "", "backend URL (overrides server_url)")
	pf.BoolVar(&flags.JSON, "json", false, "output in JSON format")
	pf.BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging")
	pf.BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress informational output")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(
		newLoginCmd(),
		newLogoutCmd(),
		newRegisterCmd(),
		newWhoamiCmd(),
		newLsCmd(),
		newTrashCmd(),
		newRestoreCmd(),
		newRmCmd(),
		newGetCmd(),
		newPutCmd(),
		newShareCmd(),
		newOpenCmd(),
		newHistoryCmd(),
		newConfigCmd(),
	)

	return cmd
}

// newCLIContext resolves configuration from the override chain and builds
// the logger.
func newCLIContext(cmd *cobra.Command, flags CLIFlags) (*CLIContext, error) {
	cli := config.CLIOverrides{ConfigPath: flags.ConfigPath}

	if cmd.Flags().Changed("server") {
		cli.ServerURL = &flags.ServerURL
	}

	// put --encrypt is local to one command but still a config override.
	if f := cmd.Flags().Lookup("encrypt"); f != nil && f.Changed {
		encrypt := f.Value.String() == "true"
		cli.Encrypt = &encrypt
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	return &CLIContext{
		Flags:  flags,
		Cfg:    resolved,
		Logger: buildLogger(resolved, flags, cmd.ErrOrStderr()),
		Out:    cmd.OutOrStdout(),
		Err:    cmd.ErrOrStderr(),
	}, nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win.
func buildLogger(cfg *config.Resolved, flags CLIFlags, w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	format := "auto"

	if cfg != nil {
		switch cfg.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "error":
			level = slog.LevelError
		}

		format = cfg.Logging.LogFormat
	}

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if format == "json" || (format == "auto" && !isTerminal(w)) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

// isTerminal reports whether w is a terminal file descriptor.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// newHTTPClient builds the shared HTTP client. request_timeout bounds the
// wait for response headers rather than the whole exchange, so large
// transfers are not cut off.
func newHTTPClient(cfg *config.Resolved) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: cfg.Network.ConnectTimeoutDuration()}).DialContext
	transport.TLSHandshakeTimeout = cfg.Network.ConnectTimeoutDuration()
	transport.ResponseHeaderTimeout = cfg.Network.RequestTimeoutDuration()

	return &http.Client{Transport: transport}
}

// anonymousClient returns a backend client that sends no credentials.
func (cc *CLIContext) anonymousClient() *api.Client {
	return api.NewClient(cc.Cfg.ServerURL, newHTTPClient(cc.Cfg), api.Anonymous{}, cc.Logger, cc.Cfg.Network.UserAgent)
}

// authedClient returns a backend client carrying the stored session token.
func (cc *CLIContext) authedClient() (*api.Client, error) {
	ts, err := session.FromPath(cc.Cfg.SessionPath())
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNotLoggedIn):
			return nil, errors.New("not logged in, run 'vaultbox login' first")
		case errors.Is(err, session.ErrSessionExpired):
			return nil, errors.New("session expired, run 'vaultbox login' again")
		default:
			return nil, err
		}
	}

	if exp := ts.Expiry(); !exp.IsZero() {
		cc.Logger.Debug("using stored session", slog.Time("expires", exp))
	}

	return api.NewClient(cc.Cfg.ServerURL, newHTTPClient(cc.Cfg), ts, cc.Logger, cc.Cfg.Network.UserAgent), nil
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
