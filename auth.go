package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vaultbox/vaultbox-go/internal/config"
	"github.com/vaultbox/vaultbox-go/internal/session"
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session token",
		Long: `Sign in with email and password. The password is read without echo
when stdin is a terminal. With --server, the server URL is also saved to the
config file.`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}

	cmd.Flags().String("email", "", "account email (prompted when omitted)")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored session token",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
}

func newRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a new account",
		Args:  cobra.NoArgs,
		RunE:  runRegister,
	}

	cmd.Flags().String("username", "", "user name (prompted when omitted)")
	cmd.Flags().String("email", "", "account email (prompted when omitted)")

	return cmd
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the signed-in account",
		Args:  cobra.NoArgs,
		RunE:  runWhoami,
	}
}

// flagOrPrompt returns the flag value, prompting when it is empty.
func flagOrPrompt(cmd *cobra.Command, p *prompter, name, label string) (string, error) {
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		return "", err
	}

	if v != "" {
		return v, nil
	}

	v, err = p.Line(label)
	if err != nil {
		return "", err
	}

	if v == "" {
		return "", fmt.Errorf("%s is required", name)
	}

	return v, nil
}

func runLogin(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	p := newPrompter(cmd.InOrStdin(), cc.Err)

	email, err := flagOrPrompt(cmd, p, "email", "Email: ")
	if err != nil {
		return err
	}

	password, err := p.Secret("Password: ")
	if err != nil {
		return err
	}

	raw, err := cc.anonymousClient().Login(cmd.Context(), email, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	meta := map[string]string{
		session.MetaEmail:  email,
		session.MetaServer: cc.Cfg.ServerURL,
	}

	if err := session.Save(cc.Cfg.SessionPath(), session.NewToken(raw), meta); err != nil {
		return err
	}

	if cc.Flags.ServerURL != "" {
		if err := persistServerURL(cc.Cfg); err != nil {
			cc.Logger.Warn("saving server URL to config failed",
				slog.String("path", cc.Cfg.Path),
				slog.String("error", err.Error()),
			)
		}
	}

	cc.Logger.Info("login successful", slog.String("email", email))
	cc.Statusf("Signed in as %s.\n", email)

	return nil
}

// persistServerURL writes server_url to the config file, creating it when
// missing.
func persistServerURL(cfg *config.Resolved) error {
	if cfg.Path == "" {
		return errors.New("no config path")
	}

	if _, err := os.Stat(cfg.Path); errors.Is(err, os.ErrNotExist) {
		return config.CreateDefault(cfg.Path, cfg.ServerURL)
	}

	return config.SetTopLevelKey(cfg.Path, "server_url", cfg.ServerURL)
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if err := session.Remove(cc.Cfg.SessionPath()); err != nil {
		return err
	}

	cc.Logger.Info("logged out")
	cc.Statusf("Signed out.\n")

	return nil
}

func runRegister(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	p := newPrompter(cmd.InOrStdin(), cc.Err)

	username, err := flagOrPrompt(cmd, p, "username", "Username: ")
	if err != nil {
		return err
	}

	email, err := flagOrPrompt(cmd, p, "email", "Email: ")
	if err != nil {
		return err
	}

	password, err := p.Secret("Password: ")
	if err != nil {
		return err
	}

	confirm, err := p.Secret("Confirm password: ")
	if err != nil {
		return err
	}

	if password != confirm {
		return errors.New("passwords do not match")
	}

	if err := cc.anonymousClient().Register(cmd.Context(), username, email, password); err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	cc.Statusf("Account %s created. Run 'vaultbox login' to sign in.\n", username)

	return nil
}

// whoamiOutput is the JSON output schema for whoami.
type whoamiOutput struct {
	Email     string    `json:"email,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	Server    string    `json:"server_url,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
	Expired   bool      `json:"expired"`
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	tok, meta, err := session.Load(cc.Cfg.SessionPath())
	if err != nil {
		return err
	}

	if tok == nil {
		return errors.New("not logged in, run 'vaultbox login' first")
	}

	out := whoamiOutput{
		Email:     meta[session.MetaEmail],
		Server:    meta[session.MetaServer],
		ExpiresAt: tok.Expiry,
		Expired:   !tok.Expiry.IsZero() && !time.Now().Before(tok.Expiry),
	}

	if claims := session.Claims(tok.AccessToken); claims != nil {
		if sub, err := claims.GetSubject(); err == nil {
			out.Subject = sub
		}
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, out)
	}

	fmt.Fprintf(cc.Out, "Email:   %s\n", valueOr(out.Email, "-"))
	fmt.Fprintf(cc.Out, "Server:  %s\n", valueOr(out.Server, "-"))

	if out.Subject != "" {
		fmt.Fprintf(cc.Out, "Subject: %s\n", out.Subject)
	}

	switch {
	case out.ExpiresAt.IsZero():
		fmt.Fprintf(cc.Out, "Expires: unknown\n")
	case out.Expired:
		fmt.Fprintf(cc.Out, "Expires: %s (expired)\n", out.ExpiresAt.Format(time.RFC3339))
	default:
		fmt.Fprintf(cc.Out, "Expires: %s\n", out.ExpiresAt.Format(time.RFC3339))
	}

	return nil
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}

	return s
}
