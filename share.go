package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vaultbox/vaultbox-go/internal/api"
	"github.com/vaultbox/vaultbox-go/internal/blob"
	"github.com/vaultbox/vaultbox-go/internal/naming"
	"github.com/vaultbox/vaultbox-go/internal/share"
)

// maxPasswordAttempts bounds interactive password retries in open.
const maxPasswordAttempts = 3

// errPasswordStillRequired reports a password the server answered with a
// fresh challenge.
var errPasswordStillRequired = errors.New("password still required")

func newShareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "share",
		Short: "Manage share links",
	}

	create := &cobra.Command{
		Use:   "create <id|path>",
		Short: "Create a share link for a file",
		Args:  cobra.ExactArgs(1),
		RunE:  runShareCreate,
	}
	create.Flags().Int("expiry", 0, "link lifetime in hours (default: share.default_expiry_hours)")
	create.Flags().String("password", "", "require this password to open the link")

	cmd.AddCommand(
		create,
		&cobra.Command{
			Use:   "ls <id|path>",
			Short: "List a file's share links",
			Args:  cobra.ExactArgs(1),
			RunE:  runShareLs,
		},
		&cobra.Command{
			Use:   "rm <link-id>",
			Short: "Delete a share link",
			Args:  cobra.ExactArgs(1),
			RunE:  runShareRm,
		},
	)

	return cmd
}

func newOpenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "open <token|link> [dir]",
		Short: "Download the file behind a share link",
		Long: `Resolve a share token (or a full share link) and save its file into dir.
Password-protected links prompt for the password without echo, or take it
from --password.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runOpen,
	}

	cmd.Flags().String("password", "", "share password")

	return cmd
}

// shareURL builds the public link for a token.
func shareURL(frontend, token string) string {
	return strings.TrimRight(frontend, "/") + "/share/" + url.PathEscape(token)
}

// shareToken accepts a bare token or a link ending in /share/<token>.
func shareToken(ref string) string {
	u, err := url.Parse(ref)
	if err != nil || u.Host == "" {
		return ref
	}

	dir, last := path.Split(strings.TrimRight(u.Path, "/"))
	if path.Base(dir) != "share" || last == "" {
		return ref
	}

	if tok, err := url.PathUnescape(last); err == nil {
		return tok
	}

	return last
}

// shareJSON is the JSON output schema for one share link.
type shareJSON struct {
	ID          string    `json:"id"`
	Token       string    `json:"token"`
	URL         string    `json:"url"`
	ExpiresAt   time.Time `json:"expires_at,omitzero"`
	HasPassword bool      `json:"has_password"`
}

func toShareJSON(frontend string, links []api.ShareLink) []shareJSON {
	out := make([]shareJSON, 0, len(links))
	for i := range links {
		out = append(out, shareJSON{
			ID:          links[i].ID,
			Token:       links[i].Token,
			URL:         shareURL(frontend, links[i].Token),
			ExpiresAt:   links[i].ExpiresAt,
			HasPassword: links[i].Password != "",
		})
	}

	return out
}

func runShareCreate(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	expiry, err := cmd.Flags().GetInt("expiry")
	if err != nil {
		return err
	}

	if expiry == 0 {
		expiry = cc.Cfg.Share.DefaultExpiryHours
	}

	if expiry < 1 {
		return fmt.Errorf("--expiry must be at least 1 hour, got %d", expiry)
	}

	password, err := cmd.Flags().GetString("password")
	if err != nil {
		return err
	}

	client, err := cc.authedClient()
	if err != nil {
		return err
	}

	files, err := client.ListFiles(ctx)
	if err != nil {
		return err
	}

	f, err := resolveFile(files, args[0])
	if err != nil {
		return err
	}

	if err := client.CreateShare(ctx, f.ID, expiry, password); err != nil {
		return fmt.Errorf("creating share link: %s", api.ServerMessage(err, "Failed to create share link"))
	}

	links, err := client.ListShares(ctx, f.ID)
	if err != nil {
		return err
	}

	if len(links) == 0 {
		return errors.New("share link created but not listed by the server")
	}

	newest := links[0]
	for _, l := range links[1:] {
		if l.ExpiresAt.After(newest.ExpiresAt) {
			newest = l
		}
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, toShareJSON(cc.Cfg.FrontendURL, []api.ShareLink{newest})[0])
	}

	fmt.Fprintln(cc.Out, shareURL(cc.Cfg.FrontendURL, newest.Token))

	return nil
}

func runShareLs(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	client, err := cc.authedClient()
	if err != nil {
		return err
	}

	files, err := client.ListFiles(ctx)
	if err != nil {
		return err
	}

	f, err := resolveFile(files, args[0])
	if err != nil {
		return err
	}

	links, err := client.ListShares(ctx, f.ID)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, toShareJSON(cc.Cfg.FrontendURL, links))
	}

	if len(links) == 0 {
		cc.Statusf("No share links for %s\n", f.FilePath)
		return nil
	}

	rows := make([][]string, 0, len(links))

	for i := range links {
		protected := "no"
		if links[i].Password != "" {
			protected = "yes"
		}

		rows = append(rows, []string{
			links[i].ID,
			formatTime(links[i].ExpiresAt),
			protected,
			shareURL(cc.Cfg.FrontendURL, links[i].Token),
		})
	}

	printTable(cc.Out, []string{"ID", "EXPIRES", "PASSWORD", "URL"}, rows)

	return nil
}

func runShareRm(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	client, err := cc.authedClient()
	if err != nil {
		return err
	}

	if err := client.DeleteShare(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("deleting share link: %s", api.ServerMessage(err, "Failed to delete share link"))
	}

	cc.Statusf("Deleted share link %s\n", args[0])

	return nil
}

func runOpen(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := shutdownContext(cmd.Context(), cc.Logger)
	token := shareToken(args[0])

	dir := "."
	if len(args) > 1 {
		dir = args[1]
	}

	flagPassword, err := cmd.Flags().GetString("password")
	if err != nil {
		return err
	}

	client := cc.anonymousClient()
	resolver := share.NewResolver(client, blob.NewRegistry(cc.Logger), cc.Logger)

	out := resolver.Resolve(ctx, token)

	if out.Kind() == share.KindPasswordRequired {
		out, err = submitPassword(ctx, cmd, cc, resolver, token, flagPassword)
		if err != nil {
			return err
		}
	}

	switch out.Kind() {
	case share.KindDownloaded:
		return resolver.Deliver(out, func(filename string, h *blob.Handle) error {
			target := localTarget(dir, naming.SafeFilename(filename, naming.DefaultShareFilename))

			if err := writeFileAtomic(target, func(w io.Writer) error {
				_, werr := w.Write(h.Bytes())
				return werr
			}); err != nil {
				return err
			}

			cc.Statusf("Saved %s (%s)\n", target, formatSize(int64(h.Size())))

			return nil
		})

	case share.KindRedirected:
		n, target, err := fetchToFile(ctx, client, out.URL(), dir, naming.DefaultShareFilename)
		if err != nil {
			return err
		}

		cc.Statusf("Saved %s (%s)\n", target, formatSize(n))

		return nil

	case share.KindPasswordRequired:
		return errPasswordStillRequired

	default:
		return errors.New(out.Reason())
	}
}

// submitPassword answers a password challenge: once with --password, or up
// to maxPasswordAttempts prompts otherwise.
func submitPassword(
	ctx context.Context, cmd *cobra.Command, cc *CLIContext, resolver *share.Resolver, token, flagPassword string,
) (share.Outcome, error) {
	if flagPassword != "" {
		return resolver.Submit(ctx, token, flagPassword), nil
	}

	p := newPrompter(cmd.InOrStdin(), cc.Err)

	var out share.Outcome

	for range maxPasswordAttempts {
		password, err := p.Secret("Share password: ")
		if err != nil {
			return share.Outcome{}, err
		}

		out = resolver.Submit(ctx, token, password)
		if out.Failure() != share.FailureInvalidPassword {
			return out, nil
		}

		fmt.Fprintln(cc.Err, out.Reason())
	}

	return out, nil
}
