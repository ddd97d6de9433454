package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vaultbox/vaultbox-go/internal/api"
	"github.com/vaultbox/vaultbox-go/internal/ledger"
	"github.com/vaultbox/vaultbox-go/internal/listing"
	"github.com/vaultbox/vaultbox-go/internal/upload"
)

func newPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <local-path>...",
		Short: "Upload files",
		Long: `Upload one or more local files into a folder. With --encrypt the server
encrypts the file and the upload is a single request; otherwise the bytes go
straight to storage through a presigned URL and the upload is then finalized.

Several files upload in parallel (upload.parallel_uploads). Every attempt is
recorded in the local upload history; see 'vaultbox history'.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runPut,
	}

	cmd.Flags().String("to", "", "destination folder (default: root)")
	cmd.Flags().Bool("encrypt", false, "encrypt on the server (overrides upload.encrypt)")

	return cmd
}

func runPut(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := shutdownContext(cmd.Context(), cc.Logger)

	dest, err := cmd.Flags().GetString("to")
	if err != nil {
		return err
	}

	client, err := cc.authedClient()
	if err != nil {
		return err
	}

	opened, err := openPayloads(args, cc.Cfg.Upload.MaxFileSizeBytes())
	if err != nil {
		return err
	}

	defer func() {
		for _, lf := range opened {
			lf.Close()
		}
	}()

	opts := []upload.Option{}

	if cc.Logger.Enabled(ctx, slog.LevelDebug) {
		opts = append(opts, upload.WithOnChange(func(ctx context.Context) error {
			files, err := client.ListFiles(ctx)
			if err != nil {
				return err
			}

			cc.Logger.Debug("file list refreshed", slog.Int("available", len(listing.Available(files))))

			return nil
		}))
	}

	if store := openLedger(ctx, cc); store != nil {
		defer store.Close()

		opts = append(opts, upload.WithRecorder(store))
	}

	coord := upload.NewCoordinator(client, cc.Logger, opts...)

	reqs := make([]upload.Request, len(opened))
	for i, lf := range opened {
		reqs[i] = upload.Request{
			Payload:         &lf.Payload,
			DestinationPath: dest,
			Encrypt:         cc.Cfg.Upload.Encrypt,
		}
	}

	results := coord.UploadMany(ctx, reqs, cc.Cfg.Upload.ParallelUploads)

	return reportUploads(cc, args, results)
}

// openPayloads opens every local file before any upload starts, so a typo
// in the last argument does not leave the first ones half-done.
func openPayloads(paths []string, maxSize int64) ([]*upload.LocalFile, error) {
	opened := make([]*upload.LocalFile, 0, len(paths))

	closeAll := func() {
		for _, lf := range opened {
			lf.Close()
		}
	}

	for _, p := range paths {
		lf, err := upload.OpenFile(p)
		if err != nil {
			closeAll()
			return nil, err
		}

		opened = append(opened, lf)

		if maxSize > 0 && lf.Size > maxSize {
			closeAll()
			return nil, fmt.Errorf("%s is %s, over the %s upload limit",
				p, formatSize(lf.Size), formatSize(maxSize))
		}
	}

	return opened, nil
}

// openLedger opens the upload history. Failures only cost the history, so
// they are logged and the upload proceeds.
func openLedger(ctx context.Context, cc *CLIContext) *ledger.Store {
	path := cc.Cfg.LedgerPath()
	if path == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		cc.Logger.Warn("upload history unavailable", slog.String("error", err.Error()))
		return nil
	}

	store, err := ledger.Open(ctx, path, cc.Logger)
	if err != nil {
		cc.Logger.Warn("upload history unavailable", slog.String("error", err.Error()))
		return nil
	}

	return store
}

// reportUploads prints one line per upload and fails when any upload did.
func reportUploads(cc *CLIContext, paths []string, results []upload.Result) error {
	failed := 0

	for i, r := range results {
		if r.Err == nil {
			cc.Statusf("Uploaded %s -> %s (%s)\n", paths[i], r.Record.FilePath, formatSize(r.Record.Size))
			continue
		}

		failed++

		fmt.Fprintf(cc.Err, "Upload failed: %s: %s\n", paths[i], uploadFailureMessage(r.Err))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(results))
	}

	return nil
}

// uploadFailureMessage explains a failed upload in terms of what was left
// behind on the server.
func uploadFailureMessage(err error) string {
	var ue *upload.Error
	if !errors.As(err, &ue) || ue.Err == nil {
		return err.Error()
	}

	msg := api.ServerMessage(ue.Err, ue.Err.Error())

	switch {
	case errors.Is(err, upload.ErrValidation):
		return msg
	case errors.Is(err, upload.ErrReserveFailed):
		return "could not reserve upload: " + msg
	case errors.Is(err, upload.ErrTransferFailed):
		return "transfer to storage failed, nothing was stored: " + msg
	case ue.BytesStored():
		return fmt.Sprintf("file stored but not finalized (id %s), see 'vaultbox history --unfinalized': %s",
			ue.FileID, msg)
	case errors.Is(err, upload.ErrEncryptedUploadFailed):
		return "encrypted upload failed: " + msg
	default:
		return msg
	}
}
