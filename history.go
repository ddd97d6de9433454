package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vaultbox/vaultbox-go/internal/ledger"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [attempt-id]",
		Short: "Show recent upload attempts",
		Long: `Show the local record of upload attempts.

--orphans lists uploads whose transfer to storage failed after a file record
was reserved; the server collects those pending records on its own.
--unfinalized lists uploads whose bytes were stored but never finalized, so
the file is not visible yet.
With an attempt ID, shows that one attempt in full.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistory,
	}

	cmd.Flags().IntP("limit", "n", ledger.DefaultLimit, "number of entries to show")
	cmd.Flags().Bool("orphans", false, "only failed transfers that left a pending record")
	cmd.Flags().Bool("unfinalized", false, "only uploads stored but not finalized")
	cmd.Flags().Duration("prune", 0, "delete entries older than this (e.g. 720h) and exit")
	cmd.MarkFlagsMutuallyExclusive("orphans", "unfinalized", "prune")

	return cmd
}

// historyJSON is the JSON output schema for one ledger entry.
type historyJSON struct {
	AttemptID  string    `json:"attempt_id"`
	FilePath   string    `json:"file_path"`
	Size       int64     `json:"size"`
	Encrypted  bool      `json:"encrypted"`
	FileID     string    `json:"file_id,omitempty"`
	Phase      string    `json:"phase"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

func runHistory(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()
	flags := cmd.Flags()

	path := cc.Cfg.LedgerPath()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cc.Statusf("No uploads recorded yet.\n")
		return nil
	}

	store, err := ledger.Open(ctx, path, cc.Logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if len(args) == 1 {
		return showAttempt(cmd, cc, store, args[0])
	}

	if prune, _ := flags.GetDuration("prune"); prune > 0 { //nolint:errcheck // flag is registered
		n, err := store.Prune(ctx, time.Now().Add(-prune))
		if err != nil {
			return err
		}

		cc.Statusf("Pruned %d entries\n", n)

		return nil
	}

	var entries []ledger.Entry

	orphans, _ := flags.GetBool("orphans")         //nolint:errcheck // flag is registered
	unfinalized, _ := flags.GetBool("unfinalized") //nolint:errcheck // flag is registered
	limit, _ := flags.GetInt("limit")              //nolint:errcheck // flag is registered

	switch {
	case orphans:
		entries, err = store.Orphans(ctx)
	case unfinalized:
		entries, err = store.Unfinalized(ctx)
	default:
		entries, err = store.Recent(ctx, limit)
	}

	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		out := make([]historyJSON, 0, len(entries))
		for i := range entries {
			out = append(out, toHistoryJSON(&entries[i]))
		}

		return printJSON(cc.Out, out)
	}

	if len(entries) == 0 {
		cc.Statusf("No matching uploads.\n")
		return nil
	}

	rows := make([][]string, 0, len(entries))

	for i := range entries {
		e := &entries[i]

		rows = append(rows, []string{
			formatTime(e.FinishedAt),
			attemptStatus(e),
			e.FilePath,
			formatSize(e.Size),
			valueOr(e.FileID, "-"),
		})
	}

	printTable(cc.Out, []string{"WHEN", "STATUS", "PATH", "SIZE", "FILE ID"}, rows)

	if orphans {
		fmt.Fprintln(cc.Err, "The server removes pending records left by failed transfers.")
	}

	return nil
}

func toHistoryJSON(e *ledger.Entry) historyJSON {
	return historyJSON{
		AttemptID:  e.AttemptID,
		FilePath:   e.FilePath,
		Size:       e.Size,
		Encrypted:  e.Encrypted,
		FileID:     e.FileID,
		Phase:      string(e.Phase),
		Error:      e.Error,
		StartedAt:  e.StartedAt,
		FinishedAt: e.FinishedAt,
	}
}

func attemptStatus(e *ledger.Entry) string {
	if e.Succeeded() {
		return "ok"
	}

	return string(e.Phase) + " failed"
}

func showAttempt(cmd *cobra.Command, cc *CLIContext, store *ledger.Store, id string) error {
	e, err := store.Get(cmd.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("no upload attempt %q", id)
	}

	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, toHistoryJSON(e))
	}

	fmt.Fprintf(cc.Out, "Attempt:   %s\n", e.AttemptID)
	fmt.Fprintf(cc.Out, "Path:      %s\n", e.FilePath)
	fmt.Fprintf(cc.Out, "Size:      %s\n", formatSize(e.Size))
	fmt.Fprintf(cc.Out, "Encrypted: %t\n", e.Encrypted)
	fmt.Fprintf(cc.Out, "File ID:   %s\n", valueOr(e.FileID, "-"))
	fmt.Fprintf(cc.Out, "Status:    %s\n", attemptStatus(e))

	if e.Error != "" {
		fmt.Fprintf(cc.Out, "Error:     %s\n", e.Error)
	}

	fmt.Fprintf(cc.Out, "Started:   %s\n", e.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(cc.Out, "Finished:  %s\n", e.FinishedAt.Format(time.RFC3339))

	return nil
}
