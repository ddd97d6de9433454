package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vaultbox/vaultbox-go/internal/api"
	"github.com/vaultbox/vaultbox-go/internal/listing"
	"github.com/vaultbox/vaultbox-go/internal/naming"
)

// partialSuffix marks downloads still in progress.
const partialSuffix = ".partial"

// downloadFilePerms is the mode of downloaded files.
const downloadFilePerms = 0o644

func newLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls [folder]",
		Short: "List files and subfolders",
		Long: `List the files stored directly in a folder and its immediate subfolders.
With --search, list every file whose name contains the query instead.
With --recursive, list every folder below as well.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runLs,
	}

	cmd.Flags().StringP("search", "s", "", "match file names containing this text, case-insensitively")
	cmd.Flags().BoolP("recursive", "R", false, "also list all subfolders")
	cmd.MarkFlagsMutuallyExclusive("search", "recursive")

	return cmd
}

func newTrashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trash",
		Short: "List files pending deletion",
		Args:  cobra.NoArgs,
		RunE:  runTrash,
	}
}

func newRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <id>",
		Short: "Restore a file from the trash",
		Args:  cobra.ExactArgs(1),
		RunE:  runRestore,
	}
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id|path>",
		Short: "Move a file to the trash",
		Args:  cobra.ExactArgs(1),
		RunE:  runRm,
	}
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id|path> [local-path]",
		Short: "Download a file",
		Long: `Download a file by ID or path. The local name comes from the server's
Content-Disposition header, else the stored file name. When local-path is a
directory the file is written inside it.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runGet,
	}
}

// resolveFile finds a file by ID (any status) or by path (available only).
func resolveFile(files []api.FileRecord, ref string) (api.FileRecord, error) {
	if f, ok := listing.FindByID(files, ref); ok {
		return f, nil
	}

	if f, ok := listing.FindByPath(files, ref); ok {
		return f, nil
	}

	return api.FileRecord{}, fmt.Errorf("no file %q", ref)
}

// fileJSON is the JSON output schema for one file.
type fileJSON struct {
	ID        string `json:"id"`
	Path      string `json:"file_path"`
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	Encrypted bool   `json:"encrypted"`
	Status    string `json:"status"`
}

func toFileJSON(files []api.FileRecord) []fileJSON {
	out := make([]fileJSON, 0, len(files))
	for i := range files {
		out = append(out, fileJSON{
			ID:        files[i].ID,
			Path:      files[i].FilePath,
			Name:      naming.Basename(files[i].FilePath),
			Size:      files[i].Size,
			Encrypted: files[i].IsEncrypted,
			Status:    files[i].Status,
		})
	}

	return out
}

// folderJSON is the JSON output schema for ls.
type folderJSON struct {
	Path    string     `json:"path"`
	Parent  string     `json:"parent"`
	Folders []string   `json:"folders"`
	Files   []fileJSON `json:"files"`
}

func runLs(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	folder := ""
	if len(args) > 0 {
		folder = args[0]
	}

	client, err := cc.authedClient()
	if err != nil {
		return err
	}

	files, err := client.ListFiles(cmd.Context())
	if err != nil {
		return err
	}

	query, err := cmd.Flags().GetString("search")
	if err != nil {
		return err
	}

	if query != "" {
		matches := listing.Search(listing.Available(files), query)
		if cc.Flags.JSON {
			return printJSON(cc.Out, toFileJSON(matches))
		}

		printFilesTable(cc.Out, matches, true)

		return nil
	}

	recursive, err := cmd.Flags().GetBool("recursive")
	if err != nil {
		return err
	}

	if recursive {
		return printTree(cc, files, folder)
	}

	view := listing.Folder(files, folder)

	if cc.Flags.JSON {
		return printJSON(cc.Out, toFolderJSON(view))
	}

	printFolderTable(cc.Out, view)

	return nil
}

func toFolderJSON(view listing.View) folderJSON {
	return folderJSON{
		Path:    view.Path,
		Parent:  listing.Parent(view.Path),
		Folders: append([]string{}, view.Folders...),
		Files:   toFileJSON(view.Files),
	}
}

// walkFolders visits folder and every folder below it, depth first in name
// order.
func walkFolders(files []api.FileRecord, folder string, visit func(listing.View)) {
	view := listing.Folder(files, folder)
	visit(view)

	for _, name := range view.Folders {
		walkFolders(files, listing.Child(view.Path, name), visit)
	}
}

func printTree(cc *CLIContext, files []api.FileRecord, folder string) error {
	if cc.Flags.JSON {
		out := []folderJSON{}
		walkFolders(files, folder, func(v listing.View) { out = append(out, toFolderJSON(v)) })

		return printJSON(cc.Out, out)
	}

	first := true

	walkFolders(files, folder, func(v listing.View) {
		if !first {
			fmt.Fprintln(cc.Out)
		}

		first = false

		fmt.Fprintf(cc.Out, "/%s:\n", v.Path)
		printFolderTable(cc.Out, v)
	})

	return nil
}

func printFolderTable(w io.Writer, view listing.View) {
	headers := []string{"NAME", "SIZE", "ID"}
	rows := make([][]string, 0, len(view.Folders)+len(view.Files))

	for _, name := range view.Folders {
		rows = append(rows, []string{name + "/", "-", "-"})
	}

	for i := range view.Files {
		name := naming.Basename(view.Files[i].FilePath)
		if view.Files[i].IsEncrypted {
			name += " (encrypted)"
		}

		rows = append(rows, []string{name, formatSize(view.Files[i].Size), view.Files[i].ID})
	}

	printTable(w, headers, rows)
}

// printFilesTable lists files by full path or base name.
func printFilesTable(w io.Writer, files []api.FileRecord, fullPath bool) {
	headers := []string{"PATH", "SIZE", "ID"}
	rows := make([][]string, 0, len(files))

	for i := range files {
		name := files[i].FilePath
		if !fullPath {
			name = naming.Basename(name)
		}

		rows = append(rows, []string{name, formatSize(files[i].Size), files[i].ID})
	}

	printTable(w, headers, rows)
}

func runTrash(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	client, err := cc.authedClient()
	if err != nil {
		return err
	}

	files, err := client.ListFiles(cmd.Context())
	if err != nil {
		return err
	}

	trashed := listing.Trash(files)

	if cc.Flags.JSON {
		return printJSON(cc.Out, toFileJSON(trashed))
	}

	if len(trashed) == 0 {
		cc.Statusf("Trash is empty.\n")
		return nil
	}

	printFilesTable(cc.Out, trashed, true)

	return nil
}

func runRestore(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	client, err := cc.authedClient()
	if err != nil {
		return err
	}

	if err := client.RestoreFile(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("restore failed: %s", api.ServerMessage(err, "Restore failed"))
	}

	cc.Statusf("Restored %s\n", args[0])

	return nil
}

func runRm(cmd *cobra.Command, args []string) error {
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

	if err := client.DeleteFile(ctx, f.ID); err != nil {
		return fmt.Errorf("delete failed: %s", api.ServerMessage(err, "Delete failed"))
	}

	cc.Statusf("Moved %s to trash\n", f.FilePath)

	return nil
}

func runGet(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := shutdownContext(cmd.Context(), cc.Logger)

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

	dl, err := client.DownloadFile(ctx, f.ID)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}

	fallback := naming.Basename(f.FilePath)
	target := ""

	if len(args) > 1 {
		target = args[1]
	}

	var n int64

	if dl.RedirectURL != "" {
		cc.Logger.Debug("following download redirect", slog.String("file_id", f.ID))

		n, target, err = fetchToFile(ctx, client, dl.RedirectURL, target, fallback)
	} else {
		name := naming.SafeFilename(naming.ExtractFilename(dl.Disposition, fallback), naming.DefaultFileFilename)
		target = localTarget(target, name)
		n, err = int64(len(dl.Data)), writeFileAtomic(target, func(w io.Writer) error {
			_, werr := w.Write(dl.Data)
			return werr
		})
	}

	if err != nil {
		return err
	}

	cc.Logger.Info("download complete", slog.String("file_id", f.ID), slog.Int64("bytes", n))
	cc.Statusf("Downloaded %s (%s)\n", target, formatSize(n))

	return nil
}

// fetchToFile streams a pre-authorized URL to disk. Without a target, the
// name comes from the fetch's Content-Disposition, else fallback.
func fetchToFile(ctx context.Context, client *api.Client, url, target, fallback string) (int64, string, error) {
	dir, err := os.MkdirTemp(downloadDir(target), ".vaultbox-fetch-*")
	if err != nil {
		return 0, "", fmt.Errorf("creating download directory: %w", err)
	}
	defer os.RemoveAll(dir)

	tmp := filepath.Join(dir, "body")

	out, err := os.Create(tmp)
	if err != nil {
		return 0, "", fmt.Errorf("creating download file: %w", err)
	}

	n, disposition, err := client.FetchURL(ctx, url, out)
	if cerr := out.Close(); err == nil {
		err = cerr
	}

	if err != nil {
		return 0, "", fmt.Errorf("download failed: %w", err)
	}

	name := naming.SafeFilename(naming.ExtractFilename(disposition, fallback), naming.DefaultFileFilename)
	target = localTarget(target, name)

	if err := os.Chmod(tmp, downloadFilePerms); err != nil {
		return 0, "", fmt.Errorf("setting file permissions: %w", err)
	}

	if err := os.Rename(tmp, target); err != nil {
		return 0, "", fmt.Errorf("saving download to %q: %w", target, err)
	}

	return n, target, nil
}

// downloadDir is the directory a download into target will land in, so
// temporary files share its filesystem.
func downloadDir(target string) string {
	if target == "" {
		return "."
	}

	if info, err := os.Stat(target); err == nil && info.IsDir() {
		return target
	}

	return filepath.Dir(target)
}

// localTarget picks the output path: name in the working directory, name
// inside target when target is a directory, else target itself.
func localTarget(target, name string) string {
	if target == "" {
		return name
	}

	if info, err := os.Stat(target); err == nil && info.IsDir() {
		return filepath.Join(target, name)
	}

	return target
}

// writeFileAtomic writes through a .partial file renamed into place on
// success and removed on failure.
func writeFileAtomic(path string, write func(io.Writer) error) error {
	partial := path + partialSuffix

	f, err := os.OpenFile(partial, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, downloadFilePerms)
	if err != nil {
		return fmt.Errorf("creating %s: %w", partial, err)
	}

	werr := write(f)
	cerr := f.Close()

	if err := errors.Join(werr, cerr); err != nil {
		os.Remove(partial)
		return fmt.Errorf("writing %s: %w", path, err)
	}

	if err := os.Rename(partial, path); err != nil {
		os.Remove(partial)
		return fmt.Errorf("renaming download to %q: %w", path, err)
	}

	return nil
}
