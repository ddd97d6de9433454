package main

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultbox/vaultbox-go/internal/api"
)

func TestLs_RootAndFolder(t *testing.T) {
	env := newCLIEnv(t)
	env.login()

	env.backend.addFile("readme.md", []byte("# hi"), false)
	env.backend.addFile("docs/report.pdf", []byte("%PDF"), true)
	env.backend.addFile("docs/2024/q1.xlsx", []byte("x"), false)

	stdout, _ := env.mustRun("", "ls")
	assert.Contains(t, stdout, "docs/")
	assert.Contains(t, stdout, "readme.md")
	assert.NotContains(t, stdout, "report.pdf")

	stdout, _ = env.mustRun("", "--json", "ls", "docs")

	var out folderJSON
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, "docs", out.Path)
	assert.Empty(t, out.Parent)
	assert.Equal(t, []string{"2024"}, out.Folders)
	require.Len(t, out.Files, 1)
	assert.Equal(t, "report.pdf", out.Files[0].Name)
	assert.True(t, out.Files[0].Encrypted)
}

func TestLs_Recursive(t *testing.T) {
	env := newCLIEnv(t)
	env.login()

	env.backend.addFile("readme.md", []byte("# hi"), false)
	env.backend.addFile("docs/report.pdf", []byte("%PDF"), false)
	env.backend.addFile("docs/2024/q1.xlsx", []byte("x"), false)
	env.backend.addFile("photos/cat.jpg", []byte("x"), false)

	stdout, _ := env.mustRun("", "--json", "ls", "-R")

	var out []folderJSON
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))

	paths := make([]string, 0, len(out))
	for _, f := range out {
		paths = append(paths, f.Path)
	}

	assert.Equal(t, []string{"", "docs", "docs/2024", "photos"}, paths)

	stdout, _ = env.mustRun("", "ls", "docs", "--recursive")
	assert.Contains(t, stdout, "/docs:")
	assert.Contains(t, stdout, "/docs/2024:")
	assert.Contains(t, stdout, "q1.xlsx")
	assert.NotContains(t, stdout, "cat.jpg")

	_, _, err := env.run("", "ls", "-R", "--search", "x")
	require.Error(t, err)
}

func TestLs_Search(t *testing.T) {
	env := newCLIEnv(t)
	env.login()

	env.backend.addFile("docs/Report.pdf", []byte("1"), false)
	env.backend.addFile("notes.txt", []byte("2"), false)

	stdout, _ := env.mustRun("", "--json", "ls", "--search", "report")

	var out []fileJSON
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "docs/Report.pdf", out[0].Path)
}

func TestRmTrashRestore(t *testing.T) {
	env := newCLIEnv(t)
	env.login()

	id := env.backend.addFile("docs/old.txt", []byte("old"), false)

	_, stderr := env.mustRun("", "trash")
	assert.Contains(t, stderr, "Trash is empty.")

	_, stderr = env.mustRun("", "rm", "docs/old.txt")
	assert.Contains(t, stderr, "Moved docs/old.txt to trash")

	f, _, _ := env.backend.file(id)
	assert.Equal(t, api.StatusDeleting, f.Status)

	stdout, _ := env.mustRun("", "trash")
	assert.Contains(t, stdout, "docs/old.txt")

	// Trashed files are only addressable by ID.
	_, _, err := env.run("", "rm", "docs/old.txt")
	require.Error(t, err)

	env.mustRun("", "restore", id)

	f, _, _ = env.backend.file(id)
	assert.Equal(t, api.StatusUploaded, f.Status)
}

func TestRestore_UnknownID(t *testing.T) {
	env := newCLIEnv(t)
	env.login()

	_, _, err := env.run("", "restore", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file not found")
}

func TestGet_Direct(t *testing.T) {
	env := newCLIEnv(t)
	env.login()

	env.backend.addFile("docs/report.pdf", []byte("%PDF-1.7"), false)

	dir := t.TempDir()

	_, stderr := env.mustRun("", "get", "docs/report.pdf", dir)
	assert.Contains(t, stderr, "Downloaded")

	data, err := os.ReadFile(filepath.Join(dir, "report.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(data))

	_, err = os.Stat(filepath.Join(dir, "report.pdf"+partialSuffix))
	assert.True(t, os.IsNotExist(err))
}

func TestGet_Redirect(t *testing.T) {
	env := newCLIEnv(t)
	env.login()

	id := env.backend.addFile("big.bin", []byte("large content"), false)
	env.backend.redirectDownloads(id)

	dir := t.TempDir()
	target := filepath.Join(dir, "renamed.bin")

	env.mustRun("", "get", id, target)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "large content", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files are left behind")
}

func TestGet_UnknownFile(t *testing.T) {
	env := newCLIEnv(t)
	env.login()

	_, _, err := env.run("", "get", "nope.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no file "nope.txt"`)
}

func TestLocalTarget(t *testing.T) {
	dir := t.TempDir()

	assert.Equal(t, "a.txt", localTarget("", "a.txt"))
	assert.Equal(t, filepath.Join(dir, "a.txt"), localTarget(dir, "a.txt"))
	assert.Equal(t, filepath.Join(dir, "b.txt"), localTarget(filepath.Join(dir, "b.txt"), "a.txt"))
}

func TestDownloadDir(t *testing.T) {
	dir := t.TempDir()

	assert.Equal(t, ".", downloadDir(""))
	assert.Equal(t, dir, downloadDir(dir))
	assert.Equal(t, dir, downloadDir(filepath.Join(dir, "new.bin")))
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")

	require.NoError(t, writeFileAtomic(path, func(w io.Writer) error {
		_, err := w.Write([]byte("done"))
		return err
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "done", string(data))
}

func TestWriteFileAtomic_FailureLeavesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	boom := errors.New("interrupted")

	err := writeFileAtomic(path, func(w io.Writer) error {
		_, _ = w.Write([]byte("half"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	_, statErr = os.Stat(path + partialSuffix)
	assert.True(t, os.IsNotExist(statErr))
}

func TestResolveFile(t *testing.T) {
	files := []api.FileRecord{
		{ID: "1", FilePath: "a.txt", Status: api.StatusUploaded},
		{ID: "2", FilePath: "b.txt", Status: api.StatusDeleting},
	}

	f, err := resolveFile(files, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "1", f.ID)

	f, err = resolveFile(files, "2")
	require.NoError(t, err)
	assert.Equal(t, "b.txt", f.FilePath)

	_, err = resolveFile(files, "b.txt")
	require.Error(t, err)
}
