// Package listing computes folder views over the flat list of file records
// the backend returns: which files sit in a folder, which subfolders it
// has, what is in the trash, and search by name.
package listing

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/vaultbox/vaultbox-go/internal/api"
	"github.com/vaultbox/vaultbox-go/internal/naming"
)

// View is the content of one folder.
type View struct {
	Path    string // normalized, "" for root
	Folders []string
	Files   []api.FileRecord
}

// Parent returns the folder above p; the root's parent is the root.
func Parent(p string) string {
	p = naming.NormalizePath(p)

	idx := strings.LastIndex(p, "/")
	if idx < 0 {
		return ""
	}

	return p[:idx]
}

// Child returns the path of subfolder name inside p.
func Child(p, name string) string {
	return naming.JoinPath(p, name)
}

// Available keeps only finalized files.
func Available(files []api.FileRecord) []api.FileRecord {
	return byStatus(files, api.StatusUploaded)
}

// Trash keeps only files pending deletion.
func Trash(files []api.FileRecord) []api.FileRecord {
	return byStatus(files, api.StatusDeleting)
}

func byStatus(files []api.FileRecord, status string) []api.FileRecord {
	out := make([]api.FileRecord, 0, len(files))

	for i := range files {
		if files[i].Status == status {
			out = append(out, files[i])
		}
	}

	return out
}

// Folder builds the view of folder p over the available files: the files
// whose parent is p and the names of p's immediate subfolders.
func Folder(files []api.FileRecord, p string) View {
	p = naming.NormalizePath(p)
	view := View{Path: p}
	seen := make(map[string]bool)

	for _, f := range Available(files) {
		filePath := naming.NormalizePath(f.FilePath)
		parent := Parent(filePath)

		if parent == p {
			view.Files = append(view.Files, f)
			continue
		}

		rest, ok := strings.CutPrefix(filePath, p+"/")
		if p == "" {
			rest, ok = filePath, true
		}

		if !ok {
			continue
		}

		if next, _, nested := strings.Cut(rest, "/"); nested && !seen[next] {
			seen[next] = true
			view.Folders = append(view.Folders, next)
		}
	}

	sort.Strings(view.Folders)
	sort.Slice(view.Files, func(i, j int) bool {
		return view.Files[i].FilePath < view.Files[j].FilePath
	})

	return view
}

// Search keeps files whose base name contains query, ignoring case and
// Unicode normalization differences. An empty query keeps everything.
func Search(files []api.FileRecord, query string) []api.FileRecord {
	if query == "" {
		return files
	}

	fold := cases.Fold()
	needle := fold.String(norm.NFC.String(query))
	out := make([]api.FileRecord, 0, len(files))

	for _, f := range files {
		name := fold.String(norm.NFC.String(naming.Basename(f.FilePath)))
		if strings.Contains(name, needle) {
			out = append(out, f)
		}
	}

	return out
}

// FindByPath returns the available file stored at filePath.
func FindByPath(files []api.FileRecord, filePath string) (api.FileRecord, bool) {
	want := norm.NFC.String(naming.NormalizePath(filePath))

	for _, f := range Available(files) {
		if norm.NFC.String(naming.NormalizePath(f.FilePath)) == want {
			return f, true
		}
	}

	return api.FileRecord{}, false
}

// FindByID returns the record with the given ID, in any status.
func FindByID(files []api.FileRecord, id string) (api.FileRecord, bool) {
	for _, f := range files {
		if f.ID == id {
			return f, true
		}
	}

	return api.FileRecord{}, false
}
