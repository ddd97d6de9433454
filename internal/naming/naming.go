// Package naming derives local filenames for downloaded content.
package naming

import (
	"path"
	"regexp"
	"strings"
)

// Fallback names used when the server does not provide one.
const (
	DefaultShareFilename = "shared_file"
	DefaultFileFilename  = "file"
)

var filenamePattern = regexp.MustCompile(`filename="([^"]+)"`)

// ExtractFilename returns the quoted filename token of a Content-Disposition
// header value, or fallback when the header is empty or has no quoted
// filename. It never fails.
func ExtractFilename(disposition, fallback string) string {
	if disposition == "" {
		return fallback
	}

	m := filenamePattern.FindStringSubmatch(disposition)
	if len(m) < 2 || m[1] == "" {
		return fallback
	}

	return m[1]
}

// SafeFilename reduces name to its final path element so a server-chosen
// name cannot escape the destination directory. Names that reduce to
// nothing, "." or ".." yield fallback.
func SafeFilename(name, fallback string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(strings.TrimRight(name, "/"))
	name = strings.TrimSpace(name)

	switch name {
	case "", ".", "..", "/":
		return fallback
	}

	return name
}

// Basename returns the last element of a backend file path.
func Basename(filePath string) string {
	parts := strings.Split(strings.Trim(filePath, "/"), "/")
	if last := parts[len(parts)-1]; last != "" {
		return last
	}

	return filePath
}

// NormalizePath trims leading and trailing slashes and collapses empty
// segments, so "/a//b/" becomes "a/b". The root is "".
func NormalizePath(p string) string {
	parts := strings.Split(strings.ReplaceAll(p, "\\", "/"), "/")
	kept := parts[:0]

	for _, part := range parts {
		if part != "" {
			kept = append(kept, part)
		}
	}

	return strings.Join(kept, "/")
}

// JoinPath places name inside folder. An empty folder means the root.
func JoinPath(folder, name string) string {
	folder = NormalizePath(folder)
	if folder == "" {
		return name
	}

	return folder + "/" + name
}
