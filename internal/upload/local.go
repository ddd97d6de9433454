package upload

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/h2non/filetype"
)

// sniffBytes is the number of leading bytes filetype needs to match every
// signature it knows.
const sniffBytes = 261

// ErrNotRegularFile is returned by OpenFile for directories and devices.
var ErrNotRegularFile = errors.New("upload: not a regular file")

// LocalFile is a Payload backed by an open file. Close it after the upload.
type LocalFile struct {
	Payload
	f *os.File
}

// Close closes the underlying file.
func (l *LocalFile) Close() error {
	return l.f.Close()
}

// OpenFile opens path as an upload payload named after its base name, with
// its mime type detected by DetectMIME.
func OpenFile(path string) (*LocalFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	if !info.Mode().IsRegular() {
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotRegularFile, path)
	}

	head := make([]byte, sniffBytes)

	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		f.Close()
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("rewinding %s: %w", path, err)
	}

	name := filepath.Base(path)

	return &LocalFile{
		Payload: Payload{
			Name:     name,
			Size:     info.Size(),
			MimeType: DetectMIME(name, head[:n]),
			Body:     f,
		},
		f: f,
	}, nil
}

// DetectMIME returns the mime type registered for name's extension, else the
// type matched from the content's magic number, else "" (sent as
// application/octet-stream).
func DetectMIME(name string, head []byte) string {
	if ext := filepath.Ext(name); ext != "" {
		if mt := mime.TypeByExtension(ext); mt != "" {
			return mt
		}
	}

	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown {
		return ""
	}

	return kind.MIME.Value
}
