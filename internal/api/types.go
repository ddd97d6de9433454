package api

import "time"

// File record statuses as reported by the backend.
const (
	StatusPending  = "pending"
	StatusUploaded = "uploaded"
	StatusDeleting = "deleting"
)

// FileRecord is the backend's view of one stored file.
type FileRecord struct {
	ID          string `json:"id"`
	FilePath    string `json:"file_path"`
	Size        int64  `json:"size"`
	IsEncrypted bool   `json:"is_encrypted"`
	Status      string `json:"status"`
}

// Available reports whether the record has been finalized and is visible.
func (f *FileRecord) Available() bool {
	return f.Status == StatusUploaded
}

// UploadSlot is a short-lived presigned upload descriptor issued by the
// backend for one non-encrypted upload. UploadURL embeds its own
// authorization and must never be logged.
type UploadSlot struct {
	FileID    string `json:"file_id"`
	UploadURL string `json:"upload_url"`
}

// ShareLink is one share link configured for a file.
type ShareLink struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Password  string    `json:"password,omitempty"`
}

// Download is the result of a direct file download: either the bytes
// (with the server-provided Content-Disposition) or a redirect target.
type Download struct {
	Disposition string
	Data        []byte
	RedirectURL string // pre-authorized; NEVER log
}
