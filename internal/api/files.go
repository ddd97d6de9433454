package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
)

// ErrDownloadFailed is returned when a direct download answers with neither
// content nor a redirect.
var ErrDownloadFailed = errors.New("api: download failed")

// ErrIncompleteSlot is returned when the backend's presigned reservation
// lacks an upload URL or file ID.
var ErrIncompleteSlot = errors.New("api: incomplete upload slot")

type listFilesResponse struct {
	Files []FileRecord `json:"files"`
}

// fileRecordEnvelope accepts both a bare record and {"file": {...}}.
type fileRecordEnvelope struct {
	FileRecord
	File *FileRecord `json:"file"`
}

func (e *fileRecordEnvelope) record() *FileRecord {
	if e.File != nil {
		return e.File
	}

	rec := e.FileRecord

	return &rec
}

type reserveRequest struct {
	FilePath string `json:"file_path"`
	Size     int64  `json:"size"`
}

// ListFiles returns every file record owned by the session user, in all
// statuses. Callers filter by Status.
func (c *Client) ListFiles(ctx context.Context) ([]FileRecord, error) {
	var out listFilesResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/files", nil, &out); err != nil {
		return nil, fmt.Errorf("api: listing files: %w", err)
	}

	c.logger.Debug("listed files", slog.Int("count", len(out.Files)))

	return out.Files, nil
}

// DeleteFile moves a file to the trash.
func (c *Client) DeleteFile(ctx context.Context, id string) error {
	c.logger.Info("deleting file", slog.String("file_id", id))

	if err := c.doJSON(ctx, http.MethodDelete, "/api/files/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("api: deleting file %s: %w", id, err)
	}

	return nil
}

// RestoreFile moves a trashed file back to its folder.
func (c *Client) RestoreFile(ctx context.Context, id string) error {
	c.logger.Info("restoring file", slog.String("file_id", id))

	if err := c.doJSON(ctx, http.MethodPut, "/api/files/restore/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("api: restoring file %s: %w", id, err)
	}

	return nil
}

// DownloadFile fetches a file directly. A 200 yields the bytes; a 3xx
// with a Location header yields the redirect target, which is not
// followed here. Anything else is ErrDownloadFailed.
func (c *Client) DownloadFile(ctx context.Context, id string) (*Download, error) {
	c.logger.Info("downloading file", slog.String("file_id", id))

	path := "/api/files/" + url.PathEscape(id) + "/download"

	resp, err := c.doRaw(ctx, c.noRedirect, http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return &Download{Disposition: resp.Disposition(), Data: resp.Body}, nil

	case resp.IsRedirect() && resp.Header.Get("Location") != "":
		c.logger.Debug("download redirected", slog.Int("status", resp.StatusCode))
		return &Download{RedirectURL: resp.Header.Get("Location")}, nil

	default:
		return nil, fmt.Errorf("%w: %w", ErrDownloadFailed, &Error{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.Body),
			Err:        classifyStatus(resp.StatusCode),
		})
	}
}

// UploadEncrypted sends the payload and its destination path as one
// multipart request. The backend encrypts and stores the bytes and
// returns the created record. Never retried: the body is a stream.
func (c *Client) UploadEncrypted(
	ctx context.Context, filePath, name, contentType string, r io.Reader,
) (*FileRecord, error) {
	c.logger.Info("encrypted upload",
		slog.String("file_path", filePath),
	)

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeUploadForm(mw, filePath, name, contentType, r))
	}()

	resp, err := c.doOnce(ctx, http.MethodPost, c.baseURL+"/api/files/encrypted", mw.FormDataContentType(), pr)
	if err != nil {
		pr.CloseWithError(err)
		return nil, fmt.Errorf("%w: encrypted upload: %w", ErrNetwork, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, errorFromResponse(resp)
	}
	defer drainAndClose(resp)

	var env fileRecordEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("api: decoding encrypted upload response: %w", err)
	}

	return env.record(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// writeUploadForm writes the "file" part followed by the "file_path" field
// and closes the multipart writer.
func writeUploadForm(mw *multipart.Writer, filePath, name, contentType string, r io.Reader) error {
	if contentType == "" {
		contentType = DefaultContentType
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(name)))
	h.Set("Content-Type", contentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("creating file part: %w", err)
	}

	if _, err := io.Copy(part, r); err != nil {
		return fmt.Errorf("writing file part: %w", err)
	}

	if err := mw.WriteField("file_path", filePath); err != nil {
		return fmt.Errorf("writing file_path field: %w", err)
	}

	return mw.Close()
}

// ReserveUpload asks the backend for a presigned upload slot. The backend
// creates a pending file record; bytes are not stored until the slot's URL
// receives them. Not retried: every call allocates a record.
func (c *Client) ReserveUpload(ctx context.Context, filePath string, size int64) (*UploadSlot, error) {
	c.logger.Info("reserving upload slot",
		slog.String("file_path", filePath),
		slog.Int64("size", size),
	)

	var slot UploadSlot
	if err := c.doJSON(ctx, http.MethodPost, "/api/files/presigned", reserveRequest{FilePath: filePath, Size: size}, &slot); err != nil {
		return nil, fmt.Errorf("api: reserving upload slot: %w", err)
	}

	if slot.UploadURL == "" || slot.FileID == "" {
		return nil, ErrIncompleteSlot
	}

	c.logger.Debug("upload slot reserved", slog.String("file_id", slot.FileID))

	return &slot, nil
}

// FinalizeUpload marks a transferred file as available.
func (c *Client) FinalizeUpload(ctx context.Context, fileID string) error {
	c.logger.Info("finalizing upload", slog.String("file_id", fileID))

	if err := c.doJSON(ctx, http.MethodPost, "/api/files/"+url.PathEscape(fileID)+"/finalize", nil, nil); err != nil {
		return fmt.Errorf("api: finalizing %s: %w", fileID, err)
	}

	return nil
}
