// Package upload transfers local files to the backend using one of two
// strategies: a single encrypted multipart request, or a presigned
// reserve → transfer → finalize protocol that sends the bytes straight to
// storage.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vaultbox/vaultbox-go/internal/api"
	"github.com/vaultbox/vaultbox-go/internal/naming"
)

// Transport is the subset of the backend client the coordinator needs.
// *api.Client satisfies it.
type Transport interface {
	UploadEncrypted(ctx context.Context, filePath, name, contentType string, r io.Reader) (*api.FileRecord, error)
	ReserveUpload(ctx context.Context, filePath string, size int64) (*api.UploadSlot, error)
	PutPresigned(ctx context.Context, uploadURL, contentType string, r io.Reader, size int64) error
	FinalizeUpload(ctx context.Context, fileID string) error
}

// Payload is the local content being uploaded.
type Payload struct {
	Name     string
	Size     int64
	MimeType string // empty means application/octet-stream
	Body     io.Reader
}

// Request asks for one payload to be stored under DestinationPath, a
// folder path ("" is the root).
type Request struct {
	Payload         *Payload
	DestinationPath string
	Encrypt         bool
}

// Report describes one finished upload attempt, successful or not.
type Report struct {
	AttemptID  string
	FilePath   string
	Size       int64
	Encrypted  bool
	FileID     string
	Phase      Phase // PhaseDone on success, otherwise the failing phase
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Recorder persists upload reports. A recording failure never changes the
// upload's result.
type Recorder interface {
	RecordUpload(ctx context.Context, r Report) error
}

// ChangeFunc is called after a successful upload so the caller can refresh
// its view of the file list.
type ChangeFunc func(ctx context.Context) error

// Coordinator runs uploads. It holds no per-upload state, so one
// Coordinator may serve concurrent uploads.
type Coordinator struct {
	transport Transport
	logger    *slog.Logger
	onChange  ChangeFunc
	recorder  Recorder
	nowFunc   func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithOnChange registers the file-list-changed hook.
func WithOnChange(fn ChangeFunc) Option {
	return func(c *Coordinator) { c.onChange = fn }
}

// WithRecorder registers a recorder for upload reports.
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) { c.recorder = r }
}

// NewCoordinator creates a Coordinator over the given transport.
func NewCoordinator(t Transport, logger *slog.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Coordinator{
		transport: t,
		logger:    logger,
		nowFunc:   time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Upload stores one payload. Encrypted requests are a single multipart call;
// others reserve a presigned slot, transfer the bytes to it, then finalize.
// Failures are *Error values whose phase tells whether bytes were stored.
// Nothing is retried.
func (c *Coordinator) Upload(ctx context.Context, req Request) (*api.FileRecord, error) {
	started := c.nowFunc()
	report := Report{
		AttemptID: uuid.NewString(),
		Encrypted: req.Encrypt,
		StartedAt: started,
	}

	rec, err := c.upload(ctx, req, &report)

	report.FinishedAt = c.nowFunc()
	report.Phase = PhaseOf(err)
	report.Err = err

	var ue *Error
	if errors.As(err, &ue) {
		report.FileID = ue.FileID
	}

	c.record(ctx, &report)

	if err != nil {
		return nil, err
	}

	c.logger.Info("upload complete",
		slog.String("attempt_id", report.AttemptID),
		slog.String("file_path", report.FilePath),
		slog.String("file_id", rec.ID),
		slog.Bool("encrypted", req.Encrypt),
		slog.Int64("size", report.Size),
		slog.Duration("elapsed", report.FinishedAt.Sub(started)),
	)

	c.notifyChange(ctx)

	return rec, nil
}

func (c *Coordinator) upload(ctx context.Context, req Request, report *Report) (*api.FileRecord, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	p := req.Payload
	filePath := naming.JoinPath(req.DestinationPath, p.Name)

	report.FilePath = filePath
	report.Size = p.Size

	if req.Encrypt {
		return c.uploadEncrypted(ctx, filePath, p)
	}

	rec, err := c.uploadPresigned(ctx, filePath, p)
	if rec != nil {
		report.FileID = rec.ID
	}

	return rec, err
}

// validate checks the payload before any network call.
func validate(req Request) error {
	p := req.Payload

	switch {
	case p == nil || p.Body == nil:
		return &Error{Phase: PhaseValidation, Err: errors.New("no payload")}
	case p.Size <= 0:
		return &Error{Phase: PhaseValidation, FilePath: p.Name, Err: errors.New("payload is empty")}
	case p.Name == "" || strings.ContainsAny(p.Name, `/\`):
		return &Error{Phase: PhaseValidation, FilePath: p.Name, Err: fmt.Errorf("invalid file name %q", p.Name)}
	default:
		return nil
	}
}

func (c *Coordinator) uploadEncrypted(ctx context.Context, filePath string, p *Payload) (*api.FileRecord, error) {
	c.logger.Debug("uploading with server-side encryption", slog.String("file_path", filePath))

	rec, err := c.transport.UploadEncrypted(ctx, filePath, p.Name, p.MimeType, p.Body)
	if err != nil {
		c.logger.Warn("encrypted upload failed",
			slog.String("file_path", filePath),
			slog.String("error", err.Error()),
		)

		return nil, &Error{Phase: PhaseEncrypted, FilePath: filePath, Err: err}
	}

	return rec, nil
}

func (c *Coordinator) uploadPresigned(ctx context.Context, filePath string, p *Payload) (*api.FileRecord, error) {
	c.logger.Debug("uploading through presigned slot", slog.String("file_path", filePath))

	u := newPresignedUpload(c.transport, c.logger, filePath, p)

	if err := u.reserve(ctx); err != nil {
		return nil, err
	}

	if err := u.transfer(ctx); err != nil {
		// The pending record is left for the backend to collect.
		return nil, err
	}

	if err := u.finalize(ctx); err != nil {
		return nil, err
	}

	return &api.FileRecord{
		ID:       u.fileID,
		FilePath: filePath,
		Size:     p.Size,
		Status:   api.StatusUploaded,
	}, nil
}

func (c *Coordinator) notifyChange(ctx context.Context) {
	if c.onChange == nil {
		return
	}

	if err := c.onChange(ctx); err != nil {
		c.logger.Warn("refreshing file list after upload failed",
			slog.String("error", err.Error()),
		)
	}
}

func (c *Coordinator) record(ctx context.Context, r *Report) {
	if c.recorder == nil {
		return
	}

	if err := c.recorder.RecordUpload(ctx, *r); err != nil {
		c.logger.Warn("recording upload failed",
			slog.String("attempt_id", r.AttemptID),
			slog.String("error", err.Error()),
		)
	}
}

// Result pairs one request of UploadMany with its outcome.
type Result struct {
	Record *api.FileRecord
	Err    error
}

// UploadMany runs independent uploads with at most workers in flight.
// One upload failing does not stop the others. Results are in request order.
func (c *Coordinator) UploadMany(ctx context.Context, reqs []Request, workers int) []Result {
	if workers < 1 {
		workers = 1
	}

	results := make([]Result, len(reqs))

	var g errgroup.Group
	g.SetLimit(workers)

	for i := range reqs {
		g.Go(func() error {
			rec, err := c.Upload(ctx, reqs[i])
			results[i] = Result{Record: rec, Err: err}

			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // workers never return errors; failures live in results

	return results
}
