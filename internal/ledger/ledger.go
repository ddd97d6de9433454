// Package ledger keeps a local SQLite history of upload attempts, so the
// user can see which uploads left a pending record behind (transfer failed)
// or stored bytes that never became visible (finalize failed).
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".

	"github.com/vaultbox/vaultbox-go/internal/upload"
)

// DefaultLimit is the number of entries Recent returns when asked for none.
const DefaultLimit = 20

// Entry is one recorded upload attempt.
type Entry struct {
	AttemptID  string
	FilePath   string
	Size       int64
	Encrypted  bool
	FileID     string
	Phase      upload.Phase
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Succeeded reports whether the attempt completed.
func (e *Entry) Succeeded() bool {
	return e.Phase == upload.PhaseDone
}

// Store is the SQLite-backed ledger. Safe for concurrent use.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the ledger at dbPath and migrates it.
// Use ":memory:" for tests.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Debug("opening upload ledger", slog.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("ledger: open sqlite: %w", err)
	}

	// A single connection keeps ":memory:" databases alive and serializes
	// writers.
	db.SetMaxOpenConns(1)

	if err := setPragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, logger: logger}, nil
}

func setPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("ledger: %s: %w", p, err)
		}
	}

	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

const sqlInsert = `INSERT INTO uploads
	(attempt_id, file_path, size, encrypted, file_id, phase, error, started_at, finished_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

const sqlColumns = `attempt_id, file_path, size, encrypted, file_id, phase, error, started_at, finished_at`

// Record stores one entry.
func (s *Store) Record(ctx context.Context, e *Entry) error {
	_, err := s.db.ExecContext(ctx, sqlInsert,
		e.AttemptID, e.FilePath, e.Size, e.Encrypted, e.FileID, string(e.Phase), e.Error,
		e.StartedAt.UnixNano(), e.FinishedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("ledger: recording %s: %w", e.AttemptID, err)
	}

	return nil
}

// RecordUpload implements upload.Recorder.
func (s *Store) RecordUpload(ctx context.Context, r upload.Report) error {
	e := &Entry{
		AttemptID:  r.AttemptID,
		FilePath:   r.FilePath,
		Size:       r.Size,
		Encrypted:  r.Encrypted,
		FileID:     r.FileID,
		Phase:      r.Phase,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}

	if r.Err != nil {
		e.Error = r.Err.Error()
	}

	return s.Record(ctx, e)
}

// Recent returns the latest entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	return s.query(ctx, `SELECT `+sqlColumns+` FROM uploads ORDER BY finished_at DESC LIMIT ?`, limit)
}

// Orphans returns failed transfers that left a pending record behind for
// the backend to collect.
func (s *Store) Orphans(ctx context.Context) ([]Entry, error) {
	return s.query(ctx, `SELECT `+sqlColumns+` FROM uploads
		WHERE phase = ? AND file_id != '' ORDER BY finished_at DESC`, string(upload.PhaseTransfer))
}

// Unfinalized returns uploads whose bytes were stored but whose finalize
// call failed, so the file never became visible.
func (s *Store) Unfinalized(ctx context.Context) ([]Entry, error) {
	return s.query(ctx, `SELECT `+sqlColumns+` FROM uploads
		WHERE phase = ? ORDER BY finished_at DESC`, string(upload.PhaseFinalize))
}

// Get returns one entry by attempt ID.
func (s *Store) Get(ctx context.Context, attemptID string) (*Entry, error) {
	entries, err := s.query(ctx, `SELECT `+sqlColumns+` FROM uploads WHERE attempt_id = ?`, attemptID)
	if err != nil {
		return nil, err
	}

	if len(entries) == 0 {
		return nil, sql.ErrNoRows
	}

	return &entries[0], nil
}

// Prune deletes entries that finished before cutoff and returns how many
// were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM uploads WHERE finished_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("ledger: pruning: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("ledger: pruning: %w", err)
	}

	if n > 0 {
		s.logger.Debug("pruned upload ledger", slog.Int64("rows", n))
	}

	return n, nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: querying: %w", err)
	}
	defer rows.Close()

	var out []Entry

	for rows.Next() {
		var (
			e                 Entry
			phase             string
			started, finished int64
		)

		if err := rows.Scan(&e.AttemptID, &e.FilePath, &e.Size, &e.Encrypted, &e.FileID,
			&phase, &e.Error, &started, &finished); err != nil {
			return nil, fmt.Errorf("ledger: scanning: %w", err)
		}

		e.Phase = upload.Phase(phase)
		e.StartedAt = time.Unix(0, started)
		e.FinishedAt = time.Unix(0, finished)
		out = append(out, e)
	}

	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ledger: iterating: %w", err)
	}

	return out, nil
}
