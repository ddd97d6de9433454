// Package blob tracks transient in-memory byte handles: short-lived stand-ins
// for downloaded content that must be released once the action consuming
// them has finished.
package blob

import (
	"fmt"
	"log/slog"
	"sync"
)

// Handle is a live reference to a buffered payload. Its data is only valid
// until the handle is released.
type Handle struct {
	id   uint64
	data []byte
}

// ID identifies the handle within its registry.
func (h *Handle) ID() uint64 { return h.id }

// Bytes returns the payload. Nil once released.
func (h *Handle) Bytes() []byte { return h.data }

// Size returns the payload length.
func (h *Handle) Size() int { return len(h.data) }

// Registry issues and reclaims handles. Safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	nextID uint64
	live   map[uint64]*Handle
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		live:   make(map[uint64]*Handle),
		logger: logger,
	}
}

// Acquire registers data and returns its handle. Every Acquire must be
// paired with Release; prefer With.
func (r *Registry) Acquire(data []byte) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	h := &Handle{id: r.nextID, data: data}
	r.live[h.id] = h

	r.logger.Debug("blob acquired",
		slog.Uint64("handle", h.id),
		slog.Int("bytes", len(data)),
	)

	return h
}

// Release drops the handle and its data. Releasing twice is a no-op.
func (r *Registry) Release(h *Handle) {
	if h == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.live[h.id]; !ok {
		return
	}

	delete(r.live, h.id)
	h.data = nil

	r.logger.Debug("blob released", slog.Uint64("handle", h.id))
}

// With acquires a handle for data, runs consume, and releases the handle on
// every exit path: normal return, error, or panic (which is re-raised after
// release).
func (r *Registry) With(data []byte, consume func(*Handle) error) error {
	h := r.Acquire(data)
	defer r.Release(h)

	if err := consume(h); err != nil {
		return fmt.Errorf("consuming blob %d: %w", h.id, err)
	}

	return nil
}

// Live returns the number of handles not yet released.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.live)
}
