// Package share resolves share links. One share endpoint answers with file
// bytes, a JSON redirect to storage, a JSON error, or a password challenge;
// the resolver turns each response into exactly one Outcome.
package share

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/vaultbox/vaultbox-go/internal/api"
	"github.com/vaultbox/vaultbox-go/internal/blob"
)

// ErrNotDownloaded is returned by Deliver for outcomes without content.
var ErrNotDownloaded = errors.New("share: outcome has no content")

// State is a resolver attempt's position in its lifecycle.
type State int

// Attempt states. PasswordRequired waits for Submit; the other terminal
// states end the attempt.
const (
	StateIdle State = iota
	StateResolving
	StateDownloaded
	StateRedirected
	StatePasswordRequired
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateDownloaded:
		return "downloaded"
	case StateRedirected:
		return "redirected"
	case StatePasswordRequired:
		return "password_required"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether s ends an attempt.
func (s State) Terminal() bool {
	return s >= StateDownloaded
}

// Transport is the subset of the backend client the resolver needs.
// *api.Client satisfies it.
type Transport interface {
	FetchShare(ctx context.Context, token string) (*api.RawResponse, error)
	ValidateShare(ctx context.Context, token, password string) (*api.RawResponse, error)
}

// Session is the input of one attempt. Password is set only after a
// challenge.
type Session struct {
	Token    string
	Password *string
}

// attempt is the working state of one resolution. It lives for a single
// Resolve or Submit call and is never shared.
type attempt struct {
	id      uint64
	session Session
	policy  policy
	state   State
	logger  *slog.Logger
}

func (a *attempt) transition(to State) {
	a.logger.Debug("share attempt transition",
		slog.Uint64("attempt", a.id),
		slog.String("from", a.state.String()),
		slog.String("to", to.String()),
	)

	a.state = to
}

// Resolver resolves share tokens. It keeps no state between calls, so
// concurrent calls are independent.
type Resolver struct {
	transport Transport
	blobs     *blob.Registry
	logger    *slog.Logger
	attempts  atomic.Uint64
}

// NewResolver creates a Resolver. blobs holds downloaded content while it
// is being delivered; nil creates a private registry.
func NewResolver(t Transport, blobs *blob.Registry, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}

	if blobs == nil {
		blobs = blob.NewRegistry(logger)
	}

	return &Resolver{transport: t, blobs: blobs, logger: logger}
}

// Resolve fetches a share token's content.
func (r *Resolver) Resolve(ctx context.Context, token string) Outcome {
	a := r.begin(Session{Token: token}, resolvePolicy)

	return r.run(a, func() (*api.RawResponse, error) {
		return r.transport.FetchShare(ctx, token)
	})
}

// Submit answers a password challenge. It starts a fresh attempt; nothing
// carries over from the Resolve that produced the challenge.
func (r *Resolver) Submit(ctx context.Context, token, password string) Outcome {
	a := r.begin(Session{Token: token, Password: &password}, validatePolicy)

	return r.run(a, func() (*api.RawResponse, error) {
		return r.transport.ValidateShare(ctx, token, password)
	})
}

func (r *Resolver) begin(s Session, p policy) *attempt {
	return &attempt{
		id:      r.attempts.Add(1),
		session: s,
		policy:  p,
		state:   StateIdle,
		logger:  r.logger,
	}
}

func (r *Resolver) run(a *attempt, fetch func() (*api.RawResponse, error)) Outcome {
	a.transition(StateResolving)

	resp, err := fetch()
	if err != nil {
		// Network faults read as a bad link (or bad password) to the user;
		// the cause is only logged.
		r.logger.Warn("share request failed",
			slog.Uint64("attempt", a.id),
			slog.String("step", a.policy.name),
			slog.String("error", err.Error()),
		)

		out := a.policy.failed()
		a.transition(out.State())

		return out
	}

	out := negotiate(resp, a.policy)
	a.transition(out.State())

	r.logger.Info("share resolved",
		slog.Uint64("attempt", a.id),
		slog.String("step", a.policy.name),
		slog.Bool("with_password", a.session.Password != nil),
		slog.Int("status", resp.StatusCode),
		slog.String("outcome", out.String()),
	)

	return out
}

// Deliver hands a Downloaded outcome's bytes to save through a transient
// handle that is released when save returns, whatever the result.
func (r *Resolver) Deliver(o Outcome, save func(filename string, h *blob.Handle) error) error {
	if o.Kind() != KindDownloaded {
		return fmt.Errorf("%w: %s", ErrNotDownloaded, o.Kind())
	}

	err := r.blobs.With(o.Data(), func(h *blob.Handle) error {
		return save(o.Filename(), h)
	})

	r.logger.Debug("share content delivered",
		slog.String("filename", o.Filename()),
		slog.Int("live_blobs", r.blobs.Live()),
	)

	return err
}
