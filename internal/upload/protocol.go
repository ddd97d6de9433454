package upload

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vaultbox/vaultbox-go/internal/api"
)

// protocolState is the position of a presigned upload in its
// reserve → transfer → finalize sequence.
type protocolState int

const (
	stateNew protocolState = iota
	stateReserved
	stateTransferred
	stateFinalized
	stateAbandoned
)

func (s protocolState) String() string {
	switch s {
	case stateNew:
		return "new"
	case stateReserved:
		return "reserved"
	case stateTransferred:
		return "transferred"
	case stateFinalized:
		return "finalized"
	case stateAbandoned:
		return "abandoned"
	default:
		return fmt.Sprintf("protocolState(%d)", int(s))
	}
}

// presignedUpload drives one non-encrypted upload. Each step is only legal
// from the state the previous step leaves behind, and any failure abandons
// the protocol so its slot can never be reused.
type presignedUpload struct {
	transport Transport
	logger    *slog.Logger
	filePath  string
	payload   *Payload

	state protocolState
	slot  *api.UploadSlot
	// fileID outlives the slot so failures can report the pending record.
	fileID string
}

func newPresignedUpload(t Transport, logger *slog.Logger, filePath string, p *Payload) *presignedUpload {
	return &presignedUpload{
		transport: t,
		logger:    logger,
		filePath:  filePath,
		payload:   p,
		state:     stateNew,
	}
}

// fail abandons the protocol and builds the phase error.
func (u *presignedUpload) fail(phase Phase, err error) error {
	u.logger.Warn("upload step failed",
		slog.String("phase", string(phase)),
		slog.String("file_path", u.filePath),
		slog.String("file_id", u.fileID),
		slog.String("state", u.state.String()),
		slog.String("error", err.Error()),
	)

	u.state = stateAbandoned
	u.slot = nil

	return &Error{Phase: phase, FilePath: u.filePath, FileID: u.fileID, Err: err}
}

func (u *presignedUpload) expect(want protocolState, phase Phase) error {
	if u.state != want {
		return u.fail(phase, fmt.Errorf("%w: %s from state %s", ErrOutOfOrder, phase, u.state))
	}

	return nil
}

// reserve obtains a presigned slot: new → reserved.
func (u *presignedUpload) reserve(ctx context.Context) error {
	if err := u.expect(stateNew, PhaseReserve); err != nil {
		return err
	}

	slot, err := u.transport.ReserveUpload(ctx, u.filePath, u.payload.Size)
	if err != nil {
		return u.fail(PhaseReserve, err)
	}

	u.slot = slot
	u.fileID = slot.FileID
	u.state = stateReserved

	return nil
}

// transfer PUTs the raw bytes to the slot URL: reserved → transferred.
func (u *presignedUpload) transfer(ctx context.Context) error {
	if err := u.expect(stateReserved, PhaseTransfer); err != nil {
		return err
	}

	contentType := u.payload.MimeType
	if contentType == "" {
		contentType = api.DefaultContentType
	}

	if err := u.transport.PutPresigned(ctx, u.slot.UploadURL, contentType, u.payload.Body, u.payload.Size); err != nil {
		return u.fail(PhaseTransfer, err)
	}

	u.state = stateTransferred

	return nil
}

// finalize promotes the record to available: transferred → finalized.
// The slot is discarded either way.
func (u *presignedUpload) finalize(ctx context.Context) error {
	if err := u.expect(stateTransferred, PhaseFinalize); err != nil {
		return err
	}

	if err := u.transport.FinalizeUpload(ctx, u.slot.FileID); err != nil {
		return u.fail(PhaseFinalize, err)
	}

	u.state = stateFinalized
	u.slot = nil

	return nil
}
