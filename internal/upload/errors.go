package upload

import (
	"errors"
	"fmt"
)

// Phase names the step of an upload an outcome refers to.
type Phase string

// Upload phases. PhaseDone marks a completed upload.
const (
	PhaseValidation Phase = "validation"
	PhaseReserve    Phase = "reserve"
	PhaseTransfer   Phase = "transfer"
	PhaseFinalize   Phase = "finalize"
	PhaseEncrypted  Phase = "encrypted"
	PhaseDone       Phase = "done"
)

// Sentinel errors, one per failure phase. Use errors.Is to tell them apart:
// only ErrFinalizeFailed means the bytes reached storage.
var (
	ErrValidation            = errors.New("upload: no file selected")
	ErrReserveFailed         = errors.New("upload: reserving upload slot failed")
	ErrTransferFailed        = errors.New("upload: transferring bytes failed")
	ErrFinalizeFailed        = errors.New("upload: finalizing upload failed")
	ErrEncryptedUploadFailed = errors.New("upload: encrypted upload failed")
)

// ErrOutOfOrder is wrapped when a protocol step is invoked from the wrong state.
var ErrOutOfOrder = errors.New("upload: protocol step out of order")

func (p Phase) sentinel() error {
	switch p {
	case PhaseValidation:
		return ErrValidation
	case PhaseReserve:
		return ErrReserveFailed
	case PhaseTransfer:
		return ErrTransferFailed
	case PhaseFinalize:
		return ErrFinalizeFailed
	case PhaseEncrypted:
		return ErrEncryptedUploadFailed
	default:
		return nil
	}
}

// Error is a failed upload: the phase that failed, the remote path, the
// backend file ID when one was reserved, and the underlying cause.
type Error struct {
	Phase    Phase
	FilePath string
	FileID   string
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s", e.Phase.sentinel(), e.FilePath)
	}

	return fmt.Sprintf("%v: %s: %v", e.Phase.sentinel(), e.FilePath, e.Err)
}

// Unwrap exposes both the phase sentinel and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Phase.sentinel(); s != nil {
		errs = append(errs, s)
	}

	if e.Err != nil {
		errs = append(errs, e.Err)
	}

	return errs
}

// BytesStored reports whether the payload reached storage despite the
// failure: true only when finalize failed after a successful transfer.
func (e *Error) BytesStored() bool {
	return e.Phase == PhaseFinalize
}

// PhaseOf returns the failing phase of err, PhaseDone for nil, or "" when
// err is not an upload error.
func PhaseOf(err error) Phase {
	if err == nil {
		return PhaseDone
	}

	var ue *Error
	if errors.As(err, &ue) {
		return ue.Phase
	}

	return ""
}
