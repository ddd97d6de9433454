package share

import "fmt"

// Kind is the variant of an Outcome.
type Kind int

// Outcome variants.
const (
	KindFailed Kind = iota
	KindDownloaded
	KindRedirected
	KindPasswordRequired
)

func (k Kind) String() string {
	switch k {
	case KindDownloaded:
		return "downloaded"
	case KindRedirected:
		return "redirected"
	case KindPasswordRequired:
		return "password_required"
	case KindFailed:
		return "failed"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Failure classifies a failed outcome.
type Failure int

// Failure classes. FailureNone is used for non-failed outcomes.
const (
	FailureNone Failure = iota
	FailureUnauthorized
	FailureLinkInvalid
	FailureInvalidPassword
	FailureUnexpectedResponse
)

func (f Failure) String() string {
	switch f {
	case FailureNone:
		return "none"
	case FailureUnauthorized:
		return "unauthorized"
	case FailureLinkInvalid:
		return "link_invalid"
	case FailureInvalidPassword:
		return "invalid_password"
	case FailureUnexpectedResponse:
		return "unexpected_response"
	default:
		return fmt.Sprintf("Failure(%d)", int(f))
	}
}

// User-facing failure messages.
const (
	MsgUnauthorized       = "Unauthorized"
	MsgLinkInvalid        = "Link invalid or expired"
	MsgInvalidPassword    = "Invalid password, please try again"
	MsgUnexpectedResponse = "Unexpected response"
)

// Outcome is the immutable result of one resolution attempt: exactly one of
// Downloaded, Redirected, PasswordRequired or Failed.
type Outcome struct {
	kind     Kind
	filename string
	data     []byte
	url      string
	failure  Failure
	reason   string
}

// Downloaded is the outcome carrying file bytes and their filename.
func Downloaded(filename string, data []byte) Outcome {
	return Outcome{kind: KindDownloaded, filename: filename, data: data}
}

// Redirected is the outcome pointing at a pre-authorized download URL.
func Redirected(url string) Outcome {
	return Outcome{kind: KindRedirected, url: url}
}

// PasswordRequired is the outcome asking for a share password.
func PasswordRequired() Outcome {
	return Outcome{kind: KindPasswordRequired}
}

// Failed is a terminal failure with a short user-facing reason.
func Failed(f Failure, reason string) Outcome {
	return Outcome{kind: KindFailed, failure: f, reason: reason}
}

// Kind returns the variant.
func (o Outcome) Kind() Kind { return o.kind }

// Filename is set for Downloaded.
func (o Outcome) Filename() string { return o.filename }

// Data is set for Downloaded. Callers must not modify it.
func (o Outcome) Data() []byte { return o.data }

// URL is set for Redirected. It embeds its own authorization; never log it.
func (o Outcome) URL() string { return o.url }

// Failure is set for Failed.
func (o Outcome) Failure() Failure { return o.failure }

// Reason is the user-facing message of a Failed outcome.
func (o Outcome) Reason() string { return o.reason }

// State is the terminal resolver state this outcome corresponds to.
func (o Outcome) State() State {
	switch o.kind {
	case KindDownloaded:
		return StateDownloaded
	case KindRedirected:
		return StateRedirected
	case KindPasswordRequired:
		return StatePasswordRequired
	default:
		return StateFailed
	}
}

// String describes the outcome without exposing URLs or content.
func (o Outcome) String() string {
	switch o.kind {
	case KindDownloaded:
		return fmt.Sprintf("downloaded(%s, %d bytes)", o.filename, len(o.data))
	case KindRedirected:
		return "redirected"
	case KindPasswordRequired:
		return "password_required"
	default:
		return fmt.Sprintf("failed(%s: %s)", o.failure, o.reason)
	}
}
