package share

import (
	"encoding/json"
	"net/http"

	"github.com/vaultbox/vaultbox-go/internal/api"
	"github.com/vaultbox/vaultbox-go/internal/naming"
)

// codePasswordRequired is the backend's challenge code on a 401.
const codePasswordRequired = "password_required"

// shareDocument is the JSON shape shared by redirects, errors and challenges.
type shareDocument struct {
	Redirect string `json:"redirect"`
	Error    string `json:"error"`
}

// policy carries what differs between resolving a token and validating a
// password: the failure reported when a response cannot be interpreted, and
// whether a non-JSON error status counts as content.
type policy struct {
	name          string
	fallback      Failure
	message       string
	rejectErrBody bool
}

var (
	resolvePolicy  = policy{name: "resolve", fallback: FailureLinkInvalid, message: MsgLinkInvalid}
	validatePolicy = policy{name: "validate", fallback: FailureInvalidPassword, message: MsgInvalidPassword, rejectErrBody: true}
)

func (p policy) failed() Outcome {
	return Failed(p.fallback, p.message)
}

// parseDocument decodes body as a UTF-8 JSON share document.
func parseDocument(body []byte) (shareDocument, bool) {
	var doc shareDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return shareDocument{}, false
	}

	return doc, true
}

// negotiate interprets one share response by status code, then declared
// content type.
func negotiate(resp *api.RawResponse, p policy) Outcome {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		doc, ok := parseDocument(resp.Body)
		if ok && doc.Error == codePasswordRequired {
			return PasswordRequired()
		}

		return Failed(FailureUnauthorized, MsgUnauthorized)

	case http.StatusForbidden:
		// The link itself is refused, whichever step asked.
		doc, ok := parseDocument(resp.Body)
		if ok && doc.Error != "" {
			return Failed(FailureLinkInvalid, doc.Error)
		}

		return Failed(FailureLinkInvalid, MsgLinkInvalid)
	}

	if resp.IsJSON() {
		doc, ok := parseDocument(resp.Body)

		switch {
		case !ok:
			return p.failed()
		case doc.Redirect != "":
			return Redirected(doc.Redirect)
		case doc.Error != "":
			return Failed(p.fallback, doc.Error)
		default:
			return Failed(FailureUnexpectedResponse, MsgUnexpectedResponse)
		}
	}

	// Resolve hands any other non-JSON body over as content.
	if p.rejectErrBody && !resp.IsSuccess() {
		return p.failed()
	}

	filename := naming.ExtractFilename(resp.Disposition(), naming.DefaultShareFilename)

	return Downloaded(filename, resp.Body)
}
