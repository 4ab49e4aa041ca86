package transport

import (
	"encoding/json"
	"fmt"
)

// UnknownItem is the item identifier used when the identifier of a batch
// item could not be derived. It is distinct from a genuine failure: the call
// itself may have succeeded, we just cannot say which item it was for.
const UnknownItem = "unknown"

// Result is the terminal outcome of one logical item (or of a whole single
// request). It is a closed set: Success, FailedResponse, FailedRequest and
// MissingItem are the only implementations, so consumers can switch over the
// concrete type exhaustively.
type Result interface {
	// Item returns the identifier of the item this result belongs to,
	// or UnknownItem when it could not be derived.
	Item() string

	// OK reports whether the result is a success.
	OK() bool

	sealed()
}

// Success is a terminal 2xx outcome.
type Success struct {
	// ItemID is the identifier of the item that succeeded.
	ItemID string

	// StatusCode is the HTTP status code of the response.
	StatusCode int

	// Body is the raw response body.
	Body []byte
}

// FailedResponse is a terminal failure for which an HTTP response was
// obtained. Detail carries the platform's structured error envelope when the
// response contained one.
type FailedResponse struct {
	// ItemID is the identifier of the item that failed.
	ItemID string

	// StatusCode is the HTTP status code of the response.
	StatusCode int

	// Detail is the parsed platform error envelope, if present.
	Detail *ErrorDetail

	// Body is the raw response body, kept for envelopes that failed to parse.
	Body []byte
}

// FailedRequest is a terminal failure for which no HTTP response was
// obtained at all (connect failure, read timeout, or a non-retryable
// transport error).
type FailedRequest struct {
	// ItemID is the identifier of the item that failed.
	ItemID string

	// Cause classifies the transport-level failure.
	Cause FailureCause

	// Reason is the transport-level error string.
	Reason string
}

// MissingItem marks an item the server did not echo back in an otherwise
// successful batch response. Server and client item counts can legitimately
// diverge, so this is its own terminal state rather than a success or a
// failure.
type MissingItem struct {
	// ItemID is the identifier of the item the server did not report on.
	ItemID string

	// StatusCode is the HTTP status code of the batch response.
	StatusCode int
}

func (r Success) Item() string        { return r.ItemID }
func (r FailedResponse) Item() string { return r.ItemID }
func (r FailedRequest) Item() string  { return r.ItemID }
func (r MissingItem) Item() string    { return r.ItemID }

func (r Success) OK() bool        { return true }
func (r FailedResponse) OK() bool { return false }
func (r FailedRequest) OK() bool  { return false }
func (r MissingItem) OK() bool    { return false }

func (Success) sealed()        {}
func (FailedResponse) sealed() {}
func (FailedRequest) sealed()  {}
func (MissingItem) sealed()    {}

// Error renders a FailedResponse for logs and run reports.
func (r FailedResponse) Error() string {
	if r.Detail != nil {
		return fmt.Sprintf("status %d: %s", r.StatusCode, r.Detail.Message)
	}
	return fmt.Sprintf("status %d: %s", r.StatusCode, truncate(r.Body, 256))
}

// Error renders a FailedRequest for logs and run reports.
func (r FailedRequest) Error() string {
	return fmt.Sprintf("%s failure: %s", r.Cause, r.Reason)
}

// FailureCause classifies a transport-level error. Connect and read failures
// are retried independently, each with its own attempt counter and ceiling;
// anything else is terminal.
type FailureCause string

const (
	// CauseConnect means the server could not be reached at all.
	CauseConnect FailureCause = "connect"

	// CauseRead means the connection was established but the response never
	// arrived (read or overall timeout).
	CauseRead FailureCause = "read"

	// CauseFatal means a non-retryable transport error.
	CauseFatal FailureCause = "fatal"
)

// ErrorDetail is the platform's uniform error envelope body.
type ErrorDetail struct {
	// Code is the platform error code.
	Code int `json:"code"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Missing lists identifiers the server expected but did not receive.
	Missing []string `json:"missing,omitempty"`

	// Duplicated lists identifiers that appeared more than once.
	Duplicated []string `json:"duplicated,omitempty"`
}

// errorEnvelope is the wire shape of a platform error response.
type errorEnvelope struct {
	Error *ErrorDetail `json:"error"`
}

// parseErrorDetail extracts the platform error envelope from a response
// body. It returns nil when the body is absent, malformed, or not an
// envelope; callers fall back to the raw status and body in that case.
func parseErrorDetail(body []byte) *ErrorDetail {
	if len(body) == 0 {
		return nil
	}
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil
	}
	if env.Error == nil || (env.Error.Code == 0 && env.Error.Message == "") {
		return nil
	}
	return env.Error
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
