package errs

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Error codes. The leading digit matches the HTTP status class they map to.
const (
	CodeInvalidInput     = 4001 // request failed validation
	CodeStoreUnavailable = 5001 // data file missing or unreadable
	CodeUpstream         = 5002 // streaming platform call failed
	CodeUnknown          = 9999
)

const (
	Success = "success"
)

// Error is a coded error whose message is safe to hand back to an API caller.
// The optional cause keeps the underlying I/O or decode error for logging.
type Error struct {
	Code  int32
	Msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Msg + ": " + e.cause.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.cause
}

// UpstreamError reports a failed call to the streaming platform. StatusCode is
// zero when no HTTP response was received. Body holds whatever the platform sent
// back: a json.RawMessage when it parsed as JSON, otherwise a string.
type UpstreamError struct {
	StatusCode int
	Body       any
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("Request failed with status code %d", e.StatusCode)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// HasStatus reports whether an HTTP response was received at all.
func (e *UpstreamError) HasStatus() bool {
	return e.StatusCode != 0
}

// New returns a coded error with a fixed message.
func New(code int32, msg string) error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// InvalidInput builds a CodeInvalidInput error from a caller-facing message.
func InvalidInput(format string, args ...interface{}) error {
	return &Error{
		Code: CodeInvalidInput,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// StoreUnavailable wraps a file I/O failure behind a caller-facing message.
func StoreUnavailable(cause error, msg string) error {
	return &Error{
		Code:  CodeStoreUnavailable,
		Msg:   msg,
		cause: errors.WithStack(cause),
	}
}

// Upstream wraps a transport error or a non-2xx response.
func Upstream(cause error, statusCode int, body any) error {
	return &UpstreamError{
		StatusCode: statusCode,
		Body:       body,
		Err:        cause,
	}
}

// Code returns the code carried by e. Upstream failures report CodeUpstream,
// nil reports 0 and anything uncoded reports CodeUnknown.
func Code(e error) int32 {
	if e == nil {
		return 0
	}

	var upstream *UpstreamError
	if errors.As(e, &upstream) {
		return CodeUpstream
	}

	var err *Error
	if !errors.As(e, &err) || err == nil {
		return CodeUnknown
	}
	return err.Code
}

// Msg returns the caller-facing message for e. Unknown errors expose their text.
func Msg(e error) string {
	if e == nil {
		return Success
	}

	var upstream *UpstreamError
	if errors.As(e, &upstream) {
		return upstream.Error()
	}

	var err *Error
	if !errors.As(e, &err) || err == nil {
		return e.Error()
	}
	return err.Msg
}

// HTTPStatus maps an error onto the status code the API answers with.
func HTTPStatus(e error) int {
	switch Code(e) {
	case 0:
		return http.StatusOK
	case CodeInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// IsInvalidInput reports whether e should be answered with a 400.
func IsInvalidInput(e error) bool {
	return Code(e) == CodeInvalidInput
}

// Wrapf annotates err with a formatted message and a stack trace.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}
