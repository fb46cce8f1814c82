package resource

import (
	"errors"
	"fmt"
)

// Stable pipeline error codes surfaced to callers.
const (
	CodeRecursiveRequest = "EREQRECUR"
	CodeMissingID        = "ENOIDP"
	CodeNoHandler        = "ENOHANDLER"
	CodeFormLoad         = "EFORMLOAD"
	CodeSubmissionLoad   = "ESUBLOAD"
)

// Error is a fatal pipeline failure carrying a stable code. Two Errors
// compare equal under errors.Is when their codes match, so callers can test
// for a code with a bare &Error{Code: ...} target.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the pipeline error code from an error chain, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
