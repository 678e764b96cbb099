package errutils

import (
	"fmt"
	"net/http"
)

// HandlerError is an error produced inside a handler before (or instead of)
// any upstream call. Message and Type are what the caller sees; Err is the
// underlying cause kept for logging only.
type HandlerError struct {
	Err        error
	StatusCode int
	Message    string
	Type       string
}

func (e *HandlerError) Error() string {
	return e.Err.Error()
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

func NewHandlerError(err error, status int, errType, msg string) *HandlerError {
	return &HandlerError{
		Err:        err,
		StatusCode: status,
		Type:       errType,
		Message:    msg,
	}
}

// NewValidationError reports a request that is malformed in a way detected
// locally. Validation failures are never retried and never reach upstream.
func NewValidationError(msg string) *HandlerError {
	return &HandlerError{
		Err:        fmt.Errorf("invalid request: %s", msg),
		StatusCode: http.StatusBadRequest,
		Type:       ErrorTypeInvalidRequest,
		Message:    msg,
	}
}
