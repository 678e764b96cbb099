package errutils

import (
	"errors"
	"fmt"
	"net/http"
)

// UpstreamRespError indicates a non-2xx response returned by the upstream server.
type UpstreamRespError struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (e *UpstreamRespError) Error() string {
	return fmt.Sprintf("upstream response error: status code %d, body %s", e.StatusCode, string(e.Body))
}

// UpstreamHTTPError indicates an error during the HTTP request to the upstream server,
// before any response was received (DNS failure, connection reset, timeout).
type UpstreamHTTPError struct {
	Err        error
	StatusCode int
}

func (e *UpstreamHTTPError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("upstream http error: err %s", e.Err.Error())
	}
	return fmt.Sprintf("upstream http error: status code %d, err %s", e.StatusCode, e.Err.Error())
}

func (e *UpstreamHTTPError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether a failed upstream call may succeed with a
// different credential. Transport errors and rate-limit/5xx responses rotate;
// everything else is tied to the request itself and must not be retried.
func IsRetryable(err error) bool {
	httpErr := &UpstreamHTTPError{}
	if errors.As(err, &httpErr) {
		return true
	}
	respErr := &UpstreamRespError{}
	if errors.As(err, &respErr) {
		return respErr.StatusCode == http.StatusTooManyRequests || respErr.StatusCode >= 500
	}
	return false
}
