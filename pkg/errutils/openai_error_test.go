package errutils

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&UpstreamHTTPError{Err: errors.New("connection reset")}))
	assert.True(t, IsRetryable(&UpstreamRespError{StatusCode: http.StatusTooManyRequests}))
	assert.True(t, IsRetryable(&UpstreamRespError{StatusCode: http.StatusInternalServerError}))
	assert.True(t, IsRetryable(&UpstreamRespError{StatusCode: http.StatusServiceUnavailable}))

	assert.False(t, IsRetryable(&UpstreamRespError{StatusCode: http.StatusBadRequest}))
	assert.False(t, IsRetryable(&UpstreamRespError{StatusCode: http.StatusUnauthorized}))
	assert.False(t, IsRetryable(&UpstreamRespError{StatusCode: http.StatusNotFound}))
	assert.False(t, IsRetryable(NewValidationError("model is required")))
	assert.False(t, IsRetryable(errors.New("plain error")))
}

func TestIsRetryable_Wrapped(t *testing.T) {
	err := fmt.Errorf("chat completions: %w", &UpstreamRespError{StatusCode: http.StatusBadGateway})
	assert.True(t, IsRetryable(err))
}

func TestTranslate_ValidationError(t *testing.T) {
	status, body := Translate(NewValidationError("you must provide a model parameter"))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "you must provide a model parameter", body.Error.Message)
	assert.Equal(t, ErrorTypeInvalidRequest, body.Error.Type)
}

func TestTranslate_UpstreamErrorBodyPassthrough(t *testing.T) {
	status, body := Translate(&UpstreamRespError{
		StatusCode: http.StatusTooManyRequests,
		Body:       []byte(`{"error":{"message":"quota exceeded","type":"rate_limit_error","code":"rate_limit_exceeded"}}`),
	})
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "quota exceeded", body.Error.Message)
	assert.Equal(t, ErrorTypeRateLimit, body.Error.Type)
	assert.Equal(t, "rate_limit_exceeded", body.Error.Code)
}

func TestTranslate_UpstreamGarbageBodyNotLeaked(t *testing.T) {
	status, body := Translate(&UpstreamRespError{
		StatusCode: http.StatusInternalServerError,
		Body:       []byte("<html>stack trace</html>"),
	})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.NotContains(t, body.Error.Message, "stack trace")
	assert.Equal(t, ErrorTypeAPI, body.Error.Type)
}

func TestTranslate_TransportError(t *testing.T) {
	status, body := Translate(&UpstreamHTTPError{Err: errors.New("dial tcp: i/o timeout")})
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, ErrorTypeAPI, body.Error.Type)
	assert.NotContains(t, body.Error.Message, "dial tcp")
}

func TestTranslate_UnknownError(t *testing.T) {
	status, body := Translate(errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal server error", body.Error.Message)
}

func TestSSEErrorBody(t *testing.T) {
	b := SSEErrorBody(NewValidationError("bad input"))
	assert.JSONEq(t, `{"error":{"message":"bad input","type":"invalid_request_error"}}`, string(b))
}
