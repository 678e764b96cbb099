package errutils

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// OpenAI-compatible error type strings.
const (
	ErrorTypeInvalidRequest = "invalid_request_error"
	ErrorTypeAuthentication = "authentication_error"
	ErrorTypeRateLimit      = "rate_limit_error"
	ErrorTypeAPI            = "api_error"
)

type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

// ErrorBody is the OpenAI-compatible error envelope returned on every failure,
// both as an HTTP response body and as an in-band SSE error event.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

func typeForStatus(status int) string {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrorTypeAuthentication
	case status == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case status >= 400 && status < 500:
		return ErrorTypeInvalidRequest
	default:
		return ErrorTypeAPI
	}
}

// Translate converts any handler-level failure into an HTTP status and an
// OpenAI-shaped error body. Raw internal errors are never passed through:
// upstream bodies are forwarded only when they already carry the standard
// {"error": {...}} envelope.
func Translate(err error) (int, ErrorBody) {
	handlerErr := &HandlerError{}
	if errors.As(err, &handlerErr) {
		return handlerErr.StatusCode, ErrorBody{Error: ErrorDetail{
			Message: handlerErr.Message,
			Type:    handlerErr.Type,
		}}
	}

	respErr := &UpstreamRespError{}
	if errors.As(err, &respErr) {
		var body ErrorBody
		if json.Unmarshal(respErr.Body, &body) == nil && body.Error.Message != "" {
			if body.Error.Type == "" {
				body.Error.Type = typeForStatus(respErr.StatusCode)
			}
			return respErr.StatusCode, body
		}
		return respErr.StatusCode, ErrorBody{Error: ErrorDetail{
			Message: "upstream returned status " + http.StatusText(respErr.StatusCode),
			Type:    typeForStatus(respErr.StatusCode),
		}}
	}

	httpErr := &UpstreamHTTPError{}
	if errors.As(err, &httpErr) {
		return http.StatusBadGateway, ErrorBody{Error: ErrorDetail{
			Message: "upstream request failed",
			Type:    ErrorTypeAPI,
		}}
	}

	return http.StatusInternalServerError, ErrorBody{Error: ErrorDetail{
		Message: "internal server error",
		Type:    ErrorTypeAPI,
	}}
}

// WriteError translates err and writes it as the HTTP response.
func WriteError(c *gin.Context, err error) {
	status, body := Translate(err)
	c.JSON(status, body)
}

// SSEErrorBody returns the JSON-encoded error body for delivery as a single
// in-band SSE event once response headers have already been sent.
func SSEErrorBody(err error) []byte {
	_, body := Translate(err)
	b, marshalErr := json.Marshal(body)
	if marshalErr != nil {
		return []byte(`{"error":{"message":"internal server error","type":"api_error"}}`)
	}
	return b
}
