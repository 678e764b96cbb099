package main

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type ctxKey string

const requestIDKey ctxKey = "request_id"

// RequestIDMW tags every request with an id, echoed in the X-Request-ID
// response header and attached to the request context for logging.
func RequestIDMW() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Writer.Header().Set("X-Request-ID", id)
		c.Request = c.Request.WithContext(
			context.WithValue(c.Request.Context(), requestIDKey, id))
	}
}

// RequestIDHook copies the request id from a log entry's context into its
// fields, so WithContext call sites pick it up for free.
type RequestIDHook struct{}

func (RequestIDHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (RequestIDHook) Fire(e *logrus.Entry) error {
	if e.Context == nil {
		return nil
	}
	if id, ok := e.Context.Value(requestIDKey).(string); ok {
		e.Data["request_id"] = id
	}
	return nil
}
