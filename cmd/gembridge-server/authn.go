package main

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gembridge/gembridge/pkg/errutils"
	"github.com/gin-gonic/gin"
)

// BearerKeyMW authenticates gateway callers by bearer token. Requests with a
// missing or unknown token are rejected before reaching any handler. An empty
// key set leaves the gateway open.
type BearerKeyMW struct {
	mu      sync.RWMutex
	apiKeys map[string]struct{}
}

func NewBearerKeyMW(keys []string) *BearerKeyMW {
	m := &BearerKeyMW{}
	m.UpdateKeys(keys)
	return m
}

func (m *BearerKeyMW) UpdateKeys(keys []string) {
	newKeys := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k != "" {
			newKeys[k] = struct{}{}
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apiKeys = newKeys
}

func (m *BearerKeyMW) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		m.mu.RLock()
		open := len(m.apiKeys) == 0
		m.mu.RUnlock()
		if open {
			return
		}

		apiKey := ""
		authHeader := c.GetHeader("Authorization")
		const bearerPrefix = "Bearer "
		if len(authHeader) >= len(bearerPrefix) && strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
			apiKey = authHeader[len(bearerPrefix):]
		}
		if apiKey == "" {
			reject(c)
			return
		}

		m.mu.RLock()
		_, ok := m.apiKeys[apiKey]
		m.mu.RUnlock()
		if !ok {
			reject(c)
			return
		}
	}
}

func reject(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, errutils.ErrorBody{
		Error: errutils.ErrorDetail{
			Message: "missing or invalid api key",
			Type:    errutils.ErrorTypeAuthentication,
		},
	})
}
