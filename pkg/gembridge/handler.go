package gembridge

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gembridge/gembridge/pkg/balance"
	"github.com/gembridge/gembridge/pkg/errutils"
	"github.com/gembridge/gembridge/pkg/metrics"
	"github.com/gembridge/gembridge/pkg/models"
	"github.com/gembridge/gembridge/pkg/rewrite"
	"github.com/gembridge/gembridge/pkg/searchtool"
	"github.com/gembridge/gembridge/pkg/upstream"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Server translates the OpenAI-compatible surface onto upstream calls. All
// state is request-scoped; the credential pool inside the executor is the
// only thing shared across requests.
type Server struct {
	exec     *balance.Executor
	clients  *upstream.Factory
	rewrites *rewrite.Policy
	mets     *metrics.Metrics
	now      func() time.Time
}

func NewServer(exec *balance.Executor, clients *upstream.Factory, rewrites *rewrite.Policy, mets *metrics.Metrics) *Server {
	return &Server{
		exec:     exec,
		clients:  clients,
		rewrites: rewrites,
		mets:     mets,
		now:      time.Now,
	}
}

type modelList struct {
	Object string            `json:"object"`
	Data   []json.RawMessage `json:"data"`
}

// ChatCompletions handles POST /v1/chat/completions, streaming or not.
func (s *Server) ChatCompletions() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			s.fail(c, "chat_completions", errutils.NewValidationError("failed to read request body"))
			return
		}
		if gjson.GetBytes(body, "model").String() == "" {
			s.fail(c, "chat_completions", errutils.NewValidationError("you must provide a model parameter"))
			return
		}

		forwarded, modelID, err := searchtool.Normalize(body)
		if err != nil {
			logrus.WithContext(ctx).WithError(err).Error("normalize chat request")
			s.fail(c, "chat_completions", err)
			return
		}
		forwarded = s.rewrites.Apply(ctx, forwarded)

		op := func(cred string) (*upstream.Response, error) {
			return s.clients.Client(cred).ChatCompletions(ctx, forwarded)
		}

		if gjson.GetBytes(body, "stream").Bool() {
			s.streamChatCompletion(c, modelID, op)
			return
		}

		resp, err := s.exec.WithRetry(ctx, modelID, op)
		if err != nil {
			logrus.WithContext(ctx).WithError(err).Error("chat completion failed")
			s.fail(c, "chat_completions", err)
			return
		}
		s.recordChatUsage(modelID, resp.Body)
		s.count("chat_completions", http.StatusOK)
		c.Data(http.StatusOK, "application/json", resp.Body)
	}
}

// streamChatCompletion forwards the upstream SSE stream. Headers go out
// before the upstream call resolves, so every failure from here on is
// delivered in-band as one SSE error event: partial output may already be
// with the caller and the exchange cannot be retried.
func (s *Server) streamChatCompletion(c *gin.Context, modelID string, op balance.Operation) {
	ctx := c.Request.Context()
	w := c.Writer

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	resp, err := s.exec.WithRetry(ctx, modelID, op)
	if err != nil {
		logrus.WithContext(ctx).WithError(err).Error("chat completion stream failed to open")
		s.count("chat_completions", http.StatusOK)
		writeSSEData(w, errutils.SSEErrorBody(err))
		return
	}
	s.count("chat_completions", http.StatusOK)

	if resp.Stream == nil {
		// upstream answered non-stream despite stream=true; forward as a
		// single event so the caller still gets a well-formed stream
		writeSSEData(w, resp.Body)
		writeSSEData(w, []byte(doneEvent))
		return
	}
	defer resp.Stream.Close()

	for chunk := range resp.Stream.Chan() {
		if chunk.Err != nil {
			logrus.WithContext(ctx).WithError(chunk.Err).Warn("chat completion stream broke mid-flight")
			writeSSEData(w, errutils.SSEErrorBody(chunk.Err))
			return
		}
		if ctx.Err() != nil {
			return
		}
		writeSSEData(w, chunk.Data)
		s.recordChunkUsage(modelID, chunk.Data)
	}
	if ctx.Err() != nil {
		return
	}
	writeSSEData(w, []byte(doneEvent))
}

// ListModels handles GET /v1/models: upstream list plus derived "-search"
// variants, recomputed per call.
func (s *Server) ListModels() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		resp, err := s.exec.WithoutBalancing(ctx, func(cred string) (*upstream.Response, error) {
			return s.clients.Client(cred).ListModels(ctx)
		})
		if err != nil {
			logrus.WithContext(ctx).WithError(err).Error("list models failed")
			s.fail(c, "list_models", err)
			return
		}

		var entries []json.RawMessage
		for _, entry := range gjson.GetBytes(resp.Body, "data").Array() {
			entries = append(entries, json.RawMessage(entry.Raw))
		}

		s.count("list_models", http.StatusOK)
		c.JSON(http.StatusOK, modelList{
			Object: "list",
			Data:   models.Augment(entries, s.now),
		})
	}
}

// RetrieveModel handles GET /v1/models/:model. The id is forwarded verbatim:
// a synthetic "-search" id does not exist upstream and 404s, which is the
// intended behavior.
func (s *Server) RetrieveModel() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		modelID := c.Param("model")

		resp, err := s.exec.WithoutBalancing(ctx, func(cred string) (*upstream.Response, error) {
			return s.clients.Client(cred).RetrieveModel(ctx, modelID)
		})
		if err != nil {
			logrus.WithContext(ctx).WithError(err).Error("retrieve model failed")
			s.fail(c, "retrieve_model", err)
			return
		}
		s.count("retrieve_model", http.StatusOK)
		c.Data(http.StatusOK, "application/json", resp.Body)
	}
}

// Optional embedding fields are forwarded only when present, never as null.
var embeddingOptionalFields = []string{"encoding_format", "dimensions"}

// Embeddings handles POST /v1/embeddings.
func (s *Server) Embeddings() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			s.fail(c, "embeddings", errutils.NewValidationError("failed to read request body"))
			return
		}

		modelID := gjson.GetBytes(body, "model").String()
		input := gjson.GetBytes(body, "input")
		if modelID == "" || !input.Exists() {
			s.fail(c, "embeddings", errutils.NewValidationError("model and input are required"))
			return
		}

		forwarded, err := buildEmbeddingBody(body, modelID, input)
		if err != nil {
			logrus.WithContext(ctx).WithError(err).Error("build embedding request")
			s.fail(c, "embeddings", err)
			return
		}

		resp, err := s.exec.WithRetry(ctx, modelID, func(cred string) (*upstream.Response, error) {
			return s.clients.Client(cred).Embeddings(ctx, forwarded)
		})
		if err != nil {
			logrus.WithContext(ctx).WithError(err).Error("embeddings failed")
			s.fail(c, "embeddings", err)
			return
		}
		s.recordEmbeddingUsage(modelID, resp.Body)
		s.count("embeddings", http.StatusOK)
		c.Data(http.StatusOK, "application/json", resp.Body)
	}
}

func buildEmbeddingBody(body []byte, modelID string, input gjson.Result) ([]byte, error) {
	forwarded := []byte(`{}`)
	forwarded, err := sjson.SetBytes(forwarded, "model", modelID)
	if err != nil {
		return nil, fmt.Errorf("set model: %w", err)
	}
	forwarded, err = sjson.SetRawBytes(forwarded, "input", []byte(input.Raw))
	if err != nil {
		return nil, fmt.Errorf("set input: %w", err)
	}
	for _, field := range embeddingOptionalFields {
		v := gjson.GetBytes(body, field)
		if !v.Exists() || v.Type == gjson.Null {
			continue
		}
		forwarded, err = sjson.SetRawBytes(forwarded, field, []byte(v.Raw))
		if err != nil {
			return nil, fmt.Errorf("set %s: %w", field, err)
		}
	}
	return forwarded, nil
}

func (s *Server) fail(c *gin.Context, endpoint string, err error) {
	status, body := errutils.Translate(err)
	s.count(endpoint, status)
	c.JSON(status, body)
}

func (s *Server) count(endpoint string, status int) {
	if s.mets == nil {
		return
	}
	class := strconv.Itoa(status/100) + "xx"
	s.mets.Requests.WithLabelValues(endpoint, class).Inc()
}
