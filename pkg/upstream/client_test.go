package upstream

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gembridge/gembridge/pkg/errutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_ChatCompletions_NonStream(t *testing.T) {
	var gotAuth, gotPath, gotBody string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"chatcmpl-1","object":"chat.completion"}`))
	}))
	defer ts.Close()

	c := NewFactory(ts.URL, nil, map[string]string{"X-Extra": "1"}).Client("sk-test")
	resp, err := c.ChatCompletions(context.Background(), []byte(`{"model":"gemini-2.5-pro"}`))
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "/chat/completions", gotPath)
	assert.JSONEq(t, `{"model":"gemini-2.5-pro"}`, gotBody)
	assert.Nil(t, resp.Stream)
	assert.JSONEq(t, `{"id":"chatcmpl-1","object":"chat.completion"}`, string(resp.Body))
}

func TestClient_RetrieveModel_EscapesPath(t *testing.T) {
	var gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.Write([]byte(`{"id":"gemini-2.5-pro"}`))
	}))
	defer ts.Close()

	c := NewFactory(ts.URL, nil, nil).Client("sk-test")
	_, err := c.RetrieveModel(context.Background(), "models/weird id")
	require.NoError(t, err)
	assert.Equal(t, "/models/models%2Fweird%20id", gotPath)
}

func TestClient_UpstreamErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"quota","type":"rate_limit_error"}}`))
	}))
	defer ts.Close()

	c := NewFactory(ts.URL, nil, nil).Client("sk-test")
	_, err := c.ListModels(context.Background())
	require.Error(t, err)

	respErr := &errutils.UpstreamRespError{}
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, http.StatusTooManyRequests, respErr.StatusCode)
	assert.Contains(t, string(respErr.Body), "quota")
	assert.True(t, errutils.IsRetryable(err))
}

func TestClient_TransportError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close() // refuse connections

	c := NewFactory(ts.URL, nil, nil).Client("sk-test")
	_, err := c.ListModels(context.Background())
	require.Error(t, err)

	httpErr := &errutils.UpstreamHTTPError{}
	assert.ErrorAs(t, err, &httpErr)
	assert.True(t, errutils.IsRetryable(err))
}

func TestClient_Stream(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"n\":1}\n\n"))
		w.Write([]byte(": keep-alive comment\n\n"))
		w.Write([]byte("data: {\"n\":2}\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer ts.Close()

	c := NewFactory(ts.URL, nil, nil).Client("sk-test")
	resp, err := c.ChatCompletions(context.Background(), []byte(`{"model":"gemini-2.5-pro","stream":true}`))
	require.NoError(t, err)
	require.NotNil(t, resp.Stream)
	defer resp.Stream.Close()

	var got []string
	for chunk := range resp.Stream.Chan() {
		require.NoError(t, chunk.Err)
		got = append(got, string(chunk.Data))
	}
	assert.Equal(t, []string{`{"n":1}`, `{"n":2}`}, got)
}

func TestClient_Stream_Cancel(t *testing.T) {
	blocked := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"n\":1}\n\n"))
		w.(http.Flusher).Flush()
		<-blocked
	}))
	defer ts.Close()
	defer close(blocked)

	ctx, cancel := context.WithCancel(context.Background())
	c := NewFactory(ts.URL, nil, nil).Client("sk-test")
	resp, err := c.ChatCompletions(ctx, []byte(`{"stream":true}`))
	require.NoError(t, err)
	require.NotNil(t, resp.Stream)

	chunk := <-resp.Stream.Chan()
	assert.Equal(t, `{"n":1}`, string(chunk.Data))

	cancel()
	for range resp.Stream.Chan() {
		// drain; channel must close promptly after cancellation
	}
}
