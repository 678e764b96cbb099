package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/gembridge/gembridge/pkg/errutils"
	"github.com/sirupsen/logrus"
)

// DefaultBaseURL is the OpenAI-protocol facade of the generative-language API.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"

// Factory builds one Client per attempt. Clients are stateless beyond the
// credential they carry, so the retry loop can construct a fresh one for each
// rotation without sharing mutable state.
type Factory struct {
	baseURL      string
	httpClient   *http.Client
	extraHeaders map[string]string
}

func NewFactory(baseURL string, httpClient *http.Client, extraHeaders map[string]string) *Factory {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Factory{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		httpClient:   httpClient,
		extraHeaders: extraHeaders,
	}
}

func (f *Factory) Client(credential string) *Client {
	return &Client{
		baseURL:      f.baseURL,
		credential:   credential,
		httpClient:   f.httpClient,
		extraHeaders: f.extraHeaders,
	}
}

// Client issues requests to the upstream facade authenticated by a single
// credential.
type Client struct {
	baseURL      string
	credential   string
	httpClient   *http.Client
	extraHeaders map[string]string
}

// Response is one upstream result: either a buffered Body or a Stream of SSE
// chunk payloads, never both.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Stream     *StreamChan
}

func (c *Client) ChatCompletions(ctx context.Context, body []byte) (*Response, error) {
	return c.do(ctx, http.MethodPost, "/chat/completions", body)
}

func (c *Client) ListModels(ctx context.Context) (*Response, error) {
	return c.do(ctx, http.MethodGet, "/models", nil)
}

func (c *Client) RetrieveModel(ctx context.Context, model string) (*Response, error) {
	return c.do(ctx, http.MethodGet, "/models/"+url.PathEscape(model), nil)
}

func (c *Client) Embeddings(ctx context.Context, body []byte) (*Response, error) {
	return c.do(ctx, http.MethodPost, "/embeddings", body)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("new request error: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.credential)
	for k, v := range c.extraHeaders {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &errutils.UpstreamHTTPError{
			Err: fmt.Errorf("do request error: %w", err),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, &errutils.UpstreamHTTPError{
				Err:        fmt.Errorf("read response body error: %w", err),
				StatusCode: resp.StatusCode,
			}
		}
		return nil, &errutils.UpstreamRespError{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       bodyBytes,
		}
	}

	ct := resp.Header.Get("Content-Type")
	logrus.WithContext(ctx).Debugf("[upstream] %s %s -> %d, content-type %s", method, path, resp.StatusCode, ct)
	if !isEventStream(ct) {
		bodyBytes, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, &errutils.UpstreamHTTPError{
				Err:        fmt.Errorf("read response body error: %w", err),
				StatusCode: resp.StatusCode,
			}
		}
		return &Response{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       bodyBytes,
		}, nil
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Stream:     newStreamChan(ctx, resp.Body),
	}, nil
}

func isEventStream(contentType string) bool {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		return strings.EqualFold(mt, "text/event-stream")
	}
	return strings.HasPrefix(strings.ToLower(contentType), "text/event-stream")
}
