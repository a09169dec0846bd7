// Package embedding turns text into dense vectors through an Ollama server.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL    = "http://localhost:11434"
	defaultModel      = "bge-large-zh"
	defaultMaxRetries = 3
	defaultRetryDelay = 500 * time.Millisecond

	// bge-zh models expect this instruction in front of short queries.
	queryInstruction = "为这个句子生成表示以用于检索相关文章："
)

// LocalClient embeds text with an Ollama-compatible /api/embed endpoint.
type LocalClient struct {
	baseURL    string
	model      string
	maxRetries int
	retryDelay time.Duration
	client     *http.Client
}

// LocalClientOption configures a LocalClient.
type LocalClientOption func(*LocalClient)

// WithBaseURL sets the server root, e.g. http://localhost:11434.
func WithBaseURL(url string) LocalClientOption {
	return func(c *LocalClient) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithModel sets the model name.
func WithModel(model string) LocalClientOption {
	return func(c *LocalClient) { c.model = model }
}

// WithRetries sets the attempt count and the initial backoff delay.
func WithRetries(n int, delay time.Duration) LocalClientOption {
	return func(c *LocalClient) {
		c.maxRetries = n
		c.retryDelay = delay
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) LocalClientOption {
	return func(c *LocalClient) { c.client = hc }
}

// NewLocalClient creates a client for localhost:11434 and bge-large-zh
// unless overridden.
func NewLocalClient(opts ...LocalClientOption) *LocalClient {
	c := &LocalClient{
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxRetries < 1 {
		c.maxRetries = 1
	}
	return c
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// EmbedQuery embeds a search query.
func (c *LocalClient) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vecs, err := c.embed(ctx, []string{queryInstruction + query})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedDocuments embeds passages for indexing, one vector per input.
func (c *LocalClient) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return c.embed(ctx, texts)
}

func (c *LocalClient) embed(ctx context.Context, input []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Model: c.model, Input: input})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * c.retryDelay
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		vecs, retry, err := c.do(ctx, body)
		if err == nil {
			if len(vecs) != len(input) {
				return nil, fmt.Errorf("expected %d embeddings, got %d", len(input), len(vecs))
			}
			return vecs, nil
		}
		if !retry || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}

// do performs one request. retry reports whether the failure is transient.
func (c *LocalClient) do(ctx context.Context, body []byte) (vecs [][]float32, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode >= 500, fmt.Errorf("embedding error (%d): %s", resp.StatusCode, string(respBody))
	}

	var out embedResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, false, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out.Embeddings) == 0 {
		return nil, false, errors.New("no embeddings returned")
	}
	return out.Embeddings, false, nil
}
