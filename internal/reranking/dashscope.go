// Package reranking scores query/passage pairs with a hosted cross-encoder.
package reranking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"
)

const (
	defaultURL   = "https://dashscope.aliyuncs.com/api/v1/services/rerank/text-rerank/text-rerank"
	defaultModel = "qwen3-rerank"
)

// DashScopeClient calls the DashScope text-rerank API.
type DashScopeClient struct {
	url    string
	apiKey string
	model  string
	client *http.Client
}

// Option configures a DashScopeClient.
type Option func(*DashScopeClient)

// WithURL overrides the endpoint.
func WithURL(url string) Option {
	return func(c *DashScopeClient) { c.url = url }
}

// WithModel sets the rerank model.
func WithModel(model string) Option {
	return func(c *DashScopeClient) { c.model = model }
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *DashScopeClient) { c.client.Timeout = d }
}

// NewDashScopeClient creates a rerank client authenticated with apiKey.
func NewDashScopeClient(apiKey string, opts ...Option) *DashScopeClient {
	c := &DashScopeClient{
		url:    defaultURL,
		apiKey: apiKey,
		model:  defaultModel,
		client: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rerankRequest struct {
	Model      string           `json:"model"`
	Input      rerankInput      `json:"input"`
	Parameters rerankParameters `json:"parameters"`
}

type rerankInput struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankParameters struct {
	ReturnDocuments bool `json:"return_documents"`
	TopN            int  `json:"top_n"`
}

type rerankResponse struct {
	Output struct {
		Results []struct {
			Index          int     `json:"index"`
			RelevanceScore float64 `json:"relevance_score"`
		} `json:"results"`
	} `json:"output"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// Rerank scores every document against query and returns results ordered by
// descending score.
func (c *DashScopeClient) Rerank(ctx context.Context, query string, docs []Document) ([]Result, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	body, err := json.Marshal(rerankRequest{
		Model:      c.model,
		Input:      rerankInput{Query: query, Documents: texts},
		Parameters: rerankParameters{TopN: len(docs)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rerank error (%d): %s", resp.StatusCode, string(respBody))
	}

	var out rerankResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Code != "" {
		return nil, fmt.Errorf("rerank error %s: %s (request %s)", out.Code, out.Message, out.RequestID)
	}

	results := make([]Result, 0, len(out.Output.Results))
	for _, r := range out.Output.Results {
		if r.Index < 0 || r.Index >= len(docs) {
			return nil, fmt.Errorf("rerank returned index %d for %d documents", r.Index, len(docs))
		}
		results = append(results, Result{Index: r.Index, Score: r.RelevanceScore})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}
