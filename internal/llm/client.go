// Package llm talks to an OpenAI-compatible chat completion endpoint
// (DashScope compatible mode by default) and bounds what is sent to it.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Config selects the endpoint and model.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
}

// Client wraps the chat completions API.
type Client struct {
	service openai.ChatCompletionService
	model   string
	logger  *slog.Logger
}

// NewClient creates a Client. httpClient may be nil.
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{option.WithHTTPClient(httpClient), option.WithMaxRetries(1)}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		opts = append(opts, option.WithAPIKey(key))
	}
	return &Client{
		service: openai.NewChatCompletionService(opts...),
		model:   cfg.Model,
		logger:  logger,
	}
}

func toParams(model string, msgs []Message) openai.ChatCompletionNewParams {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: out,
	}
}

// Stream sends msgs and calls emit with each text delta. It returns the
// full text once the stream ends.
func (c *Client) Stream(ctx context.Context, msgs []Message, emit func(string)) (string, error) {
	stream := c.service.NewStreaming(ctx, toParams(c.model, msgs))
	if stream == nil {
		return "", errors.New("chat stream unavailable")
	}
	defer stream.Close()

	var full strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		for _, choice := range chunk.Choices {
			if d := choice.Delta.Content; d != "" {
				full.WriteString(d)
				emit(d)
			}
		}
	}
	if err := stream.Err(); err != nil {
		c.logger.Error("chat stream failed", "model", c.model, "error", err)
		return full.String(), fmt.Errorf("chat stream: %w", err)
	}
	return full.String(), nil
}

// Complete sends msgs and returns the whole reply.
func (c *Client) Complete(ctx context.Context, msgs []Message) (string, error) {
	resp, err := c.service.New(ctx, toParams(c.model, msgs))
	if err != nil {
		c.logger.Error("chat completion failed", "model", c.model, "error", err)
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
