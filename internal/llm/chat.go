package llm

import (
	"context"
	"fmt"
	"strings"
)

// Streamer is the streaming half of Client.
type Streamer interface {
	Stream(ctx context.Context, msgs []Message, emit func(string)) (string, error)
}

const contextPrompt = "以下是与问题相关的知识库内容：\n---------------------\n%s\n---------------------\n" +
	"请根据以上内容和对话历史回答用户的问题。如果内容中没有相关信息，请如实说明。"

// ContextChat answers a question grounded in retrieved passages, with the
// conversation history trimmed to a token budget.
type ContextChat struct {
	llm    Streamer
	memory Memory
}

// NewContextChat creates a ContextChat with a tokenLimit memory.
func NewContextChat(llm Streamer, tokenLimit int) *ContextChat {
	return &ContextChat{llm: llm, memory: NewMemory(tokenLimit)}
}

// StreamChat streams an answer to query using only docs as context.
// preamble messages (such as the user's identity) precede the context.
func (c *ContextChat) StreamChat(ctx context.Context, docs []string, preamble, history []Message, query string, emit func(string)) (string, error) {
	system := append([]Message{}, preamble...)
	system = append(system, Message{Role: RoleSystem, Content: fmt.Sprintf(contextPrompt, strings.Join(docs, "\n\n"))})
	msgs := c.memory.Fit(system, history, Message{Role: RoleUser, Content: query})
	return c.llm.Stream(ctx, msgs, emit)
}

// DirectChat answers without retrieval, with the same bounded memory.
type DirectChat struct {
	llm    Streamer
	memory Memory
}

// NewDirectChat creates a DirectChat with a tokenLimit memory.
func NewDirectChat(llm Streamer, tokenLimit int) *DirectChat {
	return &DirectChat{llm: llm, memory: NewMemory(tokenLimit)}
}

// StreamChat streams an answer to query.
func (c *DirectChat) StreamChat(ctx context.Context, preamble, history []Message, query string, emit func(string)) (string, error) {
	msgs := c.memory.Fit(preamble, history, Message{Role: RoleUser, Content: query})
	return c.llm.Stream(ctx, msgs, emit)
}
