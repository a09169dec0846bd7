package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/youufis/SmartKB/internal/llm"
)

// maxSummaryRunes bounds a single attachment summary.
const maxSummaryRunes = 5000

const summaryPrompt = "请简要总结以下文件内容，保留关键信息：\n\n文件名：%s\n\n%s"

// Attachment is a text file sent along with a message.
type Attachment struct {
	Name    string `json:"name" validate:"required"`
	Content string `json:"content"`
}

// Completer returns a whole chat completion.
type Completer interface {
	Complete(ctx context.Context, msgs []llm.Message) (string, error)
}

// SummaryCache summarises attachments once per distinct content.
type SummaryCache struct {
	cache *lru.Cache[string, string]
	llm   Completer
}

// NewSummaryCache creates a cache holding up to size summaries.
func NewSummaryCache(size int, completer Completer) (*SummaryCache, error) {
	if size <= 0 {
		size = 128
	}
	c, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("creating summary cache: %w", err)
	}
	return &SummaryCache{cache: c, llm: completer}, nil
}

func contentKey(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Summarize returns the cached summary of a, asking the model on a miss.
func (s *SummaryCache) Summarize(ctx context.Context, a Attachment) (string, error) {
	key := contentKey(a.Content)
	if v, ok := s.cache.Get(key); ok {
		return v, nil
	}
	out, err := s.llm.Complete(ctx, []llm.Message{{Role: llm.RoleUser, Content: fmt.Sprintf(summaryPrompt, a.Name, a.Content)}})
	if err != nil {
		return "", fmt.Errorf("summarising %s: %w", a.Name, err)
	}
	out = truncateRunes(out, maxSummaryRunes)
	s.cache.Add(key, out)
	return out, nil
}

// Len returns the number of cached summaries.
func (s *SummaryCache) Len() int { return s.cache.Len() }

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
