package llm

// Role is the speaker of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat message.
type Message struct {
	Role    Role   `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content"`
}

// EstimateTokens approximates the token count of s: one token per Han
// character and one per four bytes of anything else.
func EstimateTokens(s string) int {
	han, other := 0, 0
	for _, r := range s {
		if r >= 0x2E80 && r <= 0x9FFF || r >= 0xF900 && r <= 0xFAFF || r >= 0x20000 {
			han++
		} else {
			other += runeLen(r)
		}
	}
	return han + (other+3)/4
}

func runeLen(r rune) int {
	switch {
	case r < 0x80:
		return 1
	case r < 0x800:
		return 2
	case r < 0x10000:
		return 3
	default:
		return 4
	}
}

// messageOverhead is the per-message framing cost added by chat templates.
const messageOverhead = 4

func messageTokens(m Message) int {
	return EstimateTokens(m.Content) + messageOverhead
}

// Memory is a token-bounded chat buffer. Pinned messages (the system prompt
// and the current question) always fit; history fills what is left,
// newest first, and never starts with an assistant reply.
type Memory struct {
	limit int
}

// NewMemory returns a Memory holding at most limit estimated tokens.
func NewMemory(limit int) Memory {
	return Memory{limit: limit}
}

// Limit returns the token budget.
func (m Memory) Limit() int { return m.limit }

// Fit returns system, then the newest suffix of history that fits the
// budget, then query.
func (m Memory) Fit(system []Message, history []Message, query Message) []Message {
	used := messageTokens(query)
	for _, s := range system {
		used += messageTokens(s)
	}

	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		cost := messageTokens(history[i])
		if used+cost > m.limit {
			break
		}
		used += cost
		start = i
	}
	for start < len(history) && history[start].Role == RoleAssistant {
		start++
	}

	out := make([]Message, 0, len(system)+len(history)-start+1)
	out = append(out, system...)
	out = append(out, history[start:]...)
	return append(out, query)
}
