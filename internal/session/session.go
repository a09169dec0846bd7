package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/youufis/SmartKB/internal/llm"
	"github.com/youufis/SmartKB/internal/retrieval"
	"github.com/youufis/SmartKB/internal/tasks"
)

// Event is one value of a reply stream.
type Event = retrieval.Event

// TaskHandler consumes task lifecycle messages.
type TaskHandler interface {
	Handle(ctx context.Context, actor, message, transcript string) tasks.Outcome
}

// Answerer streams knowledge base answers.
type Answerer interface {
	Query(ctx context.Context, req retrieval.Request) <-chan retrieval.Event
}

// DirectGenerator streams answers without retrieval.
type DirectGenerator interface {
	StreamChat(ctx context.Context, preamble, history []llm.Message, query string, emit func(string)) (string, error)
}

// Persister stores finalized turns.
type Persister interface {
	SaveTurn(user, sessionID, question, answer string) error
}

// Message is one user input.
type Message struct {
	Text               string       `validate:"required"`
	Mode               Mode         `validate:"omitempty,oneof=rag direct"`
	Attachments        []Attachment `validate:"dive"`
	IncludeFileContext bool
}

// Service routes user messages. Task messages short-circuit; everything
// else is answered by the Answerer or, in direct mode, the DirectGenerator.
type Service struct {
	tasks     TaskHandler
	answerer  Answerer
	direct    DirectGenerator
	summaries *SummaryCache
	persister Persister
	// guest is the shared login that gets no identity preamble.
	guest  string
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithDirect enables direct mode.
func WithDirect(d DirectGenerator) Option { return func(s *Service) { s.direct = d } }

// WithSummaries enables attachment summaries.
func WithSummaries(c *SummaryCache) Option { return func(s *Service) { s.summaries = c } }

// WithPersister stores every finalized turn.
func WithPersister(p Persister) Option { return func(s *Service) { s.persister = p } }

// WithGuest names the shared account that gets no identity preamble.
func WithGuest(username string) Option { return func(s *Service) { s.guest = username } }

// NewService creates a Service.
func NewService(taskHandler TaskHandler, answerer Answerer, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{tasks: taskHandler, answerer: answerer, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send handles msg within st and returns the reply stream. Turns of one
// State run one at a time. The turn is added to the history only when the
// stream ends normally; a cancelled stream leaves the history unchanged.
func (s *Service) Send(ctx context.Context, st *State, msg Message) <-chan Event {
	ch := make(chan Event, 16)
	go func() {
		defer close(ch)
		send := func(ev Event) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		st.mu.Lock()
		defer st.mu.Unlock()

		if err := validate.Struct(msg); err != nil {
			send(Event{Delta: msgInvalidInput, Done: true, Err: err})
			return
		}
		st.ensureID()
		if err := validate.Struct(st); err != nil {
			send(Event{Delta: msgInvalidInput, Done: true, Err: err})
			return
		}

		if out := s.tasks.Handle(ctx, st.Username, strings.TrimSpace(msg.Text), transcript(st.History)); out.Handled() {
			if send(Event{Delta: out.Message}) && send(Event{Done: true, Err: out.Err}) {
				s.finish(st, msg.Text, out.Message)
			}
			return
		}

		prompt := s.withAttachments(ctx, msg)
		var (
			answer strings.Builder
			final  Event
			ended  bool
		)
		if msg.Mode == ModeDirect && s.direct != nil {
			final, ended = s.streamDirect(ctx, st, prompt, &answer, send)
		} else {
			final, ended = s.streamRAG(ctx, st, prompt, &answer, send)
		}
		if !ended || ctx.Err() != nil {
			return
		}
		if final.Err != nil {
			s.logger.Warn("turn failed", "user", st.Username, "session", st.SessionID, "error", final.Err)
			return
		}
		s.finish(st, msg.Text, answer.String())
	}()
	return ch
}

func (s *Service) streamRAG(ctx context.Context, st *State, prompt string, answer *strings.Builder, send func(Event) bool) (Event, bool) {
	events := s.answerer.Query(ctx, retrieval.Request{
		Topic:    prompt,
		Preamble: s.preamble(st),
		History:  st.History,
	})
	for ev := range events {
		if !send(ev) {
			return Event{}, false
		}
		if ev.Done {
			if ev.Err == nil {
				answer.WriteString(ev.Delta)
			}
			return ev, true
		}
		answer.WriteString(ev.Delta)
	}
	return Event{}, false
}

func (s *Service) streamDirect(ctx context.Context, st *State, prompt string, answer *strings.Builder, send func(Event) bool) (Event, bool) {
	_, err := s.direct.StreamChat(ctx, s.preamble(st), st.History, prompt, func(d string) {
		answer.WriteString(d)
		send(Event{Delta: d})
	})
	if ctx.Err() != nil {
		return Event{}, false
	}
	final := Event{Done: true}
	if err != nil {
		final = Event{Delta: retrieval.GenerationErrorMessage, Done: true, Err: err}
	}
	return final, send(final)
}

// finish records a completed turn. Persistence failures are logged; the
// in-memory history keeps the turn.
func (s *Service) finish(st *State, question, answer string) {
	st.appendTurn(question, answer)
	if s.persister == nil {
		return
	}
	if err := s.persister.SaveTurn(st.Username, st.SessionID, question, answer); err != nil {
		s.logger.Error("failed to persist turn", "user", st.Username, "session", st.SessionID, "error", err)
	}
}

// preamble tells the model who it is talking to.
func (s *Service) preamble(st *State) []llm.Message {
	if st.Username == "" || st.Username == s.guest {
		return nil
	}
	var b strings.Builder
	b.WriteString("当前对话用户信息：\n")
	fmt.Fprintf(&b, "用户名：%s\n", st.Username)
	if st.Cohort != "" {
		fmt.Fprintf(&b, "班级：%s\n", st.Cohort)
	}
	if st.Name != "" {
		fmt.Fprintf(&b, "姓名：%s\n", st.Name)
	}
	return []llm.Message{{Role: llm.RoleSystem, Content: b.String()}}
}

// withAttachments prefixes attachment summaries to the question. A failed
// summary is skipped.
func (s *Service) withAttachments(ctx context.Context, msg Message) string {
	if !msg.IncludeFileContext || s.summaries == nil || len(msg.Attachments) == 0 {
		return msg.Text
	}
	var b strings.Builder
	for _, a := range msg.Attachments {
		sum, err := s.summaries.Summarize(ctx, a)
		if err != nil {
			s.logger.Warn("attachment summary failed", "file", a.Name, "error", err)
			continue
		}
		fmt.Fprintf(&b, "文件《%s》摘要：\n%s\n\n", a.Name, sum)
	}
	if b.Len() == 0 {
		return msg.Text
	}
	b.WriteString("用户问题：")
	b.WriteString(msg.Text)
	return b.String()
}

// transcript renders the history as the content of a task submission.
func transcript(history []llm.Message) string {
	var b strings.Builder
	for _, m := range history {
		switch m.Role {
		case llm.RoleUser:
			fmt.Fprintf(&b, "**用户**: %s\n\n", m.Content)
		case llm.RoleAssistant:
			fmt.Fprintf(&b, "**助手**: %s\n\n", m.Content)
		}
	}
	return strings.TrimSpace(b.String())
}

const msgInvalidInput = "输入无效，请检查后重试。"
