package session

import (
	"context"
	"sync"

	"github.com/youufis/SmartKB/internal/llm"
	"github.com/youufis/SmartKB/internal/retrieval"
	"github.com/youufis/SmartKB/internal/tasks"
)

type MockTasks struct {
	HandleFunc     func(ctx context.Context, actor, message, transcript string) tasks.Outcome
	CallCount      int
	LastTranscript string
}

func (m *MockTasks) Handle(ctx context.Context, actor, message, transcript string) tasks.Outcome {
	m.CallCount++
	m.LastTranscript = transcript
	if m.HandleFunc != nil {
		return m.HandleFunc(ctx, actor, message, transcript)
	}
	return tasks.Outcome{Kind: tasks.OutcomeNotHandled}
}

// MockAnswerer replays Events, or runs QueryFunc when set.
type MockAnswerer struct {
	Events    []retrieval.Event
	QueryFunc func(ctx context.Context, req retrieval.Request) <-chan retrieval.Event
	CallCount int
	LastReq   retrieval.Request
}

func (m *MockAnswerer) Query(ctx context.Context, req retrieval.Request) <-chan retrieval.Event {
	m.CallCount++
	m.LastReq = req
	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, req)
	}
	ch := make(chan retrieval.Event, len(m.Events))
	for _, ev := range m.Events {
		ch <- ev
	}
	close(ch)
	return ch
}

type MockDirect struct {
	Reply     []string
	Err       error
	CallCount int
	LastQuery string
}

func (m *MockDirect) StreamChat(_ context.Context, _, _ []llm.Message, query string, emit func(string)) (string, error) {
	m.CallCount++
	m.LastQuery = query
	full := ""
	for _, d := range m.Reply {
		emit(d)
		full += d
	}
	return full, m.Err
}

type savedTurn struct {
	User, SessionID, Question, Answer string
}

type MockPersister struct {
	mu    sync.Mutex
	Turns []savedTurn
	Err   error
}

func (m *MockPersister) SaveTurn(user, sid, q, a string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Turns = append(m.Turns, savedTurn{user, sid, q, a})
	return m.Err
}

type MockCompleter struct {
	Reply     string
	Err       error
	CallCount int
}

func (m *MockCompleter) Complete(context.Context, []llm.Message) (string, error) {
	m.CallCount++
	return m.Reply, m.Err
}
