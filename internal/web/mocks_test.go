package web

import (
	"context"
	"errors"
	"time"

	"github.com/youufis/SmartKB/internal/history"
	"github.com/youufis/SmartKB/internal/identity"
	"github.com/youufis/SmartKB/internal/llm"
	"github.com/youufis/SmartKB/internal/session"
	"github.com/youufis/SmartKB/internal/tasks"
)

var ErrMockLoad = errors.New("load error")

// MockAuth accepts the users in Users with password "pw".
type MockAuth struct {
	Users map[string]*identity.User
}

func (m *MockAuth) Authenticate(_ context.Context, login, password string) (*identity.User, error) {
	u, ok := m.Users[login]
	if !ok || password != "pw" {
		return nil, identity.ErrInvalidCredentials
	}
	return u, nil
}

type MockTasks struct {
	Index    tasks.TaskList
	LoadFunc func(creator string) (tasks.TaskList, error)
}

func (m *MockTasks) ReadUnifiedIndex(context.Context) tasks.TaskList { return m.Index }

func (m *MockTasks) Load(creator string) (tasks.TaskList, error) {
	if m.LoadFunc != nil {
		return m.LoadFunc(creator)
	}
	return tasks.TaskList{}, nil
}

// MockChat replays Events for every Send, or runs SendFunc when set.
type MockChat struct {
	Events    []session.Event
	SendFunc  func(ctx context.Context, st *session.State, msg session.Message) <-chan session.Event
	CallCount int
	LastMsg   session.Message
}

func (m *MockChat) Send(ctx context.Context, st *session.State, msg session.Message) <-chan session.Event {
	m.CallCount++
	m.LastMsg = msg
	if m.SendFunc != nil {
		return m.SendFunc(ctx, st, msg)
	}
	ch := make(chan session.Event, len(m.Events))
	for _, ev := range m.Events {
		ch <- ev
	}
	close(ch)
	return ch
}

type MockAccess struct {
	Allowed  bool
	Daily    int
	Recorded []string
}

func (m *MockAccess) Allow(context.Context, string) (bool, error) { return m.Allowed, nil }

func (m *MockAccess) Record(_ context.Context, _ string, prompt string) error {
	m.Recorded = append(m.Recorded, prompt)
	return nil
}

func (m *MockAccess) Limit() (int, bool) { return m.Daily, true }

// MockHistory serves Conversations keyed by "user/date/session".
type MockHistory struct {
	Conversations map[string][]llm.Message
	Err           error
	CallCount     int
}

func (m *MockHistory) Load(user string, date time.Time, sessionID string) ([]llm.Message, error) {
	m.CallCount++
	if m.Err != nil {
		return nil, m.Err
	}
	msgs, ok := m.Conversations[user+"/"+date.Format("2006-01-02")+"/"+sessionID]
	if !ok {
		return nil, history.ErrNotFound
	}
	return msgs, nil
}
