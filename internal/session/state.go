// Package session sequences the turns of one user's conversation and routes
// each message to the task lifecycle or to answer generation.
package session

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/youufis/SmartKB/internal/llm"
)

var validate = validator.New()

// Mode selects how a normal question is answered.
type Mode string

const (
	// ModeRAG answers from the knowledge base.
	ModeRAG Mode = "rag"
	// ModeDirect answers with the chat model alone.
	ModeDirect Mode = "direct"
)

// ParseMode maps a request value to a Mode, defaulting to ModeRAG.
func ParseMode(s string) Mode {
	if Mode(s) == ModeDirect {
		return ModeDirect
	}
	return ModeRAG
}

// State is one user's conversation. History only grows, by whole turns.
type State struct {
	SessionID string        `validate:"omitempty,uuid"`
	Username  string        `validate:"required"`
	Cohort    string        `validate:"omitempty,max=64"`
	Name      string        `validate:"omitempty,max=64"`
	History   []llm.Message `validate:"dive"`

	mu sync.Mutex
}

// NewState creates an empty conversation for username.
func NewState(username, cohort, name string) *State {
	return &State{Username: username, Cohort: cohort, Name: name}
}

// ensureID assigns a session id on first use.
func (s *State) ensureID() string {
	if s.SessionID == "" {
		s.SessionID = uuid.NewString()
	}
	return s.SessionID
}

// Snapshot returns a copy of the history.
func (s *State) Snapshot() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Message(nil), s.History...)
}

// ID returns the session id, empty before the first turn.
func (s *State) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.SessionID
}

func (s *State) appendTurn(question, answer string) {
	s.History = append(s.History,
		llm.Message{Role: llm.RoleUser, Content: question},
		llm.Message{Role: llm.RoleAssistant, Content: answer},
	)
}

// Registry keeps one live State per user.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*State
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*State)}
}

// Get returns the user's State, creating it if needed.
func (r *Registry) Get(username, cohort, name string) *State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[username]; ok {
		return s
	}
	s := NewState(username, cohort, name)
	r.sessions[username] = s
	return s
}

// Resume replaces the user's State with a saved conversation. Later turns
// continue under sessionID.
func (r *Registry) Resume(username, cohort, name, sessionID string, history []llm.Message) (*State, error) {
	st := NewState(username, cohort, name)
	st.SessionID = sessionID
	st.History = append([]llm.Message(nil), history...)
	if err := validate.Struct(st); err != nil {
		return nil, fmt.Errorf("resuming session %s: %w", sessionID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[username] = st
	return st, nil
}

// Reset drops the user's State so the next Get starts a new session.
func (r *Registry) Reset(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, username)
}
