// Package web serves the chat assistant over HTTP: login, streamed chat
// (SSE and websocket) and task listings.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/youufis/SmartKB/internal/identity"
	"github.com/youufis/SmartKB/internal/llm"
	"github.com/youufis/SmartKB/internal/session"
	"github.com/youufis/SmartKB/internal/tasks"
)

// Authenticator checks credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, login, password string) (*identity.User, error)
}

// TaskViewer reads task lists.
type TaskViewer interface {
	ReadUnifiedIndex(ctx context.Context) tasks.TaskList
	Load(creator string) (tasks.TaskList, error)
}

// Chatter runs conversation turns.
type Chatter interface {
	Send(ctx context.Context, st *session.State, msg session.Message) <-chan session.Event
}

// RequestLog records chat requests and enforces the daily limit.
type RequestLog interface {
	Allow(ctx context.Context, ip string) (bool, error)
	Record(ctx context.Context, ip, prompt string) error
	Limit() (int, bool)
}

// HistoryReader loads saved conversations.
type HistoryReader interface {
	Load(user string, date time.Time, sessionID string) ([]llm.Message, error)
}

// Deps are the collaborators of a Server. Access and History may be nil.
type Deps struct {
	Auth          Authenticator
	Tasks         TaskViewer
	Chat          Chatter
	Sessions      *session.Registry
	Access        RequestLog
	History       HistoryReader
	Logger        *slog.Logger
	MaxConcurrent int
	MaxQueue      int
}

// Server is the SmartKB web server.
type Server struct {
	deps    Deps
	router  *gin.Engine
	limiter *limiter
}

// NewServer creates a Server with its routes registered.
func NewServer(deps Deps) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(deps.Logger))

	s := &Server{
		deps:    deps,
		router:  router,
		limiter: newLimiter(deps.MaxConcurrent, deps.MaxQueue),
	}

	router.GET("/ws/chat", s.requireUser, s.handleWSChat)

	api := router.Group("/api")
	{
		api.GET("/health", s.handleHealth)
		api.POST("/login", s.handleLogin)
		api.POST("/chat", s.requireUser, s.limiter.middleware, s.handleChat)
		api.GET("/tasks/active", s.requireUser, s.handleActiveTasks)
		api.GET("/tasks/mine", s.requireUser, s.handleMyTasks)
		api.POST("/session/new", s.requireUser, s.handleNewSession)
		if deps.History != nil {
			api.POST("/session/resume", s.requireUser, s.handleResumeSession)
		}
	}

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	}
}
