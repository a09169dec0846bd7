package web

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/youufis/SmartKB/internal/accesslog"
	"github.com/youufis/SmartKB/internal/history"
	"github.com/youufis/SmartKB/internal/identity"
	"github.com/youufis/SmartKB/internal/session"
)

const maxMessageSize = 32 << 10

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type userView struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Class    string `json:"class"`
	Role     string `json:"role"`
}

func viewOf(u *identity.User) userView {
	return userView{Username: u.Username, Name: u.Name, Class: u.Class, Role: u.Role.String()}
}

// chatRequest is the body of POST /api/chat and each websocket message.
type chatRequest struct {
	Message            string               `json:"message" binding:"required"`
	Mode               string               `json:"mode"`
	IncludeFileContext bool                 `json:"include_file_context"`
	Attachments        []session.Attachment `json:"attachments"`
}

// resumeRequest names a saved conversation by day and session id.
type resumeRequest struct {
	Date      string `json:"date" binding:"required"`
	SessionID string `json:"session_id" binding:"required"`
}

func (r chatRequest) toMessage() session.Message {
	return session.Message{
		Text:               r.Message,
		Mode:               session.ParseMode(r.Mode),
		Attachments:        r.Attachments,
		IncludeFileContext: r.IncludeFileContext,
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "status": "ok"})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	u, err := s.deps.Auth.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid credentials"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": viewOf(u)})
}

// admit logs the request and applies the daily limit. It returns the
// refusal text when the request must not reach the session.
func (s *Server) admit(ctx context.Context, ip, prompt string) (string, bool) {
	if s.deps.Access == nil {
		return "", true
	}
	allowed, err := s.deps.Access.Allow(ctx, ip)
	if err != nil {
		s.deps.Logger.Warn("request limit check failed", "ip", ip, "error", err)
		allowed = true
	}
	if !allowed {
		daily, _ := s.deps.Access.Limit()
		return accesslog.LimitMessage(daily), false
	}
	if err := s.deps.Access.Record(ctx, ip, prompt); err != nil {
		s.deps.Logger.Warn("failed to record request", "ip", ip, "error", err)
	}
	return "", true
}

func (s *Server) stateFor(u *identity.User) *session.State {
	return s.deps.Sessions.Get(u.Username, u.Class, u.Name)
}

func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if len(req.Message) > maxMessageSize {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "message exceeds maximum size of 32KB"})
		return
	}
	if refusal, ok := s.admit(c.Request.Context(), c.ClientIP(), req.Message); !ok {
		c.JSON(http.StatusTooManyRequests, gin.H{"success": false, "error": refusal})
		return
	}

	u := currentUser(c)
	st := s.stateFor(u)
	events := s.deps.Chat.Send(c.Request.Context(), st, req.toMessage())

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(w io.Writer) bool {
		ev, ok := <-events
		if !ok {
			return false
		}
		if !ev.Done {
			c.SSEvent("delta", gin.H{"text": ev.Delta})
			return true
		}
		done := gin.H{"text": ev.Delta, "session_id": st.ID()}
		if ev.Err != nil {
			done["error"] = true
		}
		c.SSEvent("done", done)
		return false
	})
}

func (s *Server) handleActiveTasks(c *gin.Context) {
	list := s.deps.Tasks.ReadUnifiedIndex(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"success": true, "tasks": list.Tasks, "count": len(list.Tasks)})
}

func (s *Server) handleMyTasks(c *gin.Context) {
	u := currentUser(c)
	list, err := s.deps.Tasks.Load(u.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "tasks": list.Tasks, "count": len(list.Tasks)})
}

func (s *Server) handleNewSession(c *gin.Context) {
	u := currentUser(c)
	s.deps.Sessions.Reset(u.Username)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleResumeSession(c *gin.Context) {
	var req resumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	date, err := time.ParseInLocation("2006-01-02", req.Date, time.Local)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "date must be YYYY-MM-DD"})
		return
	}

	u := currentUser(c)
	msgs, err := s.deps.History.Load(u.Username, date, req.SessionID)
	switch {
	case errors.Is(err, history.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "conversation not found"})
		return
	case err != nil:
		s.deps.Logger.Error("failed to load conversation", "user", u.Username, "session", req.SessionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to load conversation"})
		return
	}

	st, err := s.deps.Sessions.Resume(u.Username, u.Class, u.Name, req.SessionID, msgs)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "session_id": st.ID(), "messages": msgs, "count": len(msgs)})
}
