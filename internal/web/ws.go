package web

import (
	"context"
	"errors"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"

	"github.com/youufis/SmartKB/internal/session"
)

// wsFrame is a server-to-client websocket message.
type wsFrame struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Error     bool   `json:"error,omitempty"`
}

// handleWSChat streams replies over a websocket. Each client message is a
// chatRequest; replies are delta frames followed by one done frame.
func (s *Server) handleWSChat(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	ctx := c.Request.Context()
	u := currentUser(c)
	st := s.stateFor(u)
	ip := c.ClientIP()

	for {
		var req chatRequest
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			var ce websocket.CloseError
			if !errors.As(err, &ce) {
				s.deps.Logger.Debug("websocket read ended", "user", u.Username, "error", err)
			}
			return
		}
		if req.Message == "" {
			_ = wsjson.Write(ctx, conn, wsFrame{Type: "done", Text: msgInvalidMessage, Error: true})
			continue
		}
		if refusal, ok := s.admit(ctx, ip, req.Message); !ok {
			_ = wsjson.Write(ctx, conn, wsFrame{Type: "done", Text: refusal, Error: true})
			continue
		}

		if !s.limiter.acquire(ctx) {
			_ = wsjson.Write(ctx, conn, wsFrame{Type: "done", Text: msgBusy, Error: true})
			continue
		}
		err := s.streamFrames(ctx, conn, st, req)
		s.limiter.release()
		if err != nil {
			return
		}
	}
}

func (s *Server) streamFrames(ctx context.Context, conn *websocket.Conn, st *session.State, req chatRequest) error {
	for ev := range s.deps.Chat.Send(ctx, st, req.toMessage()) {
		frame := wsFrame{Type: "delta", Text: ev.Delta}
		if ev.Done {
			frame = wsFrame{Type: "done", Text: ev.Delta, SessionID: st.ID(), Error: ev.Err != nil}
		}
		if err := wsjson.Write(ctx, conn, frame); err != nil {
			return err
		}
	}
	return ctx.Err()
}

const msgInvalidMessage = "消息不能为空。"
