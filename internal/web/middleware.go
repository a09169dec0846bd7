package web

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/youufis/SmartKB/internal/identity"
)

const userKey = "user"

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"ip", c.ClientIP(),
			"duration", time.Since(start),
		)
	}
}

// requireUser authenticates the request with HTTP basic credentials.
func (s *Server) requireUser(c *gin.Context) {
	login, password, ok := c.Request.BasicAuth()
	if !ok {
		c.Header("WWW-Authenticate", `Basic realm="smartkb"`)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "authentication required"})
		return
	}
	u, err := s.deps.Auth.Authenticate(c.Request.Context(), login, password)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid credentials"})
		return
	}
	c.Set(userKey, u)
	c.Next()
}

func currentUser(c *gin.Context) *identity.User {
	return c.MustGet(userKey).(*identity.User)
}

// limiter caps concurrent chat streams; up to maxQueue more wait for a
// slot and the rest are refused.
type limiter struct {
	slots    chan struct{}
	waiting  atomic.Int64
	maxQueue int64
}

func newLimiter(maxConcurrent, maxQueue int) *limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if maxQueue < 0 {
		maxQueue = 0
	}
	return &limiter{slots: make(chan struct{}, maxConcurrent), maxQueue: int64(maxQueue)}
}

// acquire takes a slot, waiting in the queue if there is room. It returns
// false when the queue is full or ctx ends first.
func (l *limiter) acquire(ctx context.Context) bool {
	select {
	case l.slots <- struct{}{}:
		return true
	default:
	}
	if l.waiting.Add(1) > l.maxQueue {
		l.waiting.Add(-1)
		return false
	}
	defer l.waiting.Add(-1)
	select {
	case l.slots <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (l *limiter) release() { <-l.slots }

func (l *limiter) middleware(c *gin.Context) {
	if !l.acquire(c.Request.Context()) {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": msgBusy})
		return
	}
	defer l.release()
	c.Next()
}

const msgBusy = "服务繁忙，请稍后再试。"
