package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/youufis/SmartKB/internal/session"
	"github.com/youufis/SmartKB/internal/web"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat web server",
	Long: `Start the SmartKB HTTP server.

Routes:
  POST /api/login           check credentials
  POST /api/chat            streamed answer (SSE, basic auth)
  GET  /ws/chat             streamed answers over websocket (basic auth)
  GET  /api/tasks/active    unified active task index
  GET  /api/tasks/mine      the caller's own tasks
  POST /api/session/new     start a new conversation
  POST /api/session/resume  continue a saved conversation
  GET  /api/health          liveness

Examples:
  smartkb serve
  smartkb serve --addr :8080`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(os.Stderr, true, true, true)
	if err != nil {
		return err
	}
	defer a.Close()

	chat, err := a.newSessionService()
	if err != nil {
		return err
	}
	access, err := a.newAccessLog()
	if err != nil {
		return err
	}

	srv := web.NewServer(web.Deps{
		Auth:          a.directory,
		Tasks:         a.taskStore,
		Chat:          chat,
		Sessions:      session.NewRegistry(),
		Access:        access,
		History:       a.history,
		Logger:        a.log("web"),
		MaxConcurrent: a.cfg.Server.MaxConcurrent,
		MaxQueue:      a.cfg.Server.MaxQueue,
	})

	addr := a.cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "SmartKB listening on %s\n", addr)
	return srv.Run(ctx, addr)
}
