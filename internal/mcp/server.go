// Package mcp exposes the knowledge base and the active task index as MCP
// tools.
package mcp

import (
	"context"
	"strings"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/youufis/SmartKB/internal/retrieval"
	"github.com/youufis/SmartKB/internal/tasks"
)

// Answerer streams knowledge base answers.
type Answerer interface {
	Query(ctx context.Context, req retrieval.Request) <-chan retrieval.Event
}

// TaskIndex reads the unified active task index.
type TaskIndex interface {
	ReadUnifiedIndex(ctx context.Context) tasks.TaskList
}

// Server wraps SmartKB services as MCP tools.
type Server struct {
	server   *gomcp.Server
	answerer Answerer
	tasks    TaskIndex
}

// NewServer creates an MCP server.
func NewServer(answerer Answerer, taskIndex TaskIndex, version string) *Server {
	if version == "" {
		version = "dev"
	}
	s := &Server{answerer: answerer, tasks: taskIndex}
	s.server = gomcp.NewServer(&gomcp.Implementation{Name: "smartkb", Version: version}, nil)
	s.registerTools()
	return s
}

// Run serves over stdio until the client disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *gomcp.Server { return s.server }

type queryInput struct {
	Topic string `json:"topic" jsonschema:"the question to answer from the course knowledge base"`
}

type queryOutput struct {
	Answer string `json:"answer"`
}

type listActiveInput struct{}

type taskOutput struct {
	ID          string   `json:"id"`
	Creator     string   `json:"creator"`
	Name        string   `json:"name"`
	CreatedTime string   `json:"created_time"`
	Submissions []string `json:"submissions"`
}

type listActiveOutput struct {
	Tasks []taskOutput `json:"tasks"`
	Count int          `json:"count"`
}

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "query_knowledge_base",
		Description: "Answer a question from the course knowledge base using hybrid retrieval and reranking.",
	}, s.handleQuery)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_active_tasks",
		Description: "List the active tasks opened by teachers and administrators.",
	}, s.handleListActive)
}

func (s *Server) handleQuery(ctx context.Context, _ *gomcp.CallToolRequest, input queryInput) (*gomcp.CallToolResult, queryOutput, error) {
	topic := strings.TrimSpace(input.Topic)
	if topic == "" {
		return errorResult("topic is required"), queryOutput{}, nil
	}
	answer, err := retrieval.Collect(s.answerer.Query(ctx, retrieval.Request{Topic: topic}))
	if err != nil {
		return errorResult(answer), queryOutput{}, nil
	}
	return nil, queryOutput{Answer: answer}, nil
}

func (s *Server) handleListActive(ctx context.Context, _ *gomcp.CallToolRequest, _ listActiveInput) (*gomcp.CallToolResult, listActiveOutput, error) {
	list := s.tasks.ReadUnifiedIndex(ctx)
	out := listActiveOutput{Tasks: make([]taskOutput, len(list.Tasks)), Count: len(list.Tasks)}
	for i, t := range list.Tasks {
		out.Tasks[i] = taskOutput{
			ID:          t.ID,
			Creator:     t.Creator,
			Name:        t.Name,
			CreatedTime: t.CreatedTime.Format(time.RFC3339),
			Submissions: t.Submissions,
		}
	}
	return nil, out, nil
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}
