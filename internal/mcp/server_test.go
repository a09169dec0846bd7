package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/youufis/SmartKB/internal/retrieval"
	"github.com/youufis/SmartKB/internal/tasks"
)

type fakeAnswerer struct {
	events  []retrieval.Event
	lastReq retrieval.Request
}

func (f *fakeAnswerer) Query(_ context.Context, req retrieval.Request) <-chan retrieval.Event {
	f.lastReq = req
	ch := make(chan retrieval.Event, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch
}

type fakeIndex struct{ list tasks.TaskList }

func (f fakeIndex) ReadUnifiedIndex(context.Context) tasks.TaskList { return f.list }

func callTool(t *testing.T, srv *Server, toolName string, args map[string]any) *gomcp.CallToolResult {
	t.Helper()

	ctx := context.Background()
	client := gomcp.NewClient(&gomcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	t1, t2 := gomcp.NewInMemoryTransports()
	go func() {
		_ = srv.MCPServer().Run(ctx, t1)
	}()

	session, err := client.Connect(ctx, t2, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer session.Close()

	result, err := session.CallTool(ctx, &gomcp.CallToolParams{Name: toolName, Arguments: args})
	if err != nil {
		t.Fatalf("call tool %s: %v", toolName, err)
	}
	return result
}

func decode(t *testing.T, result *gomcp.CallToolResult, out any) {
	t.Helper()
	data, err := json.Marshal(result.StructuredContent)
	if err != nil {
		t.Fatalf("marshal structured content: %v", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("unmarshal structured content: %v (%s)", err, data)
	}
}

func extractText(result *gomcp.CallToolResult) string {
	for _, c := range result.Content {
		if tc, ok := c.(*gomcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestQueryKnowledgeBase(t *testing.T) {
	ans := &fakeAnswerer{events: []retrieval.Event{{Delta: "叶绿体"}, {Delta: "中进行"}, {Done: true}}}
	srv := NewServer(ans, fakeIndex{}, "test")

	result := callTool(t, srv, "query_knowledge_base", map[string]any{"topic": "光合作用在哪里进行"})

	if result.IsError {
		t.Fatalf("expected success, got %s", extractText(result))
	}
	var out queryOutput
	decode(t, result, &out)
	if out.Answer != "叶绿体中进行" {
		t.Errorf("unexpected answer %q", out.Answer)
	}
	if ans.lastReq.Topic != "光合作用在哪里进行" {
		t.Errorf("unexpected topic %q", ans.lastReq.Topic)
	}
}

func TestQueryKnowledgeBaseFailure(t *testing.T) {
	ans := &fakeAnswerer{events: []retrieval.Event{{Delta: retrieval.GenerationErrorMessage, Done: true, Err: errors.New("boom")}}}
	srv := NewServer(ans, fakeIndex{}, "test")

	result := callTool(t, srv, "query_knowledge_base", map[string]any{"topic": "q"})

	if !result.IsError || extractText(result) != retrieval.GenerationErrorMessage {
		t.Errorf("expected error result with generic message, got %+v", result)
	}
}

func TestQueryKnowledgeBaseMissingTopic(t *testing.T) {
	srv := NewServer(&fakeAnswerer{}, fakeIndex{}, "test")

	result := callTool(t, srv, "query_knowledge_base", map[string]any{"topic": "  "})

	if !result.IsError {
		t.Error("expected error for blank topic")
	}
}

func TestListActiveTasks(t *testing.T) {
	created := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	idx := fakeIndex{list: tasks.TaskList{Tasks: []tasks.Task{
		{ID: "t1", Creator: "teacher1", Name: "实验报告", Status: tasks.StatusActive, CreatedTime: created, Submissions: []string{"alice"}},
		{ID: "t2", Creator: "root", Name: "期末总结", Status: tasks.StatusActive, CreatedTime: created, Submissions: []string{}},
	}}}
	srv := NewServer(&fakeAnswerer{}, idx, "test")

	result := callTool(t, srv, "list_active_tasks", map[string]any{})

	var out listActiveOutput
	decode(t, result, &out)
	if out.Count != 2 || out.Tasks[0].Name != "实验报告" || out.Tasks[1].Creator != "root" {
		t.Errorf("unexpected output %+v", out)
	}
	if out.Tasks[0].CreatedTime != "2025-03-01T08:00:00Z" {
		t.Errorf("unexpected time %s", out.Tasks[0].CreatedTime)
	}
}
