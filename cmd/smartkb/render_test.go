package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/youufis/SmartKB/internal/identity"
	"github.com/youufis/SmartKB/internal/retrieval"
	"github.com/youufis/SmartKB/internal/tasks"
)

func TestRenderTasks(t *testing.T) {
	t.Run("Given tasks When rendering Then each task is a row", func(t *testing.T) {
		var buf bytes.Buffer
		created := time.Date(2025, 3, 1, 8, 0, 0, 0, time.Local)
		renderTasks(&buf, "Tasks", []tasks.Task{
			{ID: "t1", Creator: "teacher1", Name: "实验报告", Status: tasks.StatusActive, CreatedTime: created, Submissions: []string{"a", "b"}},
			{ID: "t2", Creator: "teacher1", Name: "旧任务", Status: tasks.StatusInactive, CreatedTime: created},
		})

		out := buf.String()
		for _, want := range []string{"实验报告", "旧任务", "active", "inactive", "2025-03-01 08:00"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in output:\n%s", want, out)
			}
		}
	})

	t.Run("Given no tasks When rendering Then a placeholder is shown", func(t *testing.T) {
		var buf bytes.Buffer
		renderTasks(&buf, "Active tasks", nil)
		if !strings.Contains(buf.String(), "no tasks") {
			t.Errorf("expected placeholder, got %s", buf.String())
		}
	})
}

func TestRenderUsersAndResults(t *testing.T) {
	var buf bytes.Buffer
	renderUsers(&buf, []identity.User{{Username: "t01", Name: "王老师", Class: "高一1班", Role: identity.RoleTeacher}})
	if !strings.Contains(buf.String(), "王老师") || !strings.Contains(buf.String(), "teacher") {
		t.Errorf("unexpected users output:\n%s", buf.String())
	}

	buf.Reset()
	renderIndexResults(&buf, []retrieval.IndexResult{{Source: "a.md", Chunks: 3}, {Source: "b.md", Chunks: 2, Replaced: 1}})
	if !strings.Contains(buf.String(), "2 files, 5 chunks") {
		t.Errorf("unexpected ingest summary:\n%s", buf.String())
	}
}
