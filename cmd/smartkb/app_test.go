package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/youufis/SmartKB/internal/config"
)

func TestComponentLoggers(t *testing.T) {
	t.Run("Given an app When a component logs Then the record carries one component key", func(t *testing.T) {
		// Given
		var buf bytes.Buffer
		cfg := config.DefaultConfig()
		a := &app{cfg: cfg, logOut: &buf, logger: newLogger(cfg, &buf, "smartkb")}

		// When
		a.log("tasks").Info("task created")

		// Then
		line := strings.TrimSpace(buf.String())
		if n := strings.Count(line, `"component"`); n != 1 {
			t.Fatalf("expected one component key, got %d in %s", n, line)
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("invalid JSON log line: %v", err)
		}
		if rec["component"] != "tasks" {
			t.Errorf("expected component tasks, got %v", rec["component"])
		}
	})
}
