package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("Given a component When logging Then the record carries it", func(t *testing.T) {
		// Given
		var buf bytes.Buffer
		lg := NewLogger(Options{Level: "info", Writer: &buf, Component: "tasks"})

		// When
		lg.Info("created", "task", "t1")

		// Then
		var rec map[string]any
		if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
			t.Fatalf("invalid json: %v", err)
		}
		if rec["component"] != "tasks" {
			t.Errorf("expected component=tasks, got %v", rec["component"])
		}
		if rec["task"] != "t1" {
			t.Errorf("expected task=t1, got %v", rec["task"])
		}
	})

	t.Run("Given level warn When logging info Then nothing is written", func(t *testing.T) {
		// Given
		var buf bytes.Buffer
		lg := NewLogger(Options{Level: "warn", Writer: &buf})

		// When
		lg.Info("ignored")

		// Then
		if buf.Len() != 0 {
			t.Errorf("expected no output, got %q", buf.String())
		}
	})
}
