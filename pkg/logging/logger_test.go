package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLevels(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tc := range cases {
		logger := New(tc.level)
		if !logger.Enabled(ctx, tc.want) {
			t.Errorf("New(%q): level %s should be enabled", tc.level, tc.want)
		}
	}
}

func TestNewSuppressesBelowLevel(t *testing.T) {
	ctx := context.Background()
	if New("warn").Enabled(ctx, slog.LevelInfo) {
		t.Fatal("warn logger should suppress info")
	}
	if New("info").Enabled(ctx, slog.LevelDebug) {
		t.Fatal("info logger should suppress debug")
	}
}

func TestNewWithWriterFormats(t *testing.T) {
	var buf bytes.Buffer

	NewWithWriter(&buf, "info", "json").Info("hello", "call_sid", "CA123")
	if !strings.Contains(buf.String(), `"call_sid":"CA123"`) {
		t.Fatalf("expected JSON output, got %q", buf.String())
	}

	buf.Reset()
	NewWithWriter(&buf, "info", "text").Info("hello", "call_sid", "CA123")
	if !strings.Contains(buf.String(), "call_sid=CA123") {
		t.Fatalf("expected text output, got %q", buf.String())
	}

	buf.Reset()
	NewWithWriter(&buf, "info", "yaml").Info("hello", "call_sid", "CA123")
	if !strings.Contains(buf.String(), `"call_sid":"CA123"`) {
		t.Fatalf("unknown format should fall back to JSON, got %q", buf.String())
	}
}

func TestDefaultLogger(t *testing.T) {
	logger := Default()
	if logger.Logger == nil {
		t.Fatal("Default() wrapped a nil slog.Logger")
	}

	ctx := context.Background()
	if !logger.Enabled(ctx, slog.LevelInfo) {
		t.Error("default logger should log at info")
	}
	if logger.Enabled(ctx, slog.LevelDebug) {
		t.Error("default logger should not log at debug")
	}
}
