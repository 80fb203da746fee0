package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("%q: expected %v, got %v", in, want, got)
		}
	}
}

func TestComponentAndOperation(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Output: &buf})
	if logger.Component() != ComponentApp {
		t.Fatalf("expected default component, got %q", logger.Component())
	}

	logger.Base().With(FieldComponent, ComponentLedger).Info("row written")
	line := buf.String()
	if strings.Count(line, "component=") != 1 || !strings.Contains(line, "component=ledger") {
		t.Fatalf("expected exactly one component attr: %s", line)
	}

	buf.Reset()
	logger.Operation(context.Background(), OpSync, errors.New("remote down"))
	if line := buf.String(); !strings.Contains(line, "level=ERROR") || !strings.Contains(line, "operation=sync") {
		t.Fatalf("expected failed operation at error level: %s", line)
	}

	buf.Reset()
	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug should be filtered at info level: %s", buf.String())
	}
}
