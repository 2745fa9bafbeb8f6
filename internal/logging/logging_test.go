package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func captureRecord(t *testing.T, sanitize bool, log func(l *slog.Logger)) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	handler := NewSanitizingHandler(slog.NewJSONHandler(&buf, nil), sanitize)
	log(slog.New(handler))

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("log output is not JSON: %v\n%s", err, buf.String())
	}
	return out
}

func TestSanitizingHandler_RedactsSensitiveKeys(t *testing.T) {
	out := captureRecord(t, true, func(l *slog.Logger) {
		l.Info("run", "command", "ls", "env", "SECRET=1", "api_token", "abc")
	})

	if out["command"] != "ls" {
		t.Errorf("command = %v, want passed through", out["command"])
	}
	if out["env"] != "[REDACTED]" {
		t.Errorf("env = %v, want redacted", out["env"])
	}
	if out["api_token"] != "[REDACTED]" {
		t.Errorf("api_token = %v, want redacted", out["api_token"])
	}
}

func TestSanitizingHandler_Disabled(t *testing.T) {
	out := captureRecord(t, false, func(l *slog.Logger) {
		l.Info("run", "password", "hunter2")
	})
	if out["password"] != "hunter2" {
		t.Errorf("password = %v, want unsanitized passthrough", out["password"])
	}
}

func TestSanitizingHandler_WithAttrsAndGroups(t *testing.T) {
	out := captureRecord(t, true, func(l *slog.Logger) {
		l.With("session_token", "abc").Info("msg",
			slog.Group("run", slog.String("passphrase", "x"), slog.String("dir", "/tmp")))
	})

	if out["session_token"] != "[REDACTED]" {
		t.Errorf("session_token = %v, want redacted", out["session_token"])
	}
	group, ok := out["run"].(map[string]any)
	if !ok {
		t.Fatalf("run group missing: %v", out)
	}
	if group["passphrase"] != "[REDACTED]" {
		t.Errorf("run.passphrase = %v, want redacted", group["passphrase"])
	}
	if group["dir"] != "/tmp" {
		t.Errorf("run.dir = %v, want passed through", group["dir"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSanitizingHandler_EnabledRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	handler := NewSanitizingHandler(slog.NewJSONHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}), true)
	logger := slog.New(handler)

	logger.Debug("dropped")
	logger.Info("dropped too")
	if buf.Len() != 0 {
		t.Errorf("below-level records logged: %s", buf.String())
	}

	logger.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Error("warn record missing")
	}
}
