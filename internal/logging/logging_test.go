package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLevel(tt.name); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestWithSubscription(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	base := slog.New(handler)

	logger := WithSubscription(base, "sub-123", "127.0.0.1")
	logger.Info("stream attached")

	output := buf.String()
	if !strings.Contains(output, "subscription_id=sub-123") {
		t.Errorf("Expected subscription_id in output, got: %s", output)
	}
	if !strings.Contains(output, "client_ip=127.0.0.1") {
		t.Errorf("Expected client_ip in output, got: %s", output)
	}
	if !strings.Contains(output, "stream attached") {
		t.Errorf("Expected message in output, got: %s", output)
	}
}

func TestWithSubscription_NilLogger(t *testing.T) {
	if logger := WithSubscription(nil, "sub", "ip"); logger != nil {
		t.Error("WithSubscription(nil, ...) should return nil")
	}
}

func TestWithSubscription_MultipleMessages(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	base := slog.New(handler)

	logger := WithSubscription(base, "persistent-sub", "::1")

	logger.Info("first message")
	logger.Debug("second message")
	logger.Warn("third message")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Errorf("Expected 3 log lines, got %d", len(lines))
	}
	for i, line := range lines {
		if !strings.Contains(line, "subscription_id=persistent-sub") {
			t.Errorf("Line %d missing subscription_id: %s", i+1, line)
		}
	}
}

func TestSetLevel(t *testing.T) {
	if err := Initialize(Config{Level: "info"}); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	defer Close()

	if level.Level() != slog.LevelInfo {
		t.Fatalf("level after Initialize = %v, want info", level.Level())
	}

	SetLevel("debug")
	if level.Level() != slog.LevelDebug {
		t.Errorf("level after SetLevel(debug) = %v", level.Level())
	}

	SetLevel("error")
	if level.Level() != slog.LevelError {
		t.Errorf("level after SetLevel(error) = %v", level.Level())
	}
}

func TestWithComponent(t *testing.T) {
	logger := WithComponent("bus")
	if logger == nil {
		t.Fatal("WithComponent returned nil")
	}
}
