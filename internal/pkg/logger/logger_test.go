package logger

import (
	"context"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseLevel(tt.input)
			if got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	for _, format := range []string{"text", "json"} {
		l := New("info", format)
		if l == nil || l.Logger == nil {
			t.Fatalf("New(info, %s) returned nil logger", format)
		}
	}
}

func TestWithContext(t *testing.T) {
	l := Default()

	// No request ID in context: same underlying logger is fine.
	if got := l.WithContext(context.Background()); got == nil {
		t.Fatal("WithContext returned nil")
	}

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-123")
	if got := l.WithContext(ctx); got == l {
		t.Error("expected a derived logger when request ID is present")
	}
}

func TestWithTenant(t *testing.T) {
	l := Default()
	if got := l.WithTenant("acme"); got == nil || got == l {
		t.Error("expected a derived logger with tenant context")
	}
}
