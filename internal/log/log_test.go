package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewFiltersByLevel(t *testing.T) {
	t.Setenv("GO_ENV", "")
	var buf bytes.Buffer
	l := New("warn", &buf)

	l.Info("capture.frame", "index", 0)
	l.Warn("camera.open_failed", "index", 2)

	out := buf.String()
	if strings.Contains(out, "capture.frame") {
		t.Error("info record should be filtered at warn level")
	}
	if !strings.Contains(out, "camera.open_failed") || !strings.Contains(out, "index=2") {
		t.Errorf("expected warn record in text format, got %q", out)
	}
}

func TestNewJSONInProduction(t *testing.T) {
	t.Setenv("GO_ENV", "production")
	var buf bytes.Buffer
	New("info", &buf).Info("digest.built", "samples", 3)

	if !strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), `"samples":3`) {
		t.Errorf("expected JSON record, got %q", buf.String())
	}
}
