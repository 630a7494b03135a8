package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestModuleLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(WARN, &buf, false)
	m := l.For("Stream")

	m.Info("dropped %d", 1)
	if buf.Len() != 0 {
		t.Fatalf("info written at WARN level: %q", buf.String())
	}

	m.Warn("send failed: %s", "boom")
	out := buf.String()
	if !strings.Contains(out, "[WARN] [Stream] send failed: boom") {
		t.Errorf("output = %q", out)
	}
}

func TestModuleEnabled(t *testing.T) {
	l := New(INFO, &bytes.Buffer{}, false)
	m := l.For("Stream")
	if m.Enabled(DEBUG) {
		t.Error("DEBUG enabled at INFO level")
	}
	if !m.Enabled(ERROR) {
		t.Error("ERROR disabled at INFO level")
	}

	l.SetLevel(SILENT)
	if m.Enabled(ERROR) {
		t.Error("ERROR enabled at SILENT level")
	}
}

func TestColorPrefix(t *testing.T) {
	var buf bytes.Buffer
	New(DEBUG, &buf, true).Error("Main", "x")
	if !strings.Contains(buf.String(), "\033[31m[ERROR]\033[0m [Main] x") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DEBUG,
		"INFO":    INFO,
		"warning": WARN,
		"error":   ERROR,
		"none":    SILENT,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}

	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("ParseLevel(verbose) returned nil error")
	}
}
