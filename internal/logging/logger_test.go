package logging

import (
	"bytes"
	"context"
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
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLoggerToLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "warn")

	logger.Info("should be dropped")
	logger.Warn("should appear")

	out := buf.String()
	if strings.Contains(out, "should be dropped") {
		t.Error("info record leaked through warn-level logger")
	}
	if !strings.Contains(out, "should appear") {
		t.Error("warn record missing")
	}
}

func TestWithConnectionUniqueIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "info")

	WithConnection(logger, "127.0.0.1:1000").Info("first")
	WithConnection(logger, "127.0.0.1:1001").Info("second")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if !strings.Contains(lines[0], "conn_id=") || !strings.Contains(lines[0], "remote_addr=127.0.0.1:1000") {
		t.Errorf("missing connection attributes: %s", lines[0])
	}

	id := func(line string) string {
		for _, field := range strings.Fields(line) {
			if v, ok := strings.CutPrefix(field, "conn_id="); ok {
				return v
			}
		}
		return ""
	}
	if id(lines[0]) == id(lines[1]) {
		t.Errorf("connection IDs should differ: %q vs %q", id(lines[0]), id(lines[1]))
	}
}

func TestWithWorker(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "info")

	WithWorker(logger, 3).Info("picked up file")

	if !strings.Contains(buf.String(), "worker=3") {
		t.Errorf("missing worker attribute: %s", buf.String())
	}
}

func TestContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "info")

	ctx := NewContext(context.Background(), logger)
	if got := FromContext(ctx); got != logger {
		t.Error("FromContext did not return the attached logger")
	}
	if got := FromContext(context.Background()); got == nil {
		t.Error("FromContext on bare context should fall back to the default logger")
	}
}

func TestTransactionWriter(t *testing.T) {
	var log, out bytes.Buffer
	logger := NewLoggerTo(&log, "debug")

	tw := NewTransactionWriter(&out, logger, "send")
	if _, err := tw.Write([]byte("250 OK\r\n")); err != nil {
		t.Fatal(err)
	}

	if out.String() != "250 OK\r\n" {
		t.Errorf("wrapped writer got %q", out.String())
	}
	if !strings.Contains(log.String(), "direction=send") {
		t.Errorf("transaction log missing direction: %s", log.String())
	}
}

func TestTransactionReader(t *testing.T) {
	var log bytes.Buffer
	logger := NewLoggerTo(&log, "debug")

	tr := NewTransactionReader(strings.NewReader("HELO client\r\n"), logger, "recv")
	buf := make([]byte, 64)
	n, err := tr.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf[:n]) != "HELO client\r\n" {
		t.Errorf("read %q", buf[:n])
	}
	if !strings.Contains(log.String(), "direction=recv") {
		t.Errorf("transaction log missing direction: %s", log.String())
	}
}
