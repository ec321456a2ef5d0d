package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"DEBUG", DebugLevel},
		{"debug", DebugLevel},
		{" info ", InfoLevel},
		{"WARN", WarnLevel},
		{"warning", WarnLevel},
		{"Error", ErrorLevel},
		{"verbose", InfoLevel},
		{"", InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	if got := Level(42).String(); got != "UNKNOWN" {
		t.Errorf("Level(42).String() = %q, want UNKNOWN", got)
	}
	if got := WarnLevel.String(); got != "WARN" {
		t.Errorf("WarnLevel.String() = %q, want WARN", got)
	}
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []LogEntry {
	t.Helper()
	var entries []LogEntry
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var e LogEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("line %q is not JSON: %v", line, err)
		}
		entries = append(entries, e)
	}
	return entries
}

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	logger := NewJSONLogger(&buf, InfoLevel).WithClock(func() time.Time { return fixed })

	logger.Info("alert raised", Cell("cell_3_4"), Int("devices", 3), Error(errors.New("boom")))

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Level != "INFO" || e.Message != "alert raised" {
		t.Errorf("unexpected entry header: %+v", e)
	}
	if e.Time != "2026-03-01T12:00:00Z" {
		t.Errorf("time = %q", e.Time)
	}
	if e.Fields["cell"] != "cell_3_4" {
		t.Errorf("cell field = %v", e.Fields["cell"])
	}
	if e.Fields["devices"] != float64(3) {
		t.Errorf("devices field = %v", e.Fields["devices"])
	}
	if e.Fields["error"] != "boom" {
		t.Errorf("error field = %v", e.Fields["error"])
	}
}

func TestJSONLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, WarnLevel)

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown")
	logger.Error("shown")

	if got := len(decodeLines(t, &buf)); got != 2 {
		t.Errorf("expected 2 entries, got %d", got)
	}
}

func TestWithSharesLevelAndWriter(t *testing.T) {
	var buf bytes.Buffer
	parent := NewJSONLogger(&buf, InfoLevel)
	child := parent.With(Component("routing"), Occupant("u1"))

	parent.SetLevel(ErrorLevel)
	child.Info("suppressed")
	if buf.Len() != 0 {
		t.Fatalf("child ignored parent level change: %s", buf.String())
	}

	parent.SetLevel(DebugLevel)
	child.Debug("route assigned", Occupant("u2"))

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Fields["component"] != "routing" {
		t.Errorf("component = %v", entries[0].Fields["component"])
	}
	if entries[0].Fields["occupant"] != "u2" {
		t.Errorf("call-site field should override preset, got %v", entries[0].Fields["occupant"])
	}
}

func TestTimedOperation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, DebugLevel)

	op := StartTimer(logger, "path search", Node("p1"))
	if d := op.End(); d < 0 {
		t.Errorf("negative duration %v", d)
	}
	op.EndError(errors.New("no route"))

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if _, ok := entries[0].Fields["latency"]; !ok {
		t.Error("latency field missing")
	}
	if entries[1].Level != "ERROR" || entries[1].Fields["error"] != "no route" {
		t.Errorf("unexpected error entry %+v", entries[1])
	}
}

func TestNopLogger(t *testing.T) {
	var l Logger = NewNopLogger()
	l.Info("nothing")
	if l.With(Cell("x")) == nil {
		t.Error("With returned nil")
	}
	if l.GetLevel() != InfoLevel {
		t.Error("unexpected level")
	}
}

func TestOrDefault(t *testing.T) {
	custom := NewNopLogger()
	if OrDefault(custom) != custom {
		t.Error("OrDefault replaced a non-nil logger")
	}
	if OrDefault(nil) == nil {
		t.Error("OrDefault(nil) returned nil")
	}
}
