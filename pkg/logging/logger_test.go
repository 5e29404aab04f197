package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// TestParseLevel tests level name parsing
func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		want    LogLevel
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"", InfoLevel, false},
		{" warning ", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"verbose", InfoLevel, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

// TestStructuredLogger tests JSON output, level filtering and context ids
func TestStructuredLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger("segmenter", "test", InfoLevel)
	logger.SetOutput(&buf)

	ctx := WithRunID(WithRequestID(context.Background(), "req-1"), "run-1")

	logger.Debug(ctx, "[HIDDEN] below level", Fields{})
	logger.Info(ctx, "[RUN] started", Fields{"locations": 3})
	logger.Error(ctx, "[RUN_ERROR] failed", Fields{}, errors.New("boom"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2: %q", len(lines), buf.String())
	}

	var info LogEntry
	if err := json.Unmarshal([]byte(lines[0]), &info); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if info.Level != "INFO" || info.Message != "[RUN] started" {
		t.Errorf("entry = %+v", info)
	}
	if info.RequestID != "req-1" || info.RunID != "run-1" {
		t.Errorf("ids = %q/%q, want req-1/run-1", info.RequestID, info.RunID)
	}
	if info.Fields["locations"] != float64(3) {
		t.Errorf("fields = %v", info.Fields)
	}

	var failed LogEntry
	if err := json.Unmarshal([]byte(lines[1]), &failed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if failed.Error != "boom" || failed.File == "" || failed.Line == 0 {
		t.Errorf("error entry missing details: %+v", failed)
	}
}

// TestContextLogger tests field merging
func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger("ingester", "test", DebugLevel)
	logger.SetOutput(&buf)

	fileLogger := logger.WithFields(Fields{"file": "a.csv", "stage": "parse"})
	fileLogger.Info(context.Background(), "[INGEST] file loaded", Fields{"stage": "load"})

	var entry LogEntry
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry.Fields["file"] != "a.csv" || entry.Fields["stage"] != "load" {
		t.Errorf("fields = %v", entry.Fields)
	}
	if RunID(context.Background()) != "" {
		t.Error("RunID of empty context should be empty")
	}
}
