package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvandessel/roadrunner/internal/engine"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  slog.Level
	}{
		{"info", "info", slog.LevelInfo},
		{"debug", "debug", slog.LevelDebug},
		{"trace", "trace", LevelTrace},
		{"uppercase INFO", "INFO", slog.LevelInfo},
		{"uppercase DEBUG", "DEBUG", slog.LevelDebug},
		{"uppercase TRACE", "TRACE", LevelTrace},
		{"mixed case Debug", "Debug", slog.LevelDebug},
		{"unknown defaults to info", "unknown", slog.LevelInfo},
		{"empty defaults to info", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name  string
		level string
	}{
		{"info level", "info"},
		{"debug level", "debug"},
		{"trace level", "trace"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(tt.level, &buf)
			if logger == nil {
				t.Fatal("NewLogger returned nil")
			}
		})
	}
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		name       string
		level      string
		logAtDebug bool
		logAtInfo  bool
	}{
		{"info filters debug", "info", false, true},
		{"debug passes debug", "debug", true, true},
		{"trace passes debug", "trace", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(tt.level, &buf)

			logger.Debug("debug message")
			hasDebug := strings.Contains(buf.String(), "debug message")
			if hasDebug != tt.logAtDebug {
				t.Errorf("debug message visible = %v, want %v (buf: %q)", hasDebug, tt.logAtDebug, buf.String())
			}

			buf.Reset()
			logger.Info("info message")
			hasInfo := strings.Contains(buf.String(), "info message")
			if hasInfo != tt.logAtInfo {
				t.Errorf("info message visible = %v, want %v (buf: %q)", hasInfo, tt.logAtInfo, buf.String())
			}
		})
	}
}

func TestLevelTrace(t *testing.T) {
	// Trace should be below debug (more verbose)
	if LevelTrace >= slog.LevelDebug {
		t.Errorf("LevelTrace (%d) should be less than LevelDebug (%d)", LevelTrace, slog.LevelDebug)
	}
}

func sampleResult() engine.StepResult {
	return engine.StepResult{
		Observation: engine.Observation{Distances: []float64{1, 0.7, 0.2}, Lane: 2},
		Reward:      1,
		Done:        false,
		Info:        engine.Info{Step: 4, Spawned: 1, Pruned: 0},
	}
}

func TestNewTraceLogger_InfoLevel(t *testing.T) {
	dir := t.TempDir()
	tl := NewTraceLogger(dir, "info")

	// At info level, trace logger should be nil
	if tl != nil {
		t.Error("expected nil TraceLogger at info level")
	}

	// Nil logger should still be safe to use
	tl.Log("ep", engine.Hold, sampleResult(), nil)

	if _, err := os.Stat(filepath.Join(dir, TraceFile)); err == nil {
		t.Error("trace.jsonl should not exist at info level")
	}
}

func TestNewTraceLogger_DebugLevel(t *testing.T) {
	dir := t.TempDir()
	tl := NewTraceLogger(dir, "debug")
	defer tl.Close()

	if tl.Verbose() {
		t.Error("debug level should not record obstacles")
	}

	obstacles := []engine.Obstacle{{Lane: 1, Distance: 0.7, Speed: 0.1}}
	tl.Log("ep-1", engine.Right, sampleResult(), obstacles)

	data, err := os.ReadFile(filepath.Join(dir, TraceFile))
	if err != nil {
		t.Fatalf("failed to read trace.jsonl: %v", err)
	}

	var entry Transition
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("failed to parse JSONL entry: %v", err)
	}

	if entry.Episode != "ep-1" {
		t.Errorf("episode = %v, want ep-1", entry.Episode)
	}
	if entry.Action != "right" {
		t.Errorf("action = %v, want right", entry.Action)
	}
	if entry.Step != 4 || entry.Lane != 2 || entry.Spawned != 1 {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if len(entry.Distances) != 3 || entry.Distances[2] != 0.2 {
		t.Errorf("distances = %v, want [1 0.7 0.2]", entry.Distances)
	}
	if entry.Time == "" {
		t.Error("expected 'time' field in trace entry")
	}
	if entry.Obstacles != nil {
		t.Errorf("obstacles should be omitted at debug level, got %v", entry.Obstacles)
	}
}

func TestNewTraceLogger_TraceLevelRecordsObstacles(t *testing.T) {
	dir := t.TempDir()
	tl := NewTraceLogger(dir, "trace")
	defer tl.Close()

	if !tl.Verbose() {
		t.Fatal("trace level should be verbose")
	}

	obstacles := []engine.Obstacle{{Lane: 1, Distance: 0.7, Speed: 0.1}}
	tl.Log("ep-2", engine.Hold, sampleResult(), obstacles)

	data, err := os.ReadFile(filepath.Join(dir, TraceFile))
	if err != nil {
		t.Fatalf("failed to read trace.jsonl: %v", err)
	}

	var entry Transition
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("failed to parse JSONL entry: %v", err)
	}
	if len(entry.Obstacles) != 1 || entry.Obstacles[0].Lane != 1 {
		t.Errorf("obstacles = %+v, want one obstacle on lane 1", entry.Obstacles)
	}
}

func TestTraceWriter_MultipleWrites(t *testing.T) {
	var buf bytes.Buffer
	tl := NewTraceWriter(&buf, false)

	tl.Log("a", engine.Hold, sampleResult(), nil)
	tl.Log("b", engine.Left, sampleResult(), nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}

	var first, second Transition
	json.Unmarshal([]byte(lines[0]), &first)
	json.Unmarshal([]byte(lines[1]), &second)

	if first.Episode != "a" || first.Action != "hold" {
		t.Errorf("first = %+v", first)
	}
	if second.Episode != "b" || second.Action != "left" {
		t.Errorf("second = %+v", second)
	}
}

func TestTraceLogger_NilSafety(t *testing.T) {
	// nil TraceLogger should not panic
	var tl *TraceLogger
	tl.Log("ep", engine.Hold, sampleResult(), nil)
	tl.Close()
	if tl.Verbose() {
		t.Error("nil TraceLogger should not be verbose")
	}
}

func TestTraceLogger_LogAfterClose(t *testing.T) {
	dir := t.TempDir()
	tl := NewTraceLogger(dir, "debug")

	tl.Log("ep", engine.Hold, sampleResult(), nil)
	tl.Close()

	// Should be a no-op, not panic or error
	tl.Log("ep", engine.Hold, sampleResult(), nil)
}

func TestNewTraceLogger_CreatesDir(t *testing.T) {
	base := t.TempDir()
	nestedDir := filepath.Join(base, "sub", "dir")

	tl := NewTraceLogger(nestedDir, "debug")
	if tl == nil {
		t.Fatal("expected non-nil TraceLogger when dir needs creation")
	}
	defer tl.Close()

	tl.Log("ep", engine.Hold, sampleResult(), nil)

	info, err := os.Stat(filepath.Join(nestedDir, TraceFile))
	if err != nil {
		t.Fatalf("trace.jsonl should exist after dir creation: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permissions = %o, want 0600", perm)
	}
}
