// Package logging provides leveled logging and transition tracing for roadrunner.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - A TraceLogger for per-tick JSONL transition traces (<store>/trace.jsonl)
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nvandessel/roadrunner/internal/engine"
)

// LevelTrace is a custom slog level below Debug.
// At this level, transition traces also carry the full obstacle set.
const LevelTrace = slog.LevelDebug - 4

// TraceFile is the name of the transition trace written under the store directory.
const TraceFile = "trace.jsonl"

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "info", "debug", "trace" (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled slog.Logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Transition is one JSONL record of the trace.
type Transition struct {
	Time      string            `json:"time"`
	Episode   string            `json:"episode"`
	Step      int               `json:"step"`
	Action    string            `json:"action"`
	Lane      int               `json:"lane"`
	Distances []float64         `json:"distances"`
	Reward    float64           `json:"reward"`
	Done      bool              `json:"done"`
	Spawned   int               `json:"spawned"`
	Pruned    int               `json:"pruned"`
	Obstacles []engine.Obstacle `json:"obstacles,omitempty"`
}

// TraceLogger writes per-tick transitions as JSONL.
// It is safe for concurrent use. A nil TraceLogger is safe to use;
// all methods are no-ops on nil receiver.
type TraceLogger struct {
	mu      sync.Mutex
	w       io.Writer
	closer  io.Closer
	verbose bool
}

// NewTraceLogger creates a trace logger writing to dir/trace.jsonl.
// At "info" level (the default), returns nil and no file is created.
// At "debug" or "trace" level, the file is opened for append.
// Returns nil if the file cannot be opened. All methods are nil-safe.
func NewTraceLogger(dir string, level string) *TraceLogger {
	lvl := ParseLevel(level)
	if lvl == slog.LevelInfo {
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}

	f, err := os.OpenFile(filepath.Join(dir, TraceFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}

	return &TraceLogger{w: f, closer: f, verbose: lvl <= LevelTrace}
}

// NewTraceWriter creates a trace logger writing to w. verbose includes
// obstacle snapshots in every record.
func NewTraceWriter(w io.Writer, verbose bool) *TraceLogger {
	return &TraceLogger{w: w, verbose: verbose}
}

// Verbose reports whether obstacle snapshots are recorded.
// Safe to call on nil receiver.
func (tl *TraceLogger) Verbose() bool {
	return tl != nil && tl.verbose
}

// Log writes the transition for one Step. obstacles is recorded only in
// verbose mode. Safe to call on nil receiver.
func (tl *TraceLogger) Log(episode string, action engine.Action, res engine.StepResult, obstacles []engine.Obstacle) {
	if tl == nil {
		return
	}

	entry := Transition{
		Time:      time.Now().UTC().Format(time.RFC3339Nano),
		Episode:   episode,
		Step:      res.Info.Step,
		Action:    action.String(),
		Lane:      res.Observation.Lane,
		Distances: res.Observation.Distances,
		Reward:    res.Reward,
		Done:      res.Done,
		Spawned:   res.Info.Spawned,
		Pruned:    res.Info.Pruned,
	}
	if tl.verbose {
		entry.Obstacles = obstacles
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	tl.mu.Lock()
	defer tl.mu.Unlock()

	if tl.w == nil {
		return
	}
	_, _ = tl.w.Write(data)
}

// Close closes the underlying file, if any. Safe to call on nil receiver.
func (tl *TraceLogger) Close() {
	if tl == nil {
		return
	}

	tl.mu.Lock()
	defer tl.mu.Unlock()

	if tl.closer != nil {
		tl.closer.Close()
	}
	tl.w = nil
	tl.closer = nil
}
