package mcp

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/roadrunner/internal/constants"
	"github.com/nvandessel/roadrunner/internal/engine"
	"github.com/nvandessel/roadrunner/internal/logging"
	"github.com/nvandessel/roadrunner/internal/metrics"
	"github.com/nvandessel/roadrunner/internal/ratelimit"
	"github.com/nvandessel/roadrunner/internal/store"
)

func setupTestServer(t *testing.T, maxSteps int) (*Server, *store.InMemoryEpisodeStore, string) {
	t.Helper()
	tmpDir := t.TempDir()

	envCfg := engine.DefaultConfig(3)
	envCfg.Spawn = engine.SpawnProbability(0)
	envCfg.MaxSteps = maxSteps

	episodes := store.NewInMemoryEpisodeStore()
	server, err := NewServer(&Config{
		Name:     "test-server",
		Version:  "v1.0.0",
		Engine:   envCfg,
		Seed:     1,
		AuditDir: tmpDir,
		Store:    episodes,
		Metrics:  metrics.NewCollector("test"),
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	t.Cleanup(func() { server.Close() })

	return server, episodes, tmpDir
}

func step(t *testing.T, s *Server, action string) StepOutput {
	t.Helper()
	_, out, err := s.handleStep(context.Background(), &sdk.CallToolRequest{}, StepInput{Action: action})
	if err != nil {
		t.Fatalf("handleStep(%q) failed: %v", action, err)
	}
	return out
}

func TestNewServer_InvalidEngineConfig(t *testing.T) {
	_, err := NewServer(&Config{Name: "test", Engine: engine.Config{Lanes: 0, BaseSpeed: 0.1, ObstacleLength: 0.05}})
	if !errors.Is(err, engine.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestHandleObserve_Initial(t *testing.T) {
	server, _, _ := setupTestServer(t, 5)

	_, out, err := server.handleObserve(context.Background(), &sdk.CallToolRequest{}, ObserveInput{})
	if err != nil {
		t.Fatalf("handleObserve failed: %v", err)
	}

	if out.Observation.Lane != 1 {
		t.Errorf("Lane = %d, want 1", out.Observation.Lane)
	}
	for i, d := range out.Observation.Distances {
		if d != 1.0 {
			t.Errorf("Distances[%d] = %v, want 1.0", i, d)
		}
	}
	if out.Step != 1 {
		t.Errorf("Step = %d, want 1", out.Step)
	}
	if out.Finished {
		t.Error("fresh episode should not be finished")
	}
	if out.Episode == "" {
		t.Error("expected an episode ID")
	}
}

func TestHandleStep_StepLimit(t *testing.T) {
	server, episodes, _ := setupTestServer(t, 5)

	var out StepOutput
	for i := 0; i < 5; i++ {
		out = step(t, server, "hold")
		if want := i == 4; out.Done != want {
			t.Fatalf("step %d: Done = %v, want %v", i+1, out.Done, want)
		}
		if out.Reward != 1 {
			t.Errorf("step %d: Reward = %v, want 1", i+1, out.Reward)
		}
	}
	if out.Return != 5 {
		t.Errorf("Return = %v, want 5", out.Return)
	}
	if !out.Info.StepLimit || out.Info.Collision {
		t.Errorf("unexpected info: %+v", out.Info)
	}

	ep, err := episodes.GetEpisode(context.Background(), out.Episode)
	if err != nil {
		t.Fatalf("GetEpisode failed: %v", err)
	}
	if ep == nil {
		t.Fatal("expected finished episode to be recorded")
	}
	if ep.Outcome != constants.OutcomeStepLimit || ep.Steps != 5 || ep.Policy != PolicyName || ep.Seed != 1 {
		t.Errorf("unexpected recorded episode: %+v", ep)
	}

	// Stepping after done is allowed and does not record again.
	after := step(t, server, "left")
	if !after.Done {
		t.Error("expected done to stay true past the step limit")
	}
	if after.Return != 5 {
		t.Errorf("Return after done = %v, want 5", after.Return)
	}
	stats, err := episodes.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Episodes != 1 {
		t.Errorf("expected 1 recorded episode, got %d", stats.Episodes)
	}
}

func TestHandleStep_AfterDoneIsNotMetered(t *testing.T) {
	envCfg := engine.DefaultConfig(3)
	envCfg.Spawn = engine.SpawnProbability(0)
	envCfg.MaxSteps = 3

	collector := metrics.NewCollector("test")
	var trace bytes.Buffer
	server, err := NewServer(&Config{
		Name:    "test-server",
		Engine:  envCfg,
		Seed:    1,
		Tracer:  logging.NewTraceWriter(&trace, false),
		Metrics: collector,
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	t.Cleanup(func() { server.Close() })

	for i := 0; i < 6; i++ {
		step(t, server, "hold")
	}

	var text bytes.Buffer
	if err := collector.WriteText(&text); err != nil {
		t.Fatalf("WriteText failed: %v", err)
	}
	if !strings.Contains(text.String(), "test_tick_total 3") {
		t.Errorf("expected only the 3 in-episode ticks to be counted:\n%s", text.String())
	}
	if lines := strings.Count(trace.String(), "\n"); lines != 3 {
		t.Errorf("expected 3 trace lines, got %d", lines)
	}
}

func TestHandleStep_Collision(t *testing.T) {
	server, episodes, _ := setupTestServer(t, 100)

	var out StepOutput
	for i := 0; i < 10; i++ {
		out = step(t, server, "hold")
	}
	if !out.Done || !out.Info.Collision {
		t.Fatalf("expected collision on step 10, got done=%v info=%+v", out.Done, out.Info)
	}

	ep, err := episodes.GetEpisode(context.Background(), out.Episode)
	if err != nil {
		t.Fatalf("GetEpisode failed: %v", err)
	}
	if ep == nil || ep.Outcome != constants.OutcomeCollision {
		t.Errorf("expected collision episode, got %+v", ep)
	}
}

func TestHandleStep_Actions(t *testing.T) {
	tests := []struct {
		action   string
		wantLane int
	}{
		{"hold", 1},
		{"left", 0},
		{"right", 2},
		{"0", 1},
		{"1", 0},
		{"2", 2},
	}

	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			server, _, _ := setupTestServer(t, 5)
			out := step(t, server, tt.action)
			if out.Observation.Lane != tt.wantLane {
				t.Errorf("Lane = %d, want %d", out.Observation.Lane, tt.wantLane)
			}
		})
	}
}

func TestHandleStep_InvalidAction(t *testing.T) {
	server, _, _ := setupTestServer(t, 5)

	_, _, err := server.handleStep(context.Background(), &sdk.CallToolRequest{}, StepInput{Action: "jump"})
	if !errors.Is(err, engine.ErrInvalidAction) {
		t.Fatalf("expected ErrInvalidAction, got %v", err)
	}

	_, out, err := server.handleObserve(context.Background(), &sdk.CallToolRequest{}, ObserveInput{})
	if err != nil {
		t.Fatalf("handleObserve failed: %v", err)
	}
	if out.Step != 1 {
		t.Errorf("invalid action advanced the step counter to %d", out.Step)
	}
}

func TestHandleReset(t *testing.T) {
	server, episodes, _ := setupTestServer(t, 5)
	ctx := context.Background()

	first := step(t, server, "left")
	step(t, server, "hold")

	seed := uint64(42)
	_, out, err := server.handleReset(ctx, &sdk.CallToolRequest{}, ResetInput{Seed: &seed})
	if err != nil {
		t.Fatalf("handleReset failed: %v", err)
	}
	if out.Episode == first.Episode {
		t.Error("expected a new episode ID after reset")
	}
	if out.Observation.Lane != 1 {
		t.Errorf("Lane after reset = %d, want 1", out.Observation.Lane)
	}
	if out.Spaces.Actions != engine.NumActions || out.Spaces.Lanes != 3 {
		t.Errorf("unexpected spaces: %+v", out.Spaces)
	}

	ep, err := episodes.GetEpisode(ctx, first.Episode)
	if err != nil {
		t.Fatalf("GetEpisode failed: %v", err)
	}
	if ep == nil || ep.Outcome != constants.OutcomeAborted || ep.Steps != 2 {
		t.Errorf("expected interrupted episode to be recorded as aborted, got %+v", ep)
	}

	// Resetting an episode that never stepped records nothing.
	if _, _, err := server.handleReset(ctx, &sdk.CallToolRequest{}, ResetInput{}); err != nil {
		t.Fatalf("handleReset failed: %v", err)
	}
	stats, err := episodes.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Episodes != 1 {
		t.Errorf("expected 1 recorded episode, got %d", stats.Episodes)
	}
}

func TestHandleReset_RateLimited(t *testing.T) {
	server, _, _ := setupTestServer(t, 5)
	server.toolLimiters = ratelimit.ToolLimiters{ratelimit.ToolReset: ratelimit.NewLimiter(0, 1)}

	if _, _, err := server.handleReset(context.Background(), &sdk.CallToolRequest{}, ResetInput{}); err != nil {
		t.Fatalf("first reset should be allowed: %v", err)
	}
	_, _, err := server.handleReset(context.Background(), &sdk.CallToolRequest{}, ResetInput{})
	if err == nil || !strings.Contains(err.Error(), "rate limit exceeded") {
		t.Errorf("expected rate limit error, got %v", err)
	}
}

func TestClose_RecordsAbortedEpisode(t *testing.T) {
	server, episodes, _ := setupTestServer(t, 5)
	out := step(t, server, "hold")

	if err := server.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	ep, err := episodes.GetEpisode(context.Background(), out.Episode)
	if err != nil {
		t.Fatalf("GetEpisode failed: %v", err)
	}
	if ep == nil || ep.Outcome != constants.OutcomeAborted {
		t.Errorf("expected aborted episode on close, got %+v", ep)
	}
}

func TestAuditLog(t *testing.T) {
	server, _, dir := setupTestServer(t, 5)

	step(t, server, "right")
	server.handleStep(context.Background(), &sdk.CallToolRequest{}, StepInput{Action: "jump\n{\"tool\":\"forged\"}"})
	if err := server.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, AuditFile))
	if err != nil {
		t.Fatalf("failed to read audit log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 audit entries, got %d:\n%s", len(lines), data)
	}
	if !strings.Contains(lines[0], `"tool":"roadrunner_step"`) || !strings.Contains(lines[0], `"status":"success"`) {
		t.Errorf("unexpected first entry: %s", lines[0])
	}
	if !strings.Contains(lines[1], `"status":"error"`) {
		t.Errorf("expected error entry, got %s", lines[1])
	}
	if strings.Contains(string(data), `"tool":"forged"`) {
		t.Errorf("audit log accepted a forged entry:\n%s", data)
	}
}

func TestAuditLogger_NilSafe(t *testing.T) {
	var a *AuditLogger
	a.Log(AuditEntry{Tool: "x"})
	if err := a.Close(); err != nil {
		t.Errorf("nil Close returned %v", err)
	}
}

func TestHandleSpacesResource(t *testing.T) {
	server, _, _ := setupTestServer(t, 5)

	res, err := server.handleSpacesResource(context.Background(), &sdk.ReadResourceRequest{})
	if err != nil {
		t.Fatalf("handleSpacesResource failed: %v", err)
	}
	if len(res.Contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(res.Contents))
	}
	text := res.Contents[0].Text
	if !strings.Contains(text, `"actions":3`) || !strings.Contains(text, `"lanes":3`) {
		t.Errorf("unexpected spaces resource: %s", text)
	}
}
