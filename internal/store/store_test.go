package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nvandessel/roadrunner/internal/constants"
)

// storeFactories runs each contract test against every implementation.
func storeFactories() map[string]func(t *testing.T) EpisodeStore {
	return map[string]func(t *testing.T) EpisodeStore{
		"memory": func(t *testing.T) EpisodeStore {
			return NewInMemoryEpisodeStore()
		},
		"sqlite": func(t *testing.T) EpisodeStore {
			s, err := NewSQLiteEpisodeStore(t.TempDir())
			if err != nil {
				t.Fatalf("NewSQLiteEpisodeStore failed: %v", err)
			}
			return s
		},
	}
}

func testEpisodes(base time.Time) []Episode {
	return []Episode{
		{ID: "ep-1", Policy: "greedy", Seed: 1, Lanes: 3, Steps: 100, Return: 100, Outcome: constants.OutcomeStepLimit, CreatedAt: base},
		{ID: "ep-2", Policy: "random", Seed: 2, Lanes: 3, Steps: 12, Return: 12, Outcome: constants.OutcomeCollision, CreatedAt: base.Add(time.Second)},
		{ID: "ep-3", Policy: "greedy", Seed: math.MaxUint64, Lanes: 5, Steps: 40, Return: 40, Outcome: constants.OutcomeCollision, CreatedAt: base.Add(2 * time.Second)},
	}
}

func TestEpisodeStore_RecordAndGet(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			defer s.Close()
			ctx := context.Background()

			base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
			for _, ep := range testEpisodes(base) {
				if err := s.RecordEpisode(ctx, ep); err != nil {
					t.Fatalf("RecordEpisode(%s) failed: %v", ep.ID, err)
				}
			}

			got, err := s.GetEpisode(ctx, "ep-3")
			if err != nil {
				t.Fatalf("GetEpisode failed: %v", err)
			}
			if got == nil {
				t.Fatal("GetEpisode returned nil for existing episode")
			}
			if got.Seed != math.MaxUint64 {
				t.Errorf("Seed = %d, want MaxUint64", got.Seed)
			}
			if got.Lanes != 5 || got.Steps != 40 || got.Return != 40 || got.Policy != "greedy" {
				t.Errorf("unexpected episode: %+v", got)
			}
			if got.Outcome != constants.OutcomeCollision {
				t.Errorf("Outcome = %s, want collision", got.Outcome)
			}
			if !got.CreatedAt.Equal(base.Add(2 * time.Second)) {
				t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, base.Add(2*time.Second))
			}

			missing, err := s.GetEpisode(ctx, "nope")
			if err != nil {
				t.Fatalf("GetEpisode(missing) failed: %v", err)
			}
			if missing != nil {
				t.Errorf("GetEpisode(missing) = %+v, want nil", missing)
			}
		})
	}
}

func TestEpisodeStore_RecordValidation(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			defer s.Close()
			ctx := context.Background()

			if err := s.RecordEpisode(ctx, Episode{Outcome: constants.OutcomeCollision}); err == nil {
				t.Error("expected error for missing ID")
			}
			if err := s.RecordEpisode(ctx, Episode{ID: "x", Outcome: "exploded"}); err == nil {
				t.Error("expected error for invalid outcome")
			}

			ep := Episode{ID: "dup", Policy: "hold", Outcome: constants.OutcomeAborted}
			if err := s.RecordEpisode(ctx, ep); err != nil {
				t.Fatalf("RecordEpisode failed: %v", err)
			}
			if err := s.RecordEpisode(ctx, ep); !errors.Is(err, ErrDuplicateEpisode) {
				t.Errorf("duplicate RecordEpisode error = %v, want ErrDuplicateEpisode", err)
			}

			got, err := s.GetEpisode(ctx, "dup")
			if err != nil || got == nil {
				t.Fatalf("GetEpisode(dup) = %v, %v", got, err)
			}
			if got.CreatedAt.IsZero() {
				t.Error("expected CreatedAt to be filled in")
			}
		})
	}
}

func TestEpisodeStore_List(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			defer s.Close()
			ctx := context.Background()

			base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
			for _, ep := range testEpisodes(base) {
				if err := s.RecordEpisode(ctx, ep); err != nil {
					t.Fatalf("RecordEpisode(%s) failed: %v", ep.ID, err)
				}
			}

			tests := []struct {
				name    string
				opts    ListOptions
				wantIDs []string
			}{
				{"all newest first", ListOptions{}, []string{"ep-3", "ep-2", "ep-1"}},
				{"by policy", ListOptions{Policy: "greedy"}, []string{"ep-3", "ep-1"}},
				{"by outcome", ListOptions{Outcome: constants.OutcomeCollision}, []string{"ep-3", "ep-2"}},
				{"limit", ListOptions{Limit: 2}, []string{"ep-3", "ep-2"}},
				{"no match", ListOptions{Policy: "hold"}, []string{}},
			}

			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					got, err := s.ListEpisodes(ctx, tt.opts)
					if err != nil {
						t.Fatalf("ListEpisodes failed: %v", err)
					}
					ids := make([]string, 0, len(got))
					for _, ep := range got {
						ids = append(ids, ep.ID)
					}
					if strings.Join(ids, ",") != strings.Join(tt.wantIDs, ",") {
						t.Errorf("ListEpisodes(%+v) = %v, want %v", tt.opts, ids, tt.wantIDs)
					}
				})
			}
		})
	}
}

func TestEpisodeStore_Stats(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			defer s.Close()
			ctx := context.Background()

			empty, err := s.Stats(ctx)
			if err != nil {
				t.Fatalf("Stats on empty store failed: %v", err)
			}
			if empty.Episodes != 0 || empty.MeanReturn != 0 {
				t.Errorf("empty stats = %+v", empty)
			}

			for _, ep := range testEpisodes(time.Now()) {
				if err := s.RecordEpisode(ctx, ep); err != nil {
					t.Fatalf("RecordEpisode(%s) failed: %v", ep.ID, err)
				}
			}

			stats, err := s.Stats(ctx)
			if err != nil {
				t.Fatalf("Stats failed: %v", err)
			}
			if stats.Episodes != 3 {
				t.Errorf("Episodes = %d, want 3", stats.Episodes)
			}
			if math.Abs(stats.MeanReturn-152.0/3) > 1e-9 {
				t.Errorf("MeanReturn = %v, want %v", stats.MeanReturn, 152.0/3)
			}
			if stats.BestReturn != 100 {
				t.Errorf("BestReturn = %v, want 100", stats.BestReturn)
			}
			if stats.ByOutcome[constants.OutcomeCollision] != 2 || stats.ByOutcome[constants.OutcomeStepLimit] != 1 {
				t.Errorf("ByOutcome = %v", stats.ByOutcome)
			}
		})
	}
}

func TestSQLiteEpisodeStore_Reopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewSQLiteEpisodeStore(dir)
	if err != nil {
		t.Fatalf("NewSQLiteEpisodeStore failed: %v", err)
	}
	ep := Episode{ID: "persist", Policy: "hold", Lanes: 3, Steps: 9, Return: 9, Outcome: constants.OutcomeCollision}
	if err := s.RecordEpisode(ctx, ep); err != nil {
		t.Fatalf("RecordEpisode failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, DBFile)); err != nil {
		t.Fatalf("database file missing: %v", err)
	}

	reopened, err := NewSQLiteEpisodeStore(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.GetEpisode(ctx, "persist")
	if err != nil || got == nil {
		t.Fatalf("GetEpisode after reopen = %v, %v", got, err)
	}
	if got.Steps != 9 {
		t.Errorf("Steps = %d, want 9", got.Steps)
	}
}

func TestSQLiteEpisodeStore_RejectsUnknownSchemaVersion(t *testing.T) {
	for _, version := range []int{0, SchemaVersion + 1} {
		t.Run(fmt.Sprintf("version %d", version), func(t *testing.T) {
			dir := t.TempDir()
			s, err := NewSQLiteEpisodeStore(dir)
			if err != nil {
				t.Fatalf("NewSQLiteEpisodeStore failed: %v", err)
			}
			dbPath := s.Path()
			if err := s.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}

			db, err := sql.Open("sqlite", dbPath)
			if err != nil {
				t.Fatalf("sql.Open failed: %v", err)
			}
			if _, err := db.Exec(`UPDATE schema_version SET version = ?`, version); err != nil {
				db.Close()
				t.Fatalf("failed to rewrite schema version: %v", err)
			}
			db.Close()

			_, err = NewSQLiteEpisodeStore(dir)
			if !errors.Is(err, ErrSchemaVersion) {
				t.Errorf("reopen error = %v, want ErrSchemaVersion", err)
			}
		})
	}
}

func TestSQLiteEpisodeStore_CloseTwice(t *testing.T) {
	s, err := NewSQLiteEpisodeStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewSQLiteEpisodeStore failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestExportJSONL(t *testing.T) {
	s := NewInMemoryEpisodeStore()
	ctx := context.Background()
	for _, ep := range testEpisodes(time.Now()) {
		if err := s.RecordEpisode(ctx, ep); err != nil {
			t.Fatalf("RecordEpisode(%s) failed: %v", ep.ID, err)
		}
	}

	var buf bytes.Buffer
	n, err := ExportJSONL(ctx, s, ListOptions{Policy: "greedy"}, &buf)
	if err != nil {
		t.Fatalf("ExportJSONL failed: %v", err)
	}
	if n != 2 {
		t.Errorf("exported %d episodes, want 2", n)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var first Episode
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("failed to parse line: %v", err)
	}
	if first.ID != "ep-3" || first.Outcome != constants.OutcomeCollision {
		t.Errorf("first exported episode = %+v", first)
	}
}
