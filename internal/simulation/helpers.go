package simulation

import (
	"strings"
	"testing"

	"github.com/nvandessel/roadrunner/internal/engine"
)

// QuietConfig returns a configuration with spawning disabled, so only the
// reset obstacle and scripted obstacles move.
func QuietConfig(lanes, maxSteps int) engine.Config {
	cfg := engine.DefaultConfig(lanes)
	cfg.Spawn = engine.SpawnProbability(0)
	cfg.MaxSteps = maxSteps
	return cfg
}

// Actions parses a space-separated action script such as "hold left left".
func Actions(t *testing.T, script string) []engine.Action {
	t.Helper()
	fields := strings.Fields(script)
	actions := make([]engine.Action, 0, len(fields))
	for _, f := range fields {
		a, err := engine.ParseAction(f)
		if err != nil {
			t.Fatalf("Actions(%q): %v", script, err)
		}
		actions = append(actions, a)
	}
	return actions
}

// Repeat returns n copies of a.
func Repeat(a engine.Action, n int) []engine.Action {
	actions := make([]engine.Action, n)
	for i := range actions {
		actions[i] = a
	}
	return actions
}

// SequenceRand replays fixed draws. Float64 values and IntN values are
// consumed from separate queues; an exhausted queue returns 0.99 or n-1.
type SequenceRand struct {
	Floats []float64
	Ints   []int
}

func (s *SequenceRand) Float64() float64 {
	if len(s.Floats) == 0 {
		return 0.99
	}
	f := s.Floats[0]
	s.Floats = s.Floats[1:]
	return f
}

func (s *SequenceRand) IntN(n int) int {
	if len(s.Ints) == 0 {
		return n - 1
	}
	v := s.Ints[0]
	s.Ints = s.Ints[1:]
	if v >= n {
		v = n - 1
	}
	return v
}
