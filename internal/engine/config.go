package engine

import (
	"fmt"
	"math"

	"github.com/nvandessel/roadrunner/internal/constants"
)

type spawnKind int

const (
	spawnDefault spawnKind = iota
	spawnProbability
	spawnCount
)

// SpawnMode selects how obstacles appear each tick. The zero value resolves
// to SpawnProbability(1/N).
type SpawnMode struct {
	kind        spawnKind
	probability float64
	count       int
}

// SpawnProbability spawns a single obstacle on a uniformly random lane with
// probability p each tick. p must be in [0, 1]; 0 disables spawning.
func SpawnProbability(p float64) SpawnMode {
	return SpawnMode{kind: spawnProbability, probability: p}
}

// SpawnCount spawns one obstacle on each of n distinct random lanes every
// tick. n must be in [1, N].
func SpawnCount(n int) SpawnMode {
	return SpawnMode{kind: spawnCount, count: n}
}

// IsDefault reports whether m is the zero value.
func (m SpawnMode) IsDefault() bool {
	return m.kind == spawnDefault
}

// Probability returns the per-tick spawn probability and true when m is a
// probability mode.
func (m SpawnMode) Probability() (float64, bool) {
	return m.probability, m.kind == spawnProbability
}

// Count returns the per-tick obstacle count and true when m is a count mode.
func (m SpawnMode) Count() (int, bool) {
	return m.count, m.kind == spawnCount
}

// String implements fmt.Stringer.
func (m SpawnMode) String() string {
	switch m.kind {
	case spawnProbability:
		return fmt.Sprintf("probability(%g)", m.probability)
	case spawnCount:
		return fmt.Sprintf("count(%d)", m.count)
	default:
		return "default"
	}
}

// Config holds the immutable parameters of an Engine.
type Config struct {
	// Lanes is the number of lanes N. Lanes form a ring: 0 and N-1 are adjacent.
	Lanes int

	// BaseSpeed is the per-tick distance decrement of spawned obstacles.
	BaseSpeed float64

	// Spawn selects the per-tick spawning policy.
	Spawn SpawnMode

	// MaxSteps is the step limit. Zero derives round(10 / BaseSpeed).
	MaxSteps int

	// ObstacleLength is the collision threshold on the agent's lane.
	ObstacleLength float64
}

// DefaultConfig returns a Config for the given lane count with default
// speed, spawn probability, step limit and obstacle length.
func DefaultConfig(lanes int) Config {
	return Config{
		Lanes:          lanes,
		BaseSpeed:      constants.DefaultBaseSpeed,
		ObstacleLength: constants.DefaultObstacleLength,
	}
}

// Validate checks the configuration and returns an error wrapping
// ErrConfiguration on the first problem found.
func (c Config) Validate() error {
	if c.Lanes < 1 {
		return fmt.Errorf("%w: lanes must be at least 1, got %d", ErrConfiguration, c.Lanes)
	}
	if !(c.BaseSpeed > 0) || math.IsInf(c.BaseSpeed, 0) {
		return fmt.Errorf("%w: base speed must be positive, got %v", ErrConfiguration, c.BaseSpeed)
	}
	if !(c.ObstacleLength > 0) || math.IsInf(c.ObstacleLength, 0) {
		return fmt.Errorf("%w: obstacle length must be positive, got %v", ErrConfiguration, c.ObstacleLength)
	}
	if c.MaxSteps < 0 {
		return fmt.Errorf("%w: max steps must be non-negative, got %d", ErrConfiguration, c.MaxSteps)
	}

	switch c.Spawn.kind {
	case spawnProbability:
		p := c.Spawn.probability
		if !(p >= 0 && p <= 1) {
			return fmt.Errorf("%w: spawn probability must be in [0, 1], got %v", ErrConfiguration, p)
		}
	case spawnCount:
		n := c.Spawn.count
		if n < 1 {
			return fmt.Errorf("%w: spawn count must be at least 1, got %d", ErrConfiguration, n)
		}
		if n > c.Lanes {
			return fmt.Errorf("%w: spawn count %d exceeds lane count %d", ErrConfiguration, n, c.Lanes)
		}
	}

	return nil
}

// withDefaults fills derived fields. It assumes c has been validated.
func (c Config) withDefaults() Config {
	if c.Spawn.kind == spawnDefault {
		c.Spawn = SpawnProbability(1 / float64(c.Lanes))
	}
	if c.MaxSteps == 0 {
		c.MaxSteps = derivedMaxSteps(c.BaseSpeed)
	}
	return c
}

// derivedMaxSteps returns round(MaxStepsFactor / speed), clamped to
// [1, math.MaxInt] so a tiny speed saturates instead of wrapping.
func derivedMaxSteps(speed float64) int {
	steps := math.Round(constants.MaxStepsFactor / speed)
	switch {
	case steps >= float64(math.MaxInt):
		return math.MaxInt
	case steps < 1:
		return 1
	default:
		return int(steps)
	}
}
