package simulation

import (
	"github.com/nvandessel/roadrunner/internal/engine"
	"github.com/nvandessel/roadrunner/internal/runner"
)

// Scenario defines a complete scripted episode.
type Scenario struct {
	Name   string
	Config engine.Config

	// Seed seeds the engine when Rand is nil.
	Seed uint64

	// Rand, when non-nil, replaces the seeded source. Use this for scenarios
	// that need exact control over spawning.
	Rand engine.Rand

	// Obstacles are placed after reset, alongside the obstacle reset puts
	// at the far end of the start lane.
	Obstacles []ObstacleSpec

	// Actions is the literal action script. When empty, Policy drives the
	// episode for MaxTicks ticks.
	Actions []engine.Action

	Policy   runner.Policy
	MaxTicks int

	// StopOnDone ends the scenario at the first done tick instead of
	// playing out the whole script.
	StopOnDone bool
}

// ObstacleSpec defines an obstacle placed after reset. A zero Speed uses
// the configured base speed; Parked pins it in place.
type ObstacleSpec struct {
	Lane     int
	Distance float64
	Speed    float64
	Parked   bool
}

// ToObstacle converts an ObstacleSpec to an engine.Obstacle, applying defaults.
func (o ObstacleSpec) ToObstacle(baseSpeed float64) engine.Obstacle {
	speed := o.Speed
	switch {
	case o.Parked:
		speed = 0
	case speed == 0:
		speed = baseSpeed
	}
	return engine.Obstacle{Lane: o.Lane, Distance: o.Distance, Speed: speed}
}

// TickResult captures one Step.
type TickResult struct {
	Index     int
	Action    engine.Action
	Result    engine.StepResult
	Obstacles []engine.Obstacle // active set after the tick, post-prune
}

// SimulationResult captures every tick and the final engine.
type SimulationResult struct {
	Name    string
	Initial engine.Observation
	Ticks   []TickResult
	Engine  *engine.Engine
}

// FirstDone returns the index of the first done tick, or -1.
func (r SimulationResult) FirstDone() int {
	for _, tick := range r.Ticks {
		if tick.Result.Done {
			return tick.Index
		}
	}
	return -1
}
