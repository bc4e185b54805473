package engine

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/nvandessel/roadrunner/internal/constants"
)

// Action is the agent's choice for one tick.
type Action int

const (
	// Hold keeps the agent on its current lane.
	Hold Action = iota
	// Left moves the agent toward the lower lane index, wrapping from 0 to N-1.
	Left
	// Right moves the agent toward the higher lane index, wrapping from N-1 to 0.
	Right
)

// NumActions is the size of the discrete action space.
const NumActions = 3

// Valid reports whether a is one of Hold, Left or Right.
func (a Action) Valid() bool {
	return a >= Hold && a <= Right
}

// String implements fmt.Stringer.
func (a Action) String() string {
	switch a {
	case Hold:
		return "hold"
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// ParseAction maps "hold", "left", "right" or "0".."2" to an Action.
func ParseAction(s string) (Action, error) {
	switch s {
	case "hold", "0":
		return Hold, nil
	case "left", "1":
		return Left, nil
	case "right", "2":
		return Right, nil
	}
	return 0, fmt.Errorf("%w: %q (want hold, left or right)", ErrInvalidAction, s)
}

// Obstacle is a car travelling down a lane toward the agent.
type Obstacle struct {
	Lane     int     `json:"lane"`
	Distance float64 `json:"distance"`
	Speed    float64 `json:"speed"`
}

// Observation is what the agent sees after a tick: the closest obstacle
// distance per lane (1.0 for empty lanes, floored at 0) and its own lane.
type Observation struct {
	Distances []float64 `json:"distances"`
	Lane      int       `json:"lane"`
}

// Info carries per-tick diagnostics. It never affects the transition.
type Info struct {
	Step      int  `json:"step"`
	Spawned   int  `json:"spawned"`
	Pruned    int  `json:"pruned"`
	Collision bool `json:"collision"`
	StepLimit bool `json:"step_limit"`
}

// StepResult is the outcome of a single Step.
type StepResult struct {
	Observation Observation `json:"observation"`
	Reward      float64     `json:"reward"`
	Done        bool        `json:"done"`
	Info        Info        `json:"info"`
}

// Spaces describes the action and observation spaces of an Engine.
type Spaces struct {
	Actions      int     `json:"actions"`
	Lanes        int     `json:"lanes"`
	DistanceLow  float64 `json:"distance_low"`
	DistanceHigh float64 `json:"distance_high"`
}

// Environment is the steppable contract shared by the engine and anything
// that wraps it.
type Environment interface {
	Reset() Observation
	Step(a Action) (StepResult, error)
	Observe() Observation
}

// Rand is the uniform random source used for spawning. *rand.Rand from
// math/rand/v2 satisfies it.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithRand injects the random source.
func WithRand(r Rand) Option {
	return func(e *Engine) {
		e.rng = r
	}
}

// WithSeed uses a PCG source seeded with seed, for reproducible episodes.
func WithSeed(seed uint64) Option {
	return func(e *Engine) {
		e.rng = newSeededRand(seed)
	}
}

func newSeededRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Engine is the simulation state machine.
type Engine struct {
	cfg       Config
	rng       Rand
	lane      int
	obstacles []Obstacle
	step      int
	scratch   []int
}

var _ Environment = (*Engine)(nil)

// New validates cfg, fills its defaults and returns an engine already reset
// to the start of an episode.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{cfg: cfg.withDefaults()}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = newSeededRand(rand.Uint64())
	}

	e.Reset()
	return e, nil
}

// Config returns the resolved configuration, defaults included.
func (e *Engine) Config() Config {
	return e.cfg
}

// Spaces returns the action and observation space description.
func (e *Engine) Spaces() Spaces {
	return Spaces{
		Actions:      NumActions,
		Lanes:        e.cfg.Lanes,
		DistanceLow:  constants.ArrivalDistance,
		DistanceHigh: constants.SpawnDistance,
	}
}

// StepCount returns the step counter. It is 1 right after Reset.
func (e *Engine) StepCount() int {
	return e.step
}

// Lane returns the agent's current lane.
func (e *Engine) Lane() int {
	return e.lane
}

// Obstacles returns a copy of the active obstacle set.
func (e *Engine) Obstacles() []Obstacle {
	out := make([]Obstacle, len(e.obstacles))
	copy(out, e.obstacles)
	return out
}

// PlaceObstacle adds o to the active set. It is intended for scripted
// scenarios; spawning never goes through it.
func (e *Engine) PlaceObstacle(o Obstacle) error {
	if o.Lane < 0 || o.Lane >= e.cfg.Lanes {
		return fmt.Errorf("%w: obstacle lane %d outside [0, %d)", ErrConfiguration, o.Lane, e.cfg.Lanes)
	}
	if math.IsNaN(o.Distance) || o.Distance > constants.SpawnDistance {
		return fmt.Errorf("%w: obstacle distance must be at most %v, got %v", ErrConfiguration, constants.SpawnDistance, o.Distance)
	}
	if !(o.Speed >= 0) || math.IsInf(o.Speed, 0) {
		return fmt.Errorf("%w: obstacle speed must be non-negative, got %v", ErrConfiguration, o.Speed)
	}
	e.obstacles = append(e.obstacles, o)
	return nil
}

// Reset starts a new episode: the agent returns to lane N/2, a single
// obstacle waits at the far end of that lane, and the step counter is 1.
func (e *Engine) Reset() Observation {
	start := e.cfg.Lanes / 2
	e.lane = start
	e.obstacles = append(e.obstacles[:0], Obstacle{
		Lane:     start,
		Distance: constants.SpawnDistance,
		Speed:    e.cfg.BaseSpeed,
	})
	e.step = 1
	return e.Observe()
}

// Step advances the simulation by one tick.
//
// The order is fixed: move the agent, spawn, advance obstacles, observe,
// decide termination, prune, count the step. Collision is judged on the
// advanced but unpruned obstacles, so an obstacle that arrives this tick
// still counts. An invalid action returns ErrInvalidAction without touching
// any state.
func (e *Engine) Step(a Action) (StepResult, error) {
	if !a.Valid() {
		return StepResult{}, fmt.Errorf("%w: %d (want 0, 1 or 2)", ErrInvalidAction, int(a))
	}

	n := e.cfg.Lanes
	switch a {
	case Left:
		e.lane = (e.lane - 1 + n) % n
	case Right:
		e.lane = (e.lane + 1) % n
	}

	spawned := e.spawn()

	for i := range e.obstacles {
		e.obstacles[i].Distance -= e.obstacles[i].Speed
	}

	obs := e.Observe()
	collision := obs.Distances[e.lane] <= constants.Epsilon+e.cfg.ObstacleLength
	stepLimit := e.step >= e.cfg.MaxSteps

	pruned := e.prune()

	info := Info{
		Step:      e.step,
		Spawned:   spawned,
		Pruned:    pruned,
		Collision: collision,
		StepLimit: stepLimit,
	}
	e.step++

	return StepResult{
		Observation: obs,
		Reward:      constants.SurvivalReward,
		Done:        collision || stepLimit,
		Info:        info,
	}, nil
}

// Observe returns the current observation without mutating state.
func (e *Engine) Observe() Observation {
	n := e.cfg.Lanes
	distances := make([]float64, n)
	for i := range distances {
		distances[i] = constants.SpawnDistance
	}

	occupied := make([]bool, n)
	for _, o := range e.obstacles {
		if !occupied[o.Lane] || o.Distance < distances[o.Lane] {
			distances[o.Lane] = o.Distance
			occupied[o.Lane] = true
		}
	}

	for i, d := range distances {
		distances[i] = math.Max(constants.ArrivalDistance, d)
	}

	return Observation{Distances: distances, Lane: e.lane}
}

// spawn adds this tick's obstacles and returns how many were added.
func (e *Engine) spawn() int {
	n := e.cfg.Lanes

	if count, ok := e.cfg.Spawn.Count(); ok {
		// Partial Fisher-Yates: the first count entries are distinct lanes.
		if cap(e.scratch) < n {
			e.scratch = make([]int, n)
		}
		lanes := e.scratch[:n]
		for i := range lanes {
			lanes[i] = i
		}
		for i := 0; i < count; i++ {
			j := i + e.rng.IntN(n-i)
			lanes[i], lanes[j] = lanes[j], lanes[i]
		}
		for _, lane := range lanes[:count] {
			e.obstacles = append(e.obstacles, e.newObstacle(lane))
		}
		return count
	}

	p, _ := e.cfg.Spawn.Probability()
	if e.rng.Float64() < p {
		e.obstacles = append(e.obstacles, e.newObstacle(e.rng.IntN(n)))
		return 1
	}
	return 0
}

func (e *Engine) newObstacle(lane int) Obstacle {
	return Obstacle{
		Lane:     lane,
		Distance: constants.SpawnDistance,
		Speed:    e.cfg.BaseSpeed,
	}
}

// prune drops every obstacle that has reached the agent, on any lane.
func (e *Engine) prune() int {
	kept := e.obstacles[:0]
	for _, o := range e.obstacles {
		if o.Distance > constants.Epsilon {
			kept = append(kept, o)
		}
	}
	removed := len(e.obstacles) - len(kept)
	e.obstacles = kept
	return removed
}
