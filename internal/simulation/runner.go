package simulation

import (
	"testing"

	"github.com/nvandessel/roadrunner/internal/engine"
)

// Runner plays scenarios against a real engine.
type Runner struct {
	t *testing.T
}

// NewRunner creates a simulation runner bound to t. Every failure to set up
// a scenario is fatal.
func NewRunner(t *testing.T) *Runner {
	t.Helper()
	return &Runner{t: t}
}

// Run executes the scenario and returns the collected ticks.
func (r *Runner) Run(scenario Scenario) SimulationResult {
	r.t.Helper()

	// Phase 1: Build the engine.
	opt := engine.WithSeed(scenario.Seed)
	if scenario.Rand != nil {
		opt = engine.WithRand(scenario.Rand)
	}
	e, err := engine.New(scenario.Config, opt)
	if err != nil {
		r.t.Fatalf("%s: engine.New: %v", scenario.Name, err)
	}

	// Phase 2: Place scripted obstacles.
	cfg := e.Config()
	for _, spec := range scenario.Obstacles {
		if err := e.PlaceObstacle(spec.ToObstacle(cfg.BaseSpeed)); err != nil {
			r.t.Fatalf("%s: PlaceObstacle(%+v): %v", scenario.Name, spec, err)
		}
	}

	result := SimulationResult{
		Name:    scenario.Name,
		Initial: e.Observe(),
		Engine:  e,
	}

	// Phase 3: Play the script or the policy.
	ticks := len(scenario.Actions)
	if ticks == 0 {
		if scenario.Policy == nil {
			r.t.Fatalf("%s: scenario has neither Actions nor Policy", scenario.Name)
		}
		ticks = scenario.MaxTicks
	}

	obs := result.Initial
	for i := 0; i < ticks; i++ {
		var action engine.Action
		if len(scenario.Actions) > 0 {
			action = scenario.Actions[i]
		} else {
			action = scenario.Policy.Act(obs)
		}

		res, err := e.Step(action)
		if err != nil {
			r.t.Fatalf("%s: tick %d: Step(%v): %v", scenario.Name, i, action, err)
		}

		result.Ticks = append(result.Ticks, TickResult{
			Index:     i,
			Action:    action,
			Result:    res,
			Obstacles: e.Obstacles(),
		})
		obs = res.Observation

		if res.Done && scenario.StopOnDone {
			break
		}
	}

	return result
}
