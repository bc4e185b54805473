package runner

import (
	"fmt"
	"math/rand/v2"

	"github.com/nvandessel/roadrunner/internal/engine"
)

// Policy picks an action from an observation. Policies here are fixed
// baselines; nothing learns.
type Policy interface {
	Name() string
	Act(obs engine.Observation) engine.Action
}

// PolicyNames lists the policies NewPolicy understands.
var PolicyNames = []string{"hold", "random", "greedy"}

// NewPolicy builds a policy by name. seed only affects "random".
func NewPolicy(name string, seed uint64) (Policy, error) {
	switch name {
	case "hold":
		return HoldPolicy{}, nil
	case "random":
		return NewRandomPolicy(seed), nil
	case "greedy":
		return GreedyPolicy{}, nil
	}
	return nil, fmt.Errorf("unknown policy: %s (valid: hold, random, greedy)", name)
}

// HoldPolicy never changes lane.
type HoldPolicy struct{}

func (HoldPolicy) Name() string { return "hold" }

func (HoldPolicy) Act(engine.Observation) engine.Action { return engine.Hold }

// RandomPolicy picks uniformly among the three actions.
type RandomPolicy struct {
	rng *rand.Rand
}

// NewRandomPolicy returns a RandomPolicy with its own PCG source.
func NewRandomPolicy(seed uint64) *RandomPolicy {
	return &RandomPolicy{rng: rand.New(rand.NewPCG(seed, ^seed))}
}

func (p *RandomPolicy) Name() string { return "random" }

func (p *RandomPolicy) Act(engine.Observation) engine.Action {
	return engine.Action(p.rng.IntN(engine.NumActions))
}

// GreedyPolicy moves to whichever of the current lane and its two ring
// neighbours has the farthest closest obstacle. Ties keep the lane, then
// prefer Left over Right.
type GreedyPolicy struct{}

func (GreedyPolicy) Name() string { return "greedy" }

func (GreedyPolicy) Act(obs engine.Observation) engine.Action {
	n := len(obs.Distances)
	if n <= 1 || obs.Lane < 0 || obs.Lane >= n {
		return engine.Hold
	}

	best := engine.Hold
	bestDist := obs.Distances[obs.Lane]

	candidates := []struct {
		action engine.Action
		lane   int
	}{
		{engine.Left, (obs.Lane - 1 + n) % n},
		{engine.Right, (obs.Lane + 1) % n},
	}
	for _, c := range candidates {
		if d := obs.Distances[c.lane]; d > bestDist {
			best, bestDist = c.action, d
		}
	}
	return best
}
