package simulation

import (
	"math"
	"testing"

	"github.com/nvandessel/roadrunner/internal/constants"
)

// AssertCollisionAt asserts that the first done tick is tick and that it is
// a collision.
func AssertCollisionAt(t *testing.T, result SimulationResult, tick int) {
	t.Helper()
	assertFirstDone(t, "AssertCollisionAt", result, tick)
	if tick < len(result.Ticks) && !result.Ticks[tick].Result.Info.Collision {
		t.Errorf("AssertCollisionAt: %s: tick %d ended without a collision: %+v", result.Name, tick, result.Ticks[tick].Result.Info)
	}
}

// AssertStepLimitAt asserts that the first done tick is tick and that it
// ended by the step limit alone.
func AssertStepLimitAt(t *testing.T, result SimulationResult, tick int) {
	t.Helper()
	assertFirstDone(t, "AssertStepLimitAt", result, tick)
	if tick < len(result.Ticks) {
		info := result.Ticks[tick].Result.Info
		if !info.StepLimit || info.Collision {
			t.Errorf("AssertStepLimitAt: %s: tick %d: want step limit only, got %+v", result.Name, tick, info)
		}
	}
}

// AssertNeverDone asserts that no tick terminated the episode.
func AssertNeverDone(t *testing.T, result SimulationResult) {
	t.Helper()
	if first := result.FirstDone(); first >= 0 {
		t.Errorf("AssertNeverDone: %s: tick %d was done: %+v", result.Name, first, result.Ticks[first].Result.Info)
	}
}

func assertFirstDone(t *testing.T, name string, result SimulationResult, tick int) {
	t.Helper()
	if tick >= len(result.Ticks) {
		t.Fatalf("%s: %s: only %d ticks played, want done at %d", name, result.Name, len(result.Ticks), tick)
	}
	if first := result.FirstDone(); first != tick {
		t.Errorf("%s: %s: first done tick = %d, want %d", name, result.Name, first, tick)
	}
}

// AssertLanes asserts the agent lane after each tick.
func AssertLanes(t *testing.T, result SimulationResult, want []int) {
	t.Helper()
	if len(want) != len(result.Ticks) {
		t.Fatalf("AssertLanes: %s: %d ticks played, %d lanes expected", result.Name, len(result.Ticks), len(want))
	}
	for i, tick := range result.Ticks {
		if got := tick.Result.Observation.Lane; got != want[i] {
			t.Errorf("AssertLanes: %s: tick %d (%v): lane = %d, want %d", result.Name, i, tick.Action, got, want[i])
		}
	}
}

// AssertObservationBounds asserts that every observation has one
// distance per lane within [0, 1], a lane in range and reward 1.
func AssertObservationBounds(t *testing.T, result SimulationResult) {
	t.Helper()
	lanes := result.Engine.Config().Lanes
	for _, tick := range result.Ticks {
		obs := tick.Result.Observation
		if len(obs.Distances) != lanes {
			t.Errorf("AssertObservationBounds: %s: tick %d: %d distances, want %d", result.Name, tick.Index, len(obs.Distances), lanes)
		}
		for lane, d := range obs.Distances {
			if math.IsNaN(d) || d < constants.ArrivalDistance || d > constants.SpawnDistance {
				t.Errorf("AssertObservationBounds: %s: tick %d lane %d: distance %v outside [0, 1]", result.Name, tick.Index, lane, d)
			}
		}
		if obs.Lane < 0 || obs.Lane >= lanes {
			t.Errorf("AssertObservationBounds: %s: tick %d: lane %d outside [0, %d)", result.Name, tick.Index, obs.Lane, lanes)
		}
		if tick.Result.Reward != constants.SurvivalReward {
			t.Errorf("AssertObservationBounds: %s: tick %d: reward %v, want %v", result.Name, tick.Index, tick.Result.Reward, constants.SurvivalReward)
		}
	}
}

// AssertNoArrivedObstacles asserts that no tick leaves behind an obstacle
// that has reached the agent.
func AssertNoArrivedObstacles(t *testing.T, result SimulationResult) {
	t.Helper()
	for _, tick := range result.Ticks {
		for _, o := range tick.Obstacles {
			if o.Distance <= constants.Epsilon {
				t.Errorf("AssertNoArrivedObstacles: %s: tick %d: obstacle %+v survived pruning", result.Name, tick.Index, o)
			}
		}
	}
}

// AssertObstacleCount asserts the size of the active set after a tick.
func AssertObstacleCount(t *testing.T, result SimulationResult, tick, want int) {
	t.Helper()
	if tick >= len(result.Ticks) {
		t.Fatalf("AssertObstacleCount: %s: only %d ticks played", result.Name, len(result.Ticks))
	}
	if got := len(result.Ticks[tick].Obstacles); got != want {
		t.Errorf("AssertObstacleCount: %s: tick %d: %d obstacles, want %d", result.Name, tick, got, want)
	}
}
