// Package simulation provides a scripted-scenario test harness for the
// simulation engine.
//
// A Scenario fixes the engine configuration, the random source, any
// obstacles to place after reset and either a literal action script or a
// policy. The Runner plays it against a real engine (no mocks) and captures
// every tick together with the obstacle set it left behind, so tests can
// assert on termination, pruning and observation bounds tick by tick.
//
// Usage:
//
//	func TestParkedObstacleCollides(t *testing.T) {
//	    r := simulation.NewRunner(t)
//	    result := r.Run(simulation.Scenario{
//	        Name:      "parked",
//	        Config:    simulation.QuietConfig(3, 100),
//	        Obstacles: []simulation.ObstacleSpec{{Lane: 1, Distance: 0.03, Parked: true}},
//	        Actions:   simulation.Actions(t, "hold"),
//	    })
//	    simulation.AssertCollisionAt(t, result, 0)
//	}
package simulation
