// Package constants provides named constants used throughout the roadrunner codebase.
// This centralizes magic numbers for better maintainability and documentation.
package constants

// Simulation defaults
const (
	// DefaultLanes is the lane count used when none is configured.
	DefaultLanes = 3

	// DefaultBaseSpeed is the per-tick distance decrement applied to spawned obstacles.
	DefaultBaseSpeed = 0.1

	// DefaultObstacleLength is the collision threshold added to Epsilon when
	// checking the agent's lane.
	DefaultObstacleLength = 0.05

	// MaxStepsFactor derives the default step limit: round(MaxStepsFactor / base speed).
	// With the default speed this is the number of ticks for ten obstacles to cross.
	MaxStepsFactor = 10.0

	// Epsilon is the tolerance used for pruning and collision checks.
	Epsilon = 1e-6
)

// Obstacle geometry
const (
	// SpawnDistance is the distance at which new obstacles appear.
	// It is also the observed distance of an empty lane.
	SpawnDistance = 1.0

	// ArrivalDistance is the distance at which an obstacle reaches the agent.
	ArrivalDistance = 0.0
)

// Reward constants
const (
	// SurvivalReward is the constant reward paid for every tick.
	SurvivalReward = 1.0
)

// Runner defaults
const (
	// DefaultEpisodes is the number of episodes `roadrunner run` plays when unset.
	DefaultEpisodes = 10

	// DefaultPolicy is the action policy used when none is configured.
	DefaultPolicy = "greedy"
)
