package constants

// Outcome describes how an episode ended.
type Outcome string

const (
	// OutcomeCollision indicates an obstacle reached the agent's lane.
	OutcomeCollision Outcome = "collision"

	// OutcomeStepLimit indicates the episode ran out of steps without a collision.
	OutcomeStepLimit Outcome = "step_limit"

	// OutcomeAborted indicates the caller stopped the episode early (context cancelled).
	OutcomeAborted Outcome = "aborted"
)

// Valid returns true if the outcome is a recognized value.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeCollision, OutcomeStepLimit, OutcomeAborted:
		return true
	}
	return false
}

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	return string(o)
}
