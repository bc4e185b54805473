package mcp

import (
	"github.com/nvandessel/roadrunner/internal/engine"
)

// ResetInput defines the input for roadrunner_reset tool.
type ResetInput struct {
	Seed *uint64 `json:"seed,omitempty" jsonschema:"Seed for the new episode; omit to keep the current random stream"`
}

// ResetOutput defines the output for roadrunner_reset tool.
type ResetOutput struct {
	Episode     string             `json:"episode" jsonschema:"ID of the new episode"`
	Observation engine.Observation `json:"observation" jsonschema:"Closest obstacle distance per lane and the agent lane"`
	Spaces      engine.Spaces      `json:"spaces" jsonschema:"Action and observation space description"`
}

// StepInput defines the input for roadrunner_step tool.
type StepInput struct {
	Action string `json:"action" jsonschema:"One of hold, left, right (or 0, 1, 2)"`
}

// StepOutput defines the output for roadrunner_step tool.
type StepOutput struct {
	Episode     string             `json:"episode" jsonschema:"ID of the current episode"`
	Observation engine.Observation `json:"observation" jsonschema:"Closest obstacle distance per lane and the agent lane"`
	Reward      float64            `json:"reward" jsonschema:"Reward for this tick (always 1)"`
	Done        bool               `json:"done" jsonschema:"Whether the episode has ended by collision or step limit"`
	Info        engine.Info        `json:"info" jsonschema:"Per-tick diagnostics"`
	Return      float64            `json:"return" jsonschema:"Total reward collected this episode"`
}

// ObserveInput defines the input for roadrunner_observe tool.
type ObserveInput struct{}

// ObserveOutput defines the output for roadrunner_observe tool.
type ObserveOutput struct {
	Episode     string             `json:"episode" jsonschema:"ID of the current episode"`
	Observation engine.Observation `json:"observation" jsonschema:"Closest obstacle distance per lane and the agent lane"`
	Step        int                `json:"step" jsonschema:"Step counter; 1 right after reset"`
	Finished    bool               `json:"finished" jsonschema:"Whether the current episode has already ended"`
}
