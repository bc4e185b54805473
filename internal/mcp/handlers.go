package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/roadrunner/internal/constants"
	"github.com/nvandessel/roadrunner/internal/engine"
	"github.com/nvandessel/roadrunner/internal/ratelimit"
	"github.com/nvandessel/roadrunner/internal/sanitize"
	"github.com/nvandessel/roadrunner/internal/store"
)

const spacesURI = "roadrunner://spaces"

// registerTools registers all roadrunner MCP tools with the server.
func (s *Server) registerTools() error {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolReset,
		Description: "Start a new episode and return the initial observation",
	}, s.handleReset)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolStep,
		Description: "Advance the simulation one tick with the given action",
	}, s.handleStep)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolObserve,
		Description: "Return the current observation without advancing the simulation",
	}, s.handleObserve)

	return nil
}

// registerResources registers MCP resources.
func (s *Server) registerResources() error {
	s.server.AddResource(&sdk.Resource{
		URI:         spacesURI,
		Name:        "roadrunner-spaces",
		Description: "Action and observation spaces of the simulation.",
		MIMEType:    "application/json",
	}, s.handleSpacesResource)

	return nil
}

func (s *Server) handleSpacesResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	s.mu.Lock()
	spaces := s.env.Spaces()
	s.mu.Unlock()

	data, err := json.Marshal(spaces)
	if err != nil {
		return nil, fmt.Errorf("failed to encode spaces: %w", err)
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      spacesURI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		},
	}, nil
}

// handleReset implements roadrunner_reset.
func (s *Server) handleReset(ctx context.Context, req *sdk.CallToolRequest, args ResetInput) (_ *sdk.CallToolResult, _ ResetOutput, retErr error) {
	start := time.Now()
	defer func() {
		params := map[string]string{"seeded": fmt.Sprintf("%t", args.Seed != nil)}
		s.auditTool(ratelimit.ToolReset, start, retErr, params)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolReset); err != nil {
		return nil, ResetOutput{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.finishEpisode(ctx, constants.OutcomeAborted)

	if args.Seed != nil {
		if err := s.newEpisode(*args.Seed); err != nil {
			return nil, ResetOutput{}, fmt.Errorf("failed to reset: %w", err)
		}
	} else {
		s.env.Reset()
		s.episode = session{id: uuid.NewString(), seed: s.episode.seed}
	}

	s.logger.Debug("episode started", "id", s.episode.id, "seed", s.episode.seed)

	return nil, ResetOutput{
		Episode:     s.episode.id,
		Observation: s.env.Observe(),
		Spaces:      s.env.Spaces(),
	}, nil
}

// handleStep implements roadrunner_step.
func (s *Server) handleStep(ctx context.Context, req *sdk.CallToolRequest, args StepInput) (_ *sdk.CallToolResult, _ StepOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolStep, start, retErr, map[string]string{"action": sanitize.ToolParam(args.Action)})
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolStep); err != nil {
		return nil, StepOutput{}, err
	}

	action, err := engine.ParseAction(args.Action)
	if err != nil {
		return nil, StepOutput{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.env.Step(action)
	if err != nil {
		return nil, StepOutput{}, err
	}

	// Steps taken after the episode finished are answered but not counted,
	// metered or traced.
	if !s.episode.finished {
		s.episode.steps++
		s.episode.ret += res.Reward
		s.metrics.ObserveStep(res.Info)

		var obstacles []engine.Obstacle
		if s.tracer.Verbose() {
			obstacles = s.env.Obstacles()
		}
		s.tracer.Log(s.episode.id, action, res, obstacles)
	}

	if res.Done {
		outcome := constants.OutcomeStepLimit
		if res.Info.Collision {
			outcome = constants.OutcomeCollision
		}
		s.finishEpisode(ctx, outcome)
	}

	return nil, StepOutput{
		Episode:     s.episode.id,
		Observation: res.Observation,
		Reward:      res.Reward,
		Done:        res.Done,
		Info:        res.Info,
		Return:      s.episode.ret,
	}, nil
}

// handleObserve implements roadrunner_observe.
func (s *Server) handleObserve(ctx context.Context, req *sdk.CallToolRequest, args ObserveInput) (_ *sdk.CallToolResult, _ ObserveOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolObserve, start, retErr, nil)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolObserve); err != nil {
		return nil, ObserveOutput{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return nil, ObserveOutput{
		Episode:     s.episode.id,
		Observation: s.env.Observe(),
		Step:        s.env.StepCount(),
		Finished:    s.episode.finished,
	}, nil
}

// newEpisode replaces the engine with one seeded by seed. Zero picks a
// random seed. Callers hold s.mu, except during construction.
func (s *Server) newEpisode(seed uint64) error {
	if seed == 0 {
		seed = rand.Uint64()
	}

	env, err := engine.New(s.envCfg, engine.WithSeed(seed))
	if err != nil {
		return err
	}

	s.env = env
	s.envCfg = env.Config()
	s.episode = session{id: uuid.NewString(), seed: seed}
	return nil
}

// finishEpisode records the current episode once. An aborted episode that
// never stepped is not recorded. Callers hold s.mu.
func (s *Server) finishEpisode(ctx context.Context, outcome constants.Outcome) {
	ep := &s.episode
	if ep.finished || (outcome == constants.OutcomeAborted && ep.steps == 0) {
		return
	}
	ep.finished = true

	s.metrics.ObserveEpisode(PolicyName, outcome, ep.steps, ep.ret)
	s.logger.Debug("episode finished", "id", ep.id, "steps", ep.steps, "return", ep.ret, "outcome", outcome)

	if s.store == nil {
		return
	}
	err := s.store.RecordEpisode(context.WithoutCancel(ctx), store.Episode{
		ID:        ep.id,
		Policy:    PolicyName,
		Seed:      ep.seed,
		Lanes:     s.envCfg.Lanes,
		Steps:     ep.steps,
		Return:    ep.ret,
		Outcome:   outcome,
		CreatedAt: time.Now(),
	})
	if err != nil {
		s.logger.Warn("failed to record episode", "id", ep.id, "error", err)
	}
}
