// Package runner plays episodes of the simulation with a Policy and
// reports per-episode results and run summaries.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nvandessel/roadrunner/internal/constants"
	"github.com/nvandessel/roadrunner/internal/engine"
	"github.com/nvandessel/roadrunner/internal/logging"
	"github.com/nvandessel/roadrunner/internal/metrics"
	"github.com/nvandessel/roadrunner/internal/store"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// TransitionSink receives every transition as it happens.
// *trajectory.Writer satisfies it.
type TransitionSink interface {
	Append(episode int, action engine.Action, res engine.StepResult) error
}

// obstacleLister is implemented by environments that expose their
// obstacle set, such as *engine.Engine.
type obstacleLister interface {
	Obstacles() []engine.Obstacle
}

// EpisodeResult describes one finished episode.
type EpisodeResult struct {
	ID      string            `json:"id"`
	Index   int               `json:"index"`
	Steps   int               `json:"steps"`
	Return  float64           `json:"return"`
	Outcome constants.Outcome `json:"outcome"`
}

// Abandoned reports whether the episode was aborted before taking a step.
// Abandoned episodes are neither recorded nor summarized.
func (r EpisodeResult) Abandoned() bool {
	return r.Outcome == constants.OutcomeAborted && r.Steps == 0
}

// Summary aggregates a run.
type Summary struct {
	Policy     string                    `json:"policy"`
	Episodes   int                       `json:"episodes"`
	MeanReturn float64                   `json:"mean_return"`
	StdReturn  float64                   `json:"std_return"`
	MinReturn  float64                   `json:"min_return"`
	MaxReturn  float64                   `json:"max_return"`
	MeanSteps  float64                   `json:"mean_steps"`
	Outcomes   map[constants.Outcome]int `json:"outcomes"`
	Results    []EpisodeResult           `json:"results,omitempty"`
	Duration   time.Duration             `json:"duration"`
}

// Runner drives an environment with a policy.
type Runner struct {
	env     engine.Environment
	policy  Policy
	logger  *slog.Logger
	tracer  *logging.TraceLogger
	store   store.EpisodeStore
	metrics *metrics.Collector
	sink    TransitionSink
	seed    uint64
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the operational logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithTracer records every transition to a JSONL trace.
func WithTracer(t *logging.TraceLogger) Option {
	return func(r *Runner) { r.tracer = t }
}

// WithStore persists each finished episode.
func WithStore(s store.EpisodeStore) Option {
	return func(r *Runner) { r.store = s }
}

// WithMetrics records ticks and episodes on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Runner) { r.metrics = c }
}

// WithTransitionSink forwards every transition to s.
func WithTransitionSink(s TransitionSink) Option {
	return func(r *Runner) { r.sink = s }
}

// WithSeed records the seed the environment was built with, for the store.
func WithSeed(seed uint64) Option {
	return func(r *Runner) { r.seed = seed }
}

// New creates a Runner.
func New(env engine.Environment, policy Policy, opts ...Option) *Runner {
	r := &Runner{
		env:    env,
		policy: policy,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunEpisode resets the environment and steps it until done. If ctx is
// cancelled first, the episode ends with the aborted outcome and no error.
func (r *Runner) RunEpisode(ctx context.Context, index int) (EpisodeResult, error) {
	res := EpisodeResult{
		ID:      uuid.NewString(),
		Index:   index,
		Outcome: constants.OutcomeAborted,
	}

	obs := r.env.Reset()
	lanes := len(obs.Distances)
	r.logger.Debug("episode started", "episode", index, "id", res.ID, "policy", r.policy.Name())

	for ctx.Err() == nil {
		action := r.policy.Act(obs)
		step, err := r.env.Step(action)
		if err != nil {
			return res, fmt.Errorf("failed to step episode %d: %w", index, err)
		}

		res.Steps++
		res.Return += step.Reward
		r.metrics.ObserveStep(step.Info)

		if r.tracer.Verbose() {
			var obstacles []engine.Obstacle
			if ol, ok := r.env.(obstacleLister); ok {
				obstacles = ol.Obstacles()
			}
			r.tracer.Log(res.ID, action, step, obstacles)
		} else {
			r.tracer.Log(res.ID, action, step, nil)
		}

		if r.sink != nil {
			if err := r.sink.Append(index, action, step); err != nil {
				return res, fmt.Errorf("failed to record transition: %w", err)
			}
		}

		obs = step.Observation
		if step.Done {
			if step.Info.Collision {
				res.Outcome = constants.OutcomeCollision
			} else {
				res.Outcome = constants.OutcomeStepLimit
			}
			break
		}
	}

	if res.Abandoned() {
		r.logger.Debug("episode abandoned before its first step", "episode", index, "id", res.ID)
		return res, nil
	}

	r.metrics.ObserveEpisode(r.policy.Name(), res.Outcome, res.Steps, res.Return)
	r.logger.Debug("episode finished",
		"episode", index,
		"id", res.ID,
		"steps", res.Steps,
		"return", res.Return,
		"outcome", res.Outcome)

	if r.store != nil {
		ep := store.Episode{
			ID:        res.ID,
			Policy:    r.policy.Name(),
			Seed:      r.seed,
			Lanes:     lanes,
			Steps:     res.Steps,
			Return:    res.Return,
			Outcome:   res.Outcome,
			CreatedAt: time.Now(),
		}
		if err := r.store.RecordEpisode(context.WithoutCancel(ctx), ep); err != nil {
			return res, fmt.Errorf("failed to record episode: %w", err)
		}
	}

	return res, nil
}

// Run plays episodes back to back and summarizes them. A cancelled ctx
// stops the run after the current episode, which is recorded as aborted.
func (r *Runner) Run(ctx context.Context, episodes int) (Summary, error) {
	start := time.Now()
	results := make([]EpisodeResult, 0, episodes)

	for i := 0; i < episodes; i++ {
		res, err := r.RunEpisode(ctx, i)
		if err != nil {
			return Summarize(r.policy.Name(), results, time.Since(start)), err
		}
		if !res.Abandoned() {
			results = append(results, res)
		}
		if ctx.Err() != nil {
			break
		}
	}

	summary := Summarize(r.policy.Name(), results, time.Since(start))
	r.logger.Info("run finished",
		"policy", summary.Policy,
		"episodes", summary.Episodes,
		"mean_return", summary.MeanReturn,
		"std_return", summary.StdReturn,
		"duration", summary.Duration)

	return summary, nil
}

// Summarize aggregates episode results.
func Summarize(policy string, results []EpisodeResult, elapsed time.Duration) Summary {
	s := Summary{
		Policy:   policy,
		Episodes: len(results),
		Outcomes: make(map[constants.Outcome]int),
		Results:  results,
		Duration: elapsed,
	}
	if len(results) == 0 {
		return s
	}

	returns := make([]float64, len(results))
	steps := make([]float64, len(results))
	for i, res := range results {
		returns[i] = res.Return
		steps[i] = float64(res.Steps)
		s.Outcomes[res.Outcome]++
	}

	s.MeanReturn, s.StdReturn = stat.MeanStdDev(returns, nil)
	if len(results) < 2 {
		s.StdReturn = 0
	}
	s.MinReturn = floats.Min(returns)
	s.MaxReturn = floats.Max(returns)
	s.MeanSteps = stat.Mean(steps, nil)

	return s
}
