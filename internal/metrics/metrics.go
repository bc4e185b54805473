// Package metrics provides episode and tick metrics for roadrunner.
// It wraps Prometheus collectors on a private registry; a nil *Collector
// is valid and records nothing.
package metrics

import (
	"fmt"
	"io"

	"github.com/nvandessel/roadrunner/internal/constants"
	"github.com/nvandessel/roadrunner/internal/engine"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Collector records simulation metrics.
type Collector struct {
	registry *prometheus.Registry

	episodes      *prometheus.CounterVec
	episodeSteps  prometheus.Histogram
	episodeReturn prometheus.Histogram

	ticks      prometheus.Counter
	spawned    prometheus.Counter
	pruned     prometheus.Counter
	collisions prometheus.Counter
}

// NewCollector creates a collector registered on its own registry.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "roadrunner"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.episodes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "episode",
			Name:      "total",
			Help:      "Finished episodes by policy and outcome (collision, step_limit, aborted)",
		},
		[]string{"policy", "outcome"},
	)

	c.episodeSteps = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "episode",
			Name:      "steps",
			Help:      "Ticks survived per episode",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	c.episodeReturn = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "episode",
			Name:      "return",
			Help:      "Undiscounted return per episode",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	c.ticks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tick",
		Name:      "total",
		Help:      "Engine steps taken",
	})

	c.spawned = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "obstacle",
		Name:      "spawned_total",
		Help:      "Obstacles spawned",
	})

	c.pruned = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "obstacle",
		Name:      "pruned_total",
		Help:      "Obstacles removed after reaching the agent line",
	})

	c.collisions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tick",
		Name:      "collisions_total",
		Help:      "Ticks that ended with an obstacle on the agent's lane",
	})

	c.registry.MustRegister(
		c.episodes,
		c.episodeSteps,
		c.episodeReturn,
		c.ticks,
		c.spawned,
		c.pruned,
		c.collisions,
	)

	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// ObserveStep records one engine tick.
func (c *Collector) ObserveStep(info engine.Info) {
	if c == nil {
		return
	}
	c.ticks.Inc()
	c.spawned.Add(float64(info.Spawned))
	c.pruned.Add(float64(info.Pruned))
	if info.Collision {
		c.collisions.Inc()
	}
}

// ObserveEpisode records a finished episode.
func (c *Collector) ObserveEpisode(policy string, outcome constants.Outcome, steps int, ret float64) {
	if c == nil {
		return
	}
	c.episodes.WithLabelValues(policy, outcome.String()).Inc()
	c.episodeSteps.Observe(float64(steps))
	c.episodeReturn.Observe(ret)
}

// WriteText writes all metrics in the Prometheus text exposition format.
func (c *Collector) WriteText(w io.Writer) error {
	if c == nil {
		return nil
	}

	families, err := c.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("failed to encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
