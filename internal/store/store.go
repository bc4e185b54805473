// Package store defines the EpisodeStore interface for recording and
// querying finished episodes.
package store

import (
	"context"
	"time"

	"github.com/nvandessel/roadrunner/internal/constants"
)

// Episode is the persisted summary of one finished episode.
type Episode struct {
	ID        string            `json:"id"`
	Policy    string            `json:"policy"`
	Seed      uint64            `json:"seed"`
	Lanes     int               `json:"lanes"`
	Steps     int               `json:"steps"`
	Return    float64           `json:"return"`
	Outcome   constants.Outcome `json:"outcome"`
	CreatedAt time.Time         `json:"created_at"`
}

// ListOptions filters ListEpisodes. Zero values mean no filter.
type ListOptions struct {
	Policy  string            // Only episodes played by this policy
	Outcome constants.Outcome // Only episodes with this outcome
	Limit   int               // Maximum number of episodes, newest first
}

// Stats aggregates stored episodes.
type Stats struct {
	Episodes   int                       `json:"episodes"`
	MeanReturn float64                   `json:"mean_return"`
	BestReturn float64                   `json:"best_return"`
	ByOutcome  map[constants.Outcome]int `json:"by_outcome"`
}

// EpisodeStore defines the interface for the episode history.
type EpisodeStore interface {
	// RecordEpisode persists a finished episode. The ID must be unique.
	RecordEpisode(ctx context.Context, ep Episode) error

	// GetEpisode returns the episode with the given ID, or nil if not found.
	GetEpisode(ctx context.Context, id string) (*Episode, error)

	// ListEpisodes returns episodes newest first.
	ListEpisodes(ctx context.Context, opts ListOptions) ([]Episode, error)

	// Stats aggregates all stored episodes.
	Stats(ctx context.Context) (Stats, error)

	Close() error
}

// validateEpisode checks the fields every store requires.
func validateEpisode(ep Episode) error {
	if ep.ID == "" {
		return errEpisodeID
	}
	if !ep.Outcome.Valid() {
		return errOutcome(ep.Outcome)
	}
	return nil
}
