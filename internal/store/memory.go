package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nvandessel/roadrunner/internal/constants"
)

// InMemoryEpisodeStore implements EpisodeStore for testing and for runs
// that should not touch disk.
type InMemoryEpisodeStore struct {
	mu       sync.RWMutex
	episodes map[string]Episode
	order    []string
}

// NewInMemoryEpisodeStore creates a new in-memory store.
func NewInMemoryEpisodeStore() *InMemoryEpisodeStore {
	return &InMemoryEpisodeStore{
		episodes: make(map[string]Episode),
	}
}

// RecordEpisode adds an episode to the store.
func (s *InMemoryEpisodeStore) RecordEpisode(ctx context.Context, ep Episode) error {
	if err := validateEpisode(ep); err != nil {
		return err
	}
	if ep.CreatedAt.IsZero() {
		ep.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.episodes[ep.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateEpisode, ep.ID)
	}

	s.episodes[ep.ID] = ep
	s.order = append(s.order, ep.ID)
	return nil
}

// GetEpisode retrieves an episode by ID. Returns nil if not found.
func (s *InMemoryEpisodeStore) GetEpisode(ctx context.Context, id string) (*Episode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ep, ok := s.episodes[id]
	if !ok {
		return nil, nil
	}
	return &ep, nil
}

// ListEpisodes returns matching episodes newest first.
// Episodes with equal timestamps are returned in reverse insertion order.
func (s *InMemoryEpisodeStore) ListEpisodes(ctx context.Context, opts ListOptions) ([]Episode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Episode, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		ep := s.episodes[s.order[i]]
		if opts.Policy != "" && ep.Policy != opts.Policy {
			continue
		}
		if opts.Outcome != "" && ep.Outcome != opts.Outcome {
			continue
		}
		result = append(result, ep)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

// Stats aggregates all stored episodes.
func (s *InMemoryEpisodeStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{ByOutcome: make(map[constants.Outcome]int)}
	var total float64
	for i, id := range s.order {
		ep := s.episodes[id]
		total += ep.Return
		if i == 0 || ep.Return > stats.BestReturn {
			stats.BestReturn = ep.Return
		}
		stats.ByOutcome[ep.Outcome]++
	}

	stats.Episodes = len(s.order)
	if stats.Episodes > 0 {
		stats.MeanReturn = total / float64(stats.Episodes)
	}
	return stats, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryEpisodeStore) Close() error {
	return nil
}
