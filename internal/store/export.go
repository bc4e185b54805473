package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// ExportJSONL writes the matching episodes to w, one JSON object per line,
// newest first.
func ExportJSONL(ctx context.Context, s EpisodeStore, opts ListOptions, w io.Writer) (int, error) {
	episodes, err := s.ListEpisodes(ctx, opts)
	if err != nil {
		return 0, fmt.Errorf("failed to list episodes: %w", err)
	}

	enc := json.NewEncoder(w)
	for i, ep := range episodes {
		if err := enc.Encode(ep); err != nil {
			return i, fmt.Errorf("failed to encode episode %s: %w", ep.ID, err)
		}
	}
	return len(episodes), nil
}
