package store

import (
	"errors"
	"fmt"

	"github.com/nvandessel/roadrunner/internal/constants"
)

// ErrDuplicateEpisode is returned when an episode ID is recorded twice.
var ErrDuplicateEpisode = errors.New("episode already recorded")

// ErrSchemaVersion is returned when an existing database was written with a
// schema version this build does not know how to read.
var ErrSchemaVersion = errors.New("unsupported schema version")

var errEpisodeID = errors.New("episode ID is required")

func errOutcome(o constants.Outcome) error {
	return fmt.Errorf("invalid outcome: %q (valid: collision, step_limit, aborted)", o)
}
