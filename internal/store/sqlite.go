package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nvandessel/roadrunner/internal/constants"
	_ "modernc.org/sqlite" // SQLite driver
)

// DBFile is the database file name inside the store directory.
const DBFile = "roadrunner.db"

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteEpisodeStore implements EpisodeStore using SQLite for persistence.
type SQLiteEpisodeStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
}

// NewSQLiteEpisodeStore opens (creating if needed) dir/roadrunner.db.
func NewSQLiteEpisodeStore(dir string) (*SQLiteEpisodeStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	dbPath := filepath.Join(dir, DBFile)

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single writer
	db.SetMaxOpenConns(1)

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteEpisodeStore{db: db, dbPath: dbPath}, nil
}

// Path returns the database file path.
func (s *SQLiteEpisodeStore) Path() string {
	return s.dbPath
}

// RecordEpisode inserts a finished episode.
func (s *SQLiteEpisodeStore) RecordEpisode(ctx context.Context, ep Episode) error {
	if err := validateEpisode(ep); err != nil {
		return err
	}
	if ep.CreatedAt.IsZero() {
		ep.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO episodes (id, policy, seed, lanes, steps, total_return, outcome, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ep.ID,
		ep.Policy,
		strconv.FormatUint(ep.Seed, 10),
		ep.Lanes,
		ep.Steps,
		ep.Return,
		string(ep.Outcome),
		ep.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s", ErrDuplicateEpisode, ep.ID)
		}
		return fmt.Errorf("failed to insert episode: %w", err)
	}
	return nil
}

// GetEpisode retrieves an episode by ID. Returns nil if not found.
func (s *SQLiteEpisodeStore) GetEpisode(ctx context.Context, id string) (*Episode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, policy, seed, lanes, steps, total_return, outcome, created_at
		FROM episodes WHERE id = ?`, id)

	ep, err := scanEpisode(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get episode: %w", err)
	}
	return &ep, nil
}

// ListEpisodes returns matching episodes newest first.
func (s *SQLiteEpisodeStore) ListEpisodes(ctx context.Context, opts ListOptions) ([]Episode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, policy, seed, lanes, steps, total_return, outcome, created_at FROM episodes`
	var where []string
	var args []any
	if opts.Policy != "" {
		where = append(where, "policy = ?")
		args = append(args, opts.Policy)
	}
	if opts.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, string(opts.Outcome))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query episodes: %w", err)
	}
	defer rows.Close()

	episodes := make([]Episode, 0)
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan episode: %w", err)
		}
		episodes = append(episodes, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate episodes: %w", err)
	}
	return episodes, nil
}

// Stats aggregates all stored episodes.
func (s *SQLiteEpisodeStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{ByOutcome: make(map[constants.Outcome]int)}

	var mean, best sql.NullFloat64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), AVG(total_return), MAX(total_return) FROM episodes`,
	).Scan(&stats.Episodes, &mean, &best); err != nil {
		return Stats{}, fmt.Errorf("failed to aggregate episodes: %w", err)
	}
	stats.MeanReturn = mean.Float64
	stats.BestReturn = best.Float64

	rows, err := s.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM episodes GROUP BY outcome`)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to count outcomes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return Stats{}, fmt.Errorf("failed to scan outcome count: %w", err)
		}
		stats.ByOutcome[constants.Outcome(outcome)] = count
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("failed to iterate outcome counts: %w", err)
	}

	return stats, nil
}

// Close closes the database.
func (s *SQLiteEpisodeStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEpisode(row rowScanner) (Episode, error) {
	var ep Episode
	var seed, outcome, createdAt string
	if err := row.Scan(&ep.ID, &ep.Policy, &seed, &ep.Lanes, &ep.Steps, &ep.Return, &outcome, &createdAt); err != nil {
		return Episode{}, err
	}

	n, err := strconv.ParseUint(seed, 10, 64)
	if err != nil {
		return Episode{}, fmt.Errorf("invalid seed %q: %w", seed, err)
	}
	ep.Seed = n
	ep.Outcome = constants.Outcome(outcome)

	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return Episode{}, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	ep.CreatedAt = t
	return ep, nil
}
