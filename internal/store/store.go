package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"dealsync/internal/config"
	"dealsync/internal/logging"
)

// Store manages offline queue persistence backed by SQLite. It is the only
// component that touches durable storage; everything else reads and writes
// through it.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open initializes or connects to the queue database and applies migrations.
func Open(cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	dbPath := cfg.QueueDBPath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath, logger: logging.NewComponentLogger(logger, "store")}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// PendingCounts recomputes queue depth from storage. Callers must use this
// instead of tracking counts in memory so restarts and crashes mid-sync
// cannot make displayed counts drift from persisted state.
func (s *Store) PendingCounts(ctx context.Context) (Counts, error) {
	var counts Counts
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM upload_queue WHERE status = ?`, UploadPending)
	if err := row.Scan(&counts.PendingUploads); err != nil {
		return Counts{}, fmt.Errorf("count pending uploads: %w", err)
	}
	row = s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM upload_queue WHERE status = ?`, UploadFailed)
	if err := row.Scan(&counts.FailedUploads); err != nil {
		return Counts{}, fmt.Errorf("count failed uploads: %w", err)
	}
	row = s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM mutation_queue`)
	if err := row.Scan(&counts.PendingMutations); err != nil {
		return Counts{}, fmt.Errorf("count pending mutations: %w", err)
	}
	return counts, nil
}

// LastSyncTime returns the timestamp recorded by the most recent completed
// drain pass, or the zero time when no pass has completed.
func (s *Store) LastSyncTime(ctx context.Context) (time.Time, error) {
	var raw string
	row := s.db.QueryRowContext(ctx, `SELECT value FROM sync_meta WHERE key = 'last_sync_time'`)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("read last sync time: %w", err)
	}
	parsed, err := parseTimeString(raw)
	if err != nil {
		return time.Time{}, nil
	}
	return parsed, nil
}

// SetLastSyncTime stamps the completion of a drain pass.
func (s *Store) SetLastSyncTime(ctx context.Context, when time.Time) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO sync_meta (key, value) VALUES ('last_sync_time', ?)
         ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		when.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("set last sync time: %w", err)
	}
	return nil
}

// ClearAll removes everything the subsystem persists: cache, both queues,
// and sync metadata. Used at sign-out. The subsystem owns the whole database,
// so clearing tables wholesale removes every key without maintaining a list.
func (s *Store) ClearAll(ctx context.Context) error {
	for _, table := range []string{"cache_entries", "upload_queue", "mutation_queue", "sync_meta"} {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
