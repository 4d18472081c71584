package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dealsync/internal/logging"
)

// CachedEntities returns the non-expired entries for a namespace. Expired
// rows are filtered, not purged. The method never fails the caller: corrupt
// or missing storage yields an empty slice and a log line.
func (s *Store) CachedEntities(ctx context.Context, namespace string) []CacheEntry {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT entity_id, data_json, cached_at, expires_at
         FROM cache_entries WHERE namespace = ? ORDER BY entity_id`,
		namespace,
	)
	if err != nil {
		s.logger.Warn("cache read failed; treating namespace as empty",
			logging.Error(err),
			logging.String("namespace", namespace),
		)
		return nil
	}
	defer rows.Close()

	now := time.Now().UTC()
	var entries []CacheEntry
	for rows.Next() {
		var (
			entityID   string
			dataJSON   string
			cachedRaw  string
			expiresRaw string
		)
		if err := rows.Scan(&entityID, &dataJSON, &cachedRaw, &expiresRaw); err != nil {
			s.logger.Warn("skipping corrupt cache row", logging.Error(err), logging.String("namespace", namespace))
			continue
		}
		expiresAt, err := parseTimeString(expiresRaw)
		if err != nil || !expiresAt.After(now) {
			continue
		}
		entry := CacheEntry{
			ID:        entityID,
			Data:      json.RawMessage(dataJSON),
			ExpiresAt: expiresAt,
		}
		if cachedAt, err := parseTimeString(cachedRaw); err == nil {
			entry.CachedAt = cachedAt
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		s.logger.Warn("cache read aborted", logging.Error(err), logging.String("namespace", namespace))
	}
	return entries
}

// SetCachedEntities overwrites the cached list for a namespace, stamping
// every entry with the same cachedAt/expiresAt pair.
func (s *Store) SetCachedEntities(ctx context.Context, namespace string, entities []CacheEntry, ttl time.Duration) error {
	now := time.Now().UTC()
	expires := now.Add(ttl)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cache tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_entries WHERE namespace = ?`, namespace); err != nil {
		return fmt.Errorf("replace cache namespace: %w", err)
	}
	for _, entity := range entities {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO cache_entries (namespace, entity_id, data_json, cached_at, expires_at)
             VALUES (?, ?, ?, ?, ?)`,
			namespace,
			entity.ID,
			string(entity.Data),
			now.Format(time.RFC3339Nano),
			expires.Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("insert cache entry %s: %w", entity.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cache tx: %w", err)
	}
	return nil
}

// ClearCache drops every cached entity across all namespaces while leaving
// queued work untouched.
func (s *Store) ClearCache(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries`); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// CacheNamespaces lists namespaces with at least one stored entry, expired
// or not. Diagnostic surface for the CLI.
func (s *Store) CacheNamespaces(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT namespace FROM cache_entries ORDER BY namespace`)
	if err != nil {
		return nil, fmt.Errorf("list cache namespaces: %w", err)
	}
	defer rows.Close()

	var namespaces []string
	for rows.Next() {
		var ns string
		if err := rows.Scan(&ns); err != nil {
			return nil, err
		}
		namespaces = append(namespaces, ns)
	}
	return namespaces, rows.Err()
}
