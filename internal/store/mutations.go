package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const mutationColumns = "id, kind, payload_json, retry_count, created_at, updated_at"

// EnqueueMutation persists a new pending local write and returns its id.
func (s *Store) EnqueueMutation(ctx context.Context, kind string, payload json.RawMessage) (string, error) {
	if kind == "" {
		return "", errors.New("mutation requires a kind")
	}
	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO mutation_queue (id, kind, payload_json, retry_count, created_at, updated_at)
         VALUES (?, ?, ?, 0, ?, ?)`,
		id,
		kind,
		string(payload),
		now,
		now,
	)
	if err != nil {
		return "", fmt.Errorf("insert mutation: %w", err)
	}
	return id, nil
}

// MutationByID fetches a queued mutation by identifier, or nil when absent.
func (s *Store) MutationByID(ctx context.Context, id string) (*Mutation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+mutationColumns+` FROM mutation_queue WHERE id = ?`, id)
	m, err := scanMutation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get mutation: %w", err)
	}
	return m, nil
}

// UpdateMutation persists retry bookkeeping for a queued mutation.
func (s *Store) UpdateMutation(ctx context.Context, m *Mutation) error {
	if m == nil {
		return errors.New("mutation is nil")
	}
	m.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE mutation_queue SET kind = ?, payload_json = ?, retry_count = ?, updated_at = ? WHERE id = ?`,
		m.Kind,
		string(m.Payload),
		m.RetryCount,
		m.UpdatedAt.Format(time.RFC3339Nano),
		m.ID,
	)
	if err != nil {
		return fmt.Errorf("update mutation: %w", err)
	}
	return nil
}

// RemoveMutation deletes a queued mutation by identifier.
func (s *Store) RemoveMutation(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM mutation_queue WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete mutation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Mutations returns every queued mutation, FIFO by enqueue time.
func (s *Store) Mutations(ctx context.Context) ([]*Mutation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+mutationColumns+` FROM mutation_queue ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list mutations: %w", err)
	}
	defer rows.Close()

	var mutations []*Mutation
	for rows.Next() {
		m, err := scanMutation(rows)
		if err != nil {
			return nil, err
		}
		mutations = append(mutations, m)
	}
	return mutations, rows.Err()
}

func scanMutation(scanner interface{ Scan(dest ...any) error }) (*Mutation, error) {
	var (
		id         string
		kind       string
		payload    string
		retryCount int
		createdRaw sql.NullString
		updatedRaw sql.NullString
	)
	if err := scanner.Scan(&id, &kind, &payload, &retryCount, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	m := &Mutation{
		ID:         id,
		Kind:       kind,
		Payload:    json.RawMessage(payload),
		RetryCount: retryCount,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		m.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		m.UpdatedAt = updated
	}
	return m, nil
}
