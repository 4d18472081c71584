package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const uploadColumns = "id, local_path, target_path, prompt_key, evaluation_id, opportunity_id, mime_type, status, retry_count, error_message, media_id, created_at, updated_at, completed_at"

// EnqueueUpload persists a new pending upload job and returns the stored item.
func (s *Store) EnqueueUpload(ctx context.Context, item UploadItem) (*UploadItem, error) {
	if item.LocalPath == "" {
		return nil, errors.New("upload item requires a local path")
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Status == "" {
		item.Status = UploadPending
	}
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO upload_queue (
            id, local_path, target_path, prompt_key, evaluation_id, opportunity_id,
            mime_type, status, retry_count, error_message, media_id, created_at, updated_at, completed_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.LocalPath,
		nullableString(item.TargetPath),
		nullableString(item.PromptKey),
		nullableString(item.EvaluationID),
		item.OpportunityID,
		item.MimeType,
		item.Status,
		item.RetryCount,
		nullableString(item.ErrorMessage),
		nullableString(item.MediaID),
		timestamp,
		timestamp,
		nullableTime(item.CompletedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert upload item: %w", err)
	}
	return s.UploadByID(ctx, item.ID)
}

// UploadByID fetches an upload item by identifier, or nil when absent.
func (s *Store) UploadByID(ctx context.Context, id string) (*UploadItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+uploadColumns+` FROM upload_queue WHERE id = ?`, id)
	item, err := scanUpload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get upload item: %w", err)
	}
	return item, nil
}

// UpdateUpload persists changes to an existing upload item.
func (s *Store) UpdateUpload(ctx context.Context, item *UploadItem) error {
	if item == nil {
		return errors.New("upload item is nil")
	}
	item.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE upload_queue
         SET local_path = ?, target_path = ?, prompt_key = ?, evaluation_id = ?,
             opportunity_id = ?, mime_type = ?, status = ?, retry_count = ?,
             error_message = ?, media_id = ?, updated_at = ?, completed_at = ?
         WHERE id = ?`,
		item.LocalPath,
		nullableString(item.TargetPath),
		nullableString(item.PromptKey),
		nullableString(item.EvaluationID),
		item.OpportunityID,
		item.MimeType,
		item.Status,
		item.RetryCount,
		nullableString(item.ErrorMessage),
		nullableString(item.MediaID),
		item.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(item.CompletedAt),
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("update upload item: %w", err)
	}
	return nil
}

// RemoveUpload deletes an upload item by identifier.
func (s *Store) RemoveUpload(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM upload_queue WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete upload item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Uploads returns upload items filtered by status set (or all items when no
// status is provided), FIFO by enqueue time.
func (s *Store) Uploads(ctx context.Context, statuses ...UploadStatus) ([]*UploadItem, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + uploadColumns + ` FROM upload_queue`
	orderClause := ` ORDER BY created_at`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list upload items: %w", err)
	}
	defer rows.Close()

	var items []*UploadItem
	for rows.Next() {
		item, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ResetStuckUploads returns items left in uploading state (daemon crash or
// kill mid-transfer) back to pending so the next pass retries them.
func (s *Store) ResetStuckUploads(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE upload_queue SET status = ?, updated_at = ? WHERE status = ?`,
		UploadPending,
		time.Now().UTC().Format(time.RFC3339Nano),
		UploadUploading,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck uploads: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailedUploads moves failed uploads back to pending with a fresh retry
// budget. With no ids, every failed item is reset.
func (s *Store) RetryFailedUploads(ctx context.Context, ids ...string) (int64, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	if len(ids) == 0 {
		res, err := s.db.ExecContext(
			ctx,
			`UPDATE upload_queue
             SET status = ?, retry_count = 0, error_message = NULL, updated_at = ?
             WHERE status = ?`,
			UploadPending,
			timestamp,
			UploadFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed uploads: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+3)
	args = append(args, UploadPending, timestamp, UploadFailed)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE upload_queue
        SET status = ?, retry_count = 0, error_message = NULL, updated_at = ?
        WHERE status = ? AND id IN (` + placeholders + `)`
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected uploads: %w", err)
	}
	return res.RowsAffected()
}

// ClearCompletedUploads removes completed upload rows older than the cutoff.
func (s *Store) ClearCompletedUploads(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM upload_queue WHERE status = ? AND completed_at IS NOT NULL AND completed_at < ?`,
		UploadCompleted,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("clear completed uploads: %w", err)
	}
	return res.RowsAffected()
}

func scanUpload(scanner interface{ Scan(dest ...any) error }) (*UploadItem, error) {
	var (
		id            string
		localPath     string
		targetPath    sql.NullString
		promptKey     sql.NullString
		evaluationID  sql.NullString
		opportunityID string
		mimeType      string
		statusStr     string
		retryCount    int
		errorMessage  sql.NullString
		mediaID       sql.NullString
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
		completedRaw  sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&localPath,
		&targetPath,
		&promptKey,
		&evaluationID,
		&opportunityID,
		&mimeType,
		&statusStr,
		&retryCount,
		&errorMessage,
		&mediaID,
		&createdRaw,
		&updatedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	item := &UploadItem{
		ID:            id,
		LocalPath:     localPath,
		TargetPath:    targetPath.String,
		PromptKey:     promptKey.String,
		EvaluationID:  evaluationID.String,
		OpportunityID: opportunityID,
		MimeType:      mimeType,
		Status:        UploadStatus(statusStr),
		RetryCount:    retryCount,
		ErrorMessage:  errorMessage.String,
		MediaID:       mediaID.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			item.CompletedAt = &completed
		}
	}
	return item, nil
}
