package store

import (
	"encoding/json"
	"strings"
	"time"
)

// UploadStatus represents the lifecycle of a queued media upload.
type UploadStatus string

const (
	UploadPending   UploadStatus = "pending"
	UploadUploading UploadStatus = "uploading"
	UploadCompleted UploadStatus = "completed"
	UploadFailed    UploadStatus = "failed"
)

var allUploadStatuses = []UploadStatus{
	UploadPending,
	UploadUploading,
	UploadCompleted,
	UploadFailed,
}

var uploadStatusSet = func() map[UploadStatus]struct{} {
	set := make(map[UploadStatus]struct{}, len(allUploadStatuses))
	for _, status := range allUploadStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllUploadStatuses returns the ordered list of known upload statuses.
func AllUploadStatuses() []UploadStatus {
	cp := make([]UploadStatus, len(allUploadStatuses))
	copy(cp, allUploadStatuses)
	return cp
}

// ParseUploadStatus converts a string into a known UploadStatus.
func ParseUploadStatus(value string) (UploadStatus, bool) {
	normalized := UploadStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := uploadStatusSet[normalized]
	return normalized, ok
}

// UploadItem is a queued media upload persisted until the file reaches the
// backend. Status only moves forward: pending -> uploading -> completed, or
// back to pending for another attempt, or to failed once the retry ceiling
// is hit.
type UploadItem struct {
	ID            string
	LocalPath     string
	TargetPath    string
	PromptKey     string
	EvaluationID  string
	OpportunityID string
	MimeType      string
	Status        UploadStatus
	RetryCount    int
	ErrorMessage  string
	MediaID       string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

// SetFailed marks the item as permanently failed with the given message.
func (i *UploadItem) SetFailed(message string) {
	i.Status = UploadFailed
	i.ErrorMessage = message
}

// Mutation is a queued local write awaiting replay against the backend.
// Kind is one of the mutation package's closed set; the store treats it as
// an opaque tag.
type Mutation struct {
	ID         string
	Kind       string
	Payload    json.RawMessage
	RetryCount int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CacheEntry is a read-through cached entity with lazy TTL eviction: reads
// filter out expired rows instead of deleting them.
type CacheEntry struct {
	ID        string
	Data      json.RawMessage
	CachedAt  time.Time
	ExpiresAt time.Time
}

// Counts aggregates pending work, recomputed from storage rather than from
// in-memory tallies.
type Counts struct {
	PendingUploads   int
	PendingMutations int
	FailedUploads    int
}
