package ipc

import (
	"encoding/json"
	"time"
)

// PingRequest checks daemon reachability.
type PingRequest struct{}

// PingResponse carries the daemon process id.
type PingResponse struct {
	PID int `json:"pid"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// SyncError is a wire copy of one reported sync failure.
type SyncError struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusResponse represents combined daemon and sync engine status.
type StatusResponse struct {
	Running          bool        `json:"running"`
	PID              int         `json:"pid"`
	Online           bool        `json:"online"`
	Syncing          bool        `json:"syncing"`
	PendingUploads   int         `json:"pending_uploads"`
	PendingMutations int         `json:"pending_mutations"`
	FailedUploads    int         `json:"failed_uploads"`
	LastSyncTime     time.Time   `json:"last_sync_time"`
	Errors           []SyncError `json:"errors"`
	QueueDBPath      string      `json:"queue_db_path"`
	LockPath         string      `json:"lock_path"`
}

// SyncNowRequest runs one drain pass immediately.
type SyncNowRequest struct{}

// SyncNowResponse reports the pass outcome.
type SyncNowResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// UploadItem is the wire representation of a queued upload.
type UploadItem struct {
	ID            string     `json:"id"`
	LocalPath     string     `json:"local_path"`
	TargetPath    string     `json:"target_path,omitempty"`
	PromptKey     string     `json:"prompt_key,omitempty"`
	EvaluationID  string     `json:"evaluation_id,omitempty"`
	OpportunityID string     `json:"opportunity_id,omitempty"`
	MimeType      string     `json:"mime_type"`
	Status        string     `json:"status"`
	RetryCount    int        `json:"retry_count"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	MediaID       string     `json:"media_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// MutationItem is the wire representation of a queued local write.
type MutationItem struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	RetryCount int       `json:"retry_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// QueueListRequest filters upload listing by status.
type QueueListRequest struct {
	Statuses []string `json:"statuses"`
}

// QueueListResponse contains both queues in enqueue order.
type QueueListResponse struct {
	Uploads   []UploadItem   `json:"uploads"`
	Mutations []MutationItem `json:"mutations"`
}

// QueueRetryRequest retries failed uploads. Empty list means all failed.
type QueueRetryRequest struct {
	IDs []string `json:"ids"`
}

// QueueRetryResponse reports number of retried uploads.
type QueueRetryResponse struct {
	Updated int64 `json:"updated"`
}

// QueueClearCompletedRequest removes completed uploads older than MaxAgeHours.
// Zero means remove all completed uploads.
type QueueClearCompletedRequest struct {
	MaxAgeHours int `json:"max_age_hours"`
}

// QueueClearCompletedResponse reports number of removed entries.
type QueueClearCompletedResponse struct {
	Removed int64 `json:"removed"`
}

// EnqueueUploadRequest queues a media file for background upload.
type EnqueueUploadRequest struct {
	LocalPath     string `json:"local_path"`
	TargetPath    string `json:"target_path,omitempty"`
	PromptKey     string `json:"prompt_key,omitempty"`
	EvaluationID  string `json:"evaluation_id,omitempty"`
	OpportunityID string `json:"opportunity_id,omitempty"`
	MimeType      string `json:"mime_type,omitempty"`
}

// EnqueueUploadResponse returns the stored queue entry.
type EnqueueUploadResponse struct {
	Item UploadItem `json:"item"`
}

// EnqueueMutationRequest queues a local write for replay against the backend.
// An empty payload enqueues as {}.
type EnqueueMutationRequest struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EnqueueMutationResponse returns the id of the queued mutation.
type EnqueueMutationResponse struct {
	ID string `json:"id"`
}

// CacheClearRequest drops cached entities, leaving queues intact.
type CacheClearRequest struct{}

// CacheClearResponse acknowledges the cache clear.
type CacheClearResponse struct {
	Cleared bool `json:"cleared"`
}

// SignOutRequest wipes all local state.
type SignOutRequest struct{}

// SignOutResponse acknowledges the wipe.
type SignOutResponse struct {
	Cleared bool `json:"cleared"`
}

// LogTailRequest fetches log lines based on offset and follow semantics.
type LogTailRequest struct {
	Offset     int64 `json:"offset"`
	Limit      int   `json:"limit"`
	Follow     bool  `json:"follow"`
	WaitMillis int   `json:"wait_millis"`
}

// LogTailResponse returns log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
