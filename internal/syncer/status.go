package syncer

import (
	"time"

	"github.com/google/uuid"
)

// Error types recorded in the status ring.
const (
	ErrorTypeUpload   = "upload"
	ErrorTypeMutation = "mutation"
)

// SyncError is one durable failure surfaced to subscribers.
type SyncError struct {
	ID        string
	Type      string
	Message   string
	Timestamp time.Time
}

func newSyncError(errType, message string) SyncError {
	return SyncError{
		ID:        uuid.NewString(),
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Status is a point-in-time snapshot of the sync engine. It is derived, not
// persisted; counts always come from storage.
type Status struct {
	IsOnline         bool
	IsSyncing        bool
	PendingUploads   int
	PendingMutations int
	FailedUploads    int
	LastSyncTime     time.Time
	Errors           []SyncError
}

// errorRing keeps the most recent failures, bounded so a long offline stretch
// cannot grow memory without limit.
type errorRing struct {
	limit   int
	entries []SyncError
}

func newErrorRing(limit int) *errorRing {
	if limit <= 0 {
		limit = 10
	}
	return &errorRing{limit: limit}
}

func (r *errorRing) append(err SyncError) {
	r.entries = append(r.entries, err)
	if len(r.entries) > r.limit {
		r.entries = r.entries[len(r.entries)-r.limit:]
	}
}

func (r *errorRing) clear() {
	r.entries = nil
}

func (r *errorRing) snapshot() []SyncError {
	out := make([]SyncError, len(r.entries))
	copy(out, r.entries)
	return out
}
