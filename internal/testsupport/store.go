package testsupport

import (
	"context"
	"encoding/json"
	"testing"

	"dealsync/internal/config"
	"dealsync/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg, nil)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// EnqueueUpload creates a pending upload item for tests.
func EnqueueUpload(t testing.TB, st *store.Store, localPath, opportunityID, mimeType string) *store.UploadItem {
	t.Helper()

	item, err := st.EnqueueUpload(context.Background(), store.UploadItem{
		LocalPath:     localPath,
		OpportunityID: opportunityID,
		MimeType:      mimeType,
	})
	if err != nil {
		t.Fatalf("store.EnqueueUpload: %v", err)
	}
	return item
}

// EnqueueMutation creates a queued mutation for tests, marshaling the payload.
func EnqueueMutation(t testing.TB, st *store.Store, kind string, payload any) string {
	t.Helper()

	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	id, err := st.EnqueueMutation(context.Background(), kind, raw)
	if err != nil {
		t.Fatalf("store.EnqueueMutation: %v", err)
	}
	return id
}
