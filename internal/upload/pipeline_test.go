package upload

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"dealsync/internal/backend"
	"dealsync/internal/media"
	"dealsync/internal/services"
	"dealsync/internal/store"
	"dealsync/internal/testsupport"
)

type fakeUploadBackend struct {
	slotCalls     int
	transferCalls int
	completeCalls int

	slotErr     error
	transferErr error
	completeErr error

	mediaID string
}

func (f *fakeUploadBackend) CreateUploadSlot(ctx context.Context, req backend.SlotRequest) (backend.UploadSlot, error) {
	f.slotCalls++
	if f.slotErr != nil {
		return backend.UploadSlot{}, f.slotErr
	}
	return backend.UploadSlot{
		UploadURL: "https://storage.test/signed",
		UploadID:  "up-1",
		Path:      "media/" + req.FileName,
		Bucket:    "media",
	}, nil
}

func (f *fakeUploadBackend) TransferToSignedURL(ctx context.Context, slot backend.UploadSlot, path, mimeType string, progress backend.TransferProgress) error {
	f.transferCalls++
	if f.transferErr != nil {
		return f.transferErr
	}
	if progress != nil {
		progress(50, 100)
		progress(100, 100)
	}
	return nil
}

func (f *fakeUploadBackend) CompleteUpload(ctx context.Context, req backend.CompleteRequest) (string, error) {
	f.completeCalls++
	if f.completeErr != nil {
		return "", f.completeErr
	}
	if f.mediaID == "" {
		return "media-1", nil
	}
	return f.mediaID, nil
}

func newTestPipeline(t *testing.T, b Backend, opts Options) (*Pipeline, *store.UploadItem) {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "photo.jpg")
	testsupport.WriteImage(t, src, 640, 480)

	compressor := media.NewCompressor(filepath.Join(dir, "cache"), 2048, 80)
	pipeline := NewPipeline(b, compressor, nil, opts)
	item := &store.UploadItem{
		ID:           "item-1",
		LocalPath:    src,
		PromptKey:    "kitchen",
		EvaluationID: "ev-1",
	}
	return pipeline, item
}

func TestUploadRunsAllStagesInOrder(t *testing.T) {
	fake := &fakeUploadBackend{}
	pipeline, item := newTestPipeline(t, fake, Options{CompressionEnabled: true})

	var stages []Stage
	var percents []float64
	mediaID, err := pipeline.Upload(context.Background(), item, func(p Progress) {
		stages = append(stages, p.Stage)
		percents = append(percents, p.Percent)
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if mediaID != "media-1" {
		t.Fatalf("media id %q", mediaID)
	}

	wantOrder := []Stage{StageValidate, StageCompress, StageSlot, StageTransfer, StageFinalize, StageCommit}
	seen := map[Stage]bool{}
	orderIdx := 0
	for _, stage := range stages {
		if !seen[stage] {
			seen[stage] = true
			for orderIdx < len(wantOrder) && wantOrder[orderIdx] != stage {
				orderIdx++
			}
			if orderIdx == len(wantOrder) {
				t.Fatalf("stage %s out of order in %v", stage, stages)
			}
		}
	}
	for _, stage := range []Stage{StageValidate, StageCompress, StageTransfer, StageFinalize, StageCommit} {
		if !seen[stage] {
			t.Fatalf("stage %s never reported, got %v", stage, stages)
		}
	}

	last := -1.0
	for i, pct := range percents {
		if pct < last {
			t.Fatalf("progress went backwards at %d: %v", i, percents)
		}
		last = pct
	}
	if percents[len(percents)-1] != 100 {
		t.Fatalf("final percent %v, want 100", percents[len(percents)-1])
	}
}

func TestUploadFailsFastOnMissingFile(t *testing.T) {
	fake := &fakeUploadBackend{}
	pipeline, item := newTestPipeline(t, fake, Options{})
	item.LocalPath = filepath.Join(t.TempDir(), "gone.jpg")

	_, err := pipeline.Upload(context.Background(), item, nil)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if fake.slotCalls != 0 {
		t.Fatal("slot must not be requested when validation fails")
	}
}

func TestUploadIsSingleAttempt(t *testing.T) {
	fake := &fakeUploadBackend{
		slotErr: services.Wrap(services.ErrTransient, "backend", "create upload slot", "status 503", nil),
	}
	pipeline, item := newTestPipeline(t, fake, Options{})

	_, err := pipeline.Upload(context.Background(), item, nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if fake.slotCalls != 1 {
		t.Fatalf("slot calls %d, want 1 (retry policy lives in the sync engine)", fake.slotCalls)
	}
}

func TestUploadObservesCancellation(t *testing.T) {
	fake := &fakeUploadBackend{}
	pipeline, item := newTestPipeline(t, fake, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pipeline.Upload(ctx, item, nil)
	if !errors.Is(err, services.ErrCanceled) {
		t.Fatalf("expected canceled error, got %v", err)
	}
	if fake.slotCalls != 0 {
		t.Fatal("no backend call should happen after cancellation")
	}
}

func TestUploadFinalizeFailureSurfaces(t *testing.T) {
	fake := &fakeUploadBackend{
		completeErr: services.Wrap(services.ErrTransient, "backend", "complete upload", "status 502", nil),
	}
	pipeline, item := newTestPipeline(t, fake, Options{})

	_, err := pipeline.Upload(context.Background(), item, nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if fake.transferCalls != 1 {
		t.Fatalf("transfer calls %d, want 1", fake.transferCalls)
	}
}
