package upload

import (
	"context"
	"log/slog"
	"path/filepath"

	"dealsync/internal/backend"
	"dealsync/internal/logging"
	"dealsync/internal/media"
	"dealsync/internal/services"
	"dealsync/internal/store"
)

// Stage names a phase of the upload pipeline.
type Stage string

const (
	StageValidate Stage = "validate"
	StageCompress Stage = "compress"
	StageSlot     Stage = "slot"
	StageTransfer Stage = "transfer"
	StageFinalize Stage = "finalize"
	StageCommit   Stage = "commit"
)

// Progress reports where an item is in the pipeline. Percent is 0-100
// across the whole pipeline, not per stage.
type Progress struct {
	ItemID  string
	Stage   Stage
	Percent float64
}

// ProgressFunc receives progress updates; callers pass nil to skip them.
type ProgressFunc func(Progress)

// Stage boundaries on the 0-100 scale. Validation is quick, the transfer
// dominates, so it gets the widest band.
const (
	pctValidateDone = 5.0
	pctCompressDone = 20.0
	pctTransferDone = 80.0
	pctFinalizeDone = 100.0
)

// Backend is the slice of the platform client the pipeline needs.
type Backend interface {
	CreateUploadSlot(ctx context.Context, req backend.SlotRequest) (backend.UploadSlot, error)
	TransferToSignedURL(ctx context.Context, slot backend.UploadSlot, path, mimeType string, progress backend.TransferProgress) error
	CompleteUpload(ctx context.Context, req backend.CompleteRequest) (string, error)
}

// Pipeline moves one media file through validate, compress, slot request,
// transfer, finalize, and commit. Each call is one attempt; the sync engine
// owns retry policy and queue state.
type Pipeline struct {
	backend    Backend
	compressor *media.Compressor
	logger     *slog.Logger

	CompressionEnabled bool
}

// Options tunes pipeline behavior beyond its dependencies.
type Options struct {
	CompressionEnabled bool
}

// NewPipeline builds an upload pipeline.
func NewPipeline(b Backend, compressor *media.Compressor, logger *slog.Logger, opts Options) *Pipeline {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pipeline{
		backend:            b,
		compressor:         compressor,
		logger:             logger.With(logging.String(logging.FieldComponent, "upload")),
		CompressionEnabled: opts.CompressionEnabled,
	}
}

// Upload runs one attempt of the full pipeline and returns the media id the
// backend assigned. The item itself is not persisted here; the caller owns
// queue state.
func (p *Pipeline) Upload(ctx context.Context, item *store.UploadItem, progress ProgressFunc) (string, error) {
	report := func(stage Stage, percent float64) {
		if progress != nil {
			progress(Progress{ItemID: item.ID, Stage: stage, Percent: percent})
		}
	}
	if err := ctx.Err(); err != nil {
		return "", services.Classify(err)
	}

	report(StageValidate, 0)
	mimeType, size, err := media.Validate(item.LocalPath)
	if err != nil {
		return "", err
	}
	report(StageValidate, pctValidateDone)

	source := media.Result{Path: item.LocalPath, MimeType: mimeType, Size: size}
	if p.CompressionEnabled && p.compressor != nil {
		source, err = p.compressor.Compress(item.LocalPath)
		if err != nil {
			return "", err
		}
		defer p.compressor.Cleanup(source)
	}
	report(StageCompress, pctCompressDone)
	if err := ctx.Err(); err != nil {
		return "", services.Classify(err)
	}

	slot, err := p.backend.CreateUploadSlot(ctx, backend.SlotRequest{
		FileName:      uploadFileName(item.LocalPath, source),
		MimeType:      source.MimeType,
		Size:          source.Size,
		PromptKey:     item.PromptKey,
		EvaluationID:  item.EvaluationID,
		OpportunityID: item.OpportunityID,
		TargetPath:    item.TargetPath,
	})
	if err != nil {
		return "", err
	}
	p.logger.Debug("upload slot granted",
		logging.String(logging.FieldItemID, item.ID),
		logging.String("upload_id", slot.UploadID),
		logging.String("bucket", slot.Bucket))
	report(StageSlot, pctCompressDone)

	transferProgress := func(sent, total int64) {
		if total <= 0 {
			return
		}
		fraction := float64(sent) / float64(total)
		report(StageTransfer, pctCompressDone+fraction*(pctTransferDone-pctCompressDone))
	}
	if err := p.backend.TransferToSignedURL(ctx, slot, source.Path, source.MimeType, transferProgress); err != nil {
		return "", err
	}
	report(StageTransfer, pctTransferDone)
	if err := ctx.Err(); err != nil {
		return "", services.Classify(err)
	}

	report(StageFinalize, pctTransferDone)
	mediaID, err := p.backend.CompleteUpload(ctx, backend.CompleteRequest{
		UploadID:      slot.UploadID,
		Path:          slot.Path,
		Bucket:        slot.Bucket,
		MimeType:      source.MimeType,
		Size:          source.Size,
		Width:         source.Width,
		Height:        source.Height,
		PromptKey:     item.PromptKey,
		EvaluationID:  item.EvaluationID,
		OpportunityID: item.OpportunityID,
	})
	if err != nil {
		return "", err
	}
	report(StageFinalize, pctFinalizeDone)
	report(StageCommit, pctFinalizeDone)
	return mediaID, nil
}

func uploadFileName(original string, source media.Result) string {
	name := filepath.Base(original)
	if source.Compressed {
		ext := filepath.Ext(name)
		name = name[:len(name)-len(ext)] + ".jpg"
	}
	return name
}
