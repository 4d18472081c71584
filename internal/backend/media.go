package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"dealsync/internal/services"
)

// UploadSlot is the signed destination handed out by the media-upload-url
// function. The slot's URL accepts exactly one PUT.
type UploadSlot struct {
	UploadURL string `json:"uploadUrl"`
	UploadID  string `json:"uploadId"`
	Path      string `json:"path"`
	Bucket    string `json:"bucket"`
}

// SlotRequest describes the media object a slot is requested for.
type SlotRequest struct {
	FileName      string `json:"fileName"`
	MimeType      string `json:"mimeType"`
	Size          int64  `json:"size"`
	PromptKey     string `json:"promptKey,omitempty"`
	EvaluationID  string `json:"evaluationId,omitempty"`
	OpportunityID string `json:"opportunityId,omitempty"`
	TargetPath    string `json:"targetPath,omitempty"`
}

// CreateUploadSlot requests a signed upload destination.
func (c *Client) CreateUploadSlot(ctx context.Context, req SlotRequest) (UploadSlot, error) {
	var slot UploadSlot
	if err := c.doJSON(ctx, http.MethodPost, c.functionsURL+"/media-upload-url", nil, req, &slot); err != nil {
		return UploadSlot{}, err
	}
	if slot.UploadURL == "" || slot.UploadID == "" {
		return UploadSlot{}, services.Wrap(services.ErrTransient, "backend", "create upload slot", "incomplete slot response", nil)
	}
	return slot, nil
}

// CompleteRequest finalizes an uploaded object into a media record.
type CompleteRequest struct {
	UploadID      string `json:"uploadId"`
	Path          string `json:"path"`
	Bucket        string `json:"bucket"`
	MimeType      string `json:"mimeType"`
	Size          int64  `json:"size"`
	Width         int    `json:"width,omitempty"`
	Height        int    `json:"height,omitempty"`
	PromptKey     string `json:"promptKey,omitempty"`
	EvaluationID  string `json:"evaluationId,omitempty"`
	OpportunityID string `json:"opportunityId,omitempty"`
}

// CompleteUpload registers the transferred object and returns its media id.
func (c *Client) CompleteUpload(ctx context.Context, req CompleteRequest) (string, error) {
	var out struct {
		MediaID string `json:"mediaId"`
	}
	if err := c.doJSON(ctx, http.MethodPost, c.functionsURL+"/media-upload-complete", nil, req, &out); err != nil {
		return "", err
	}
	if out.MediaID == "" {
		return "", services.Wrap(services.ErrTransient, "backend", "complete upload", "response missing media id", nil)
	}
	return out.MediaID, nil
}

// TransferProgress reports bytes sent against the total during a transfer.
type TransferProgress func(sent, total int64)

// TransferToSignedURL streams a local file to the slot's signed URL with a
// PUT. Progress callbacks fire as the body drains; the signed URL already
// embeds its credentials so no auth headers are attached.
func (c *Client) TransferToSignedURL(ctx context.Context, slot UploadSlot, path, mimeType string, progress TransferProgress) error {
	file, err := os.Open(path)
	if err != nil {
		return services.Wrap(services.ErrValidation, "backend", "transfer", "open "+path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return services.Wrap(services.ErrValidation, "backend", "transfer", "stat "+path, err)
	}
	total := info.Size()

	body := io.Reader(file)
	if progress != nil {
		body = &progressReader{r: file, total: total, report: progress}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, slot.UploadURL, body)
	if err != nil {
		return services.Wrap(services.ErrValidation, "backend", "transfer", "build request", err)
	}
	req.ContentLength = total
	req.Header.Set("Content-Type", mimeType)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Classify(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return services.Wrap(services.ErrTransient, "backend", "transfer", fmt.Sprintf("signed url returned %d", resp.StatusCode), nil)
	}
	if progress != nil {
		progress(total, total)
	}
	return nil
}

type progressReader struct {
	r      io.Reader
	total  int64
	sent   int64
	report TransferProgress
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.sent += int64(n)
		p.report(p.sent, p.total)
	}
	return n, err
}
