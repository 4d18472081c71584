package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dealsync/internal/config"
)

const userAgent = "dealsync/0.1.0"

// Service defines the push notification surface used by the sync engine.
type Service interface {
	NotifySyncCompleted(ctx context.Context, uploads, mutations, failed int, duration time.Duration) error
	NotifyUploadFailed(ctx context.Context, fileName, reason string) error
	NotifyMutationDropped(ctx context.Context, kind, reason string) error
	NotifyBacklog(ctx context.Context, pending int) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:    topic,
		client:      &http.Client{Timeout: timeout},
		syncSummary: cfg.Notifications.SyncSummary,
		errors:      cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint    string
	client      *http.Client
	syncSummary bool
	errors      bool
}

func (n *ntfyService) NotifySyncCompleted(ctx context.Context, uploads, mutations, failed int, duration time.Duration) error {
	if !n.syncSummary {
		return nil
	}
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}

	var title, message string
	if failed == 0 {
		title = "Dealsync - Sync Complete"
		message = fmt.Sprintf("Synced %d uploads and %d mutations in %s", uploads, mutations, duration)
	} else {
		title = "Dealsync - Sync Complete (with errors)"
		message = fmt.Sprintf("Synced %d uploads, %d mutations, %d failed in %s", uploads, mutations, failed, duration)
	}

	data := payload{
		title:   title,
		message: message,
		tags:    []string{"dealsync", "sync", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyUploadFailed(ctx context.Context, fileName, reason string) error {
	if !n.errors {
		return nil
	}
	fileName = strings.TrimSpace(fileName)
	data := payload{
		title:    "Dealsync - Upload Failed",
		message:  fmt.Sprintf("Upload failed: %s\n%s", fileName, strings.TrimSpace(reason)),
		tags:     []string{"dealsync", "upload", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyMutationDropped(ctx context.Context, kind, reason string) error {
	if !n.errors {
		return nil
	}
	data := payload{
		title:    "Dealsync - Change Not Saved",
		message:  fmt.Sprintf("A %s change could not be saved: %s", strings.TrimSpace(kind), strings.TrimSpace(reason)),
		tags:     []string{"dealsync", "mutation", "dropped"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyBacklog(ctx context.Context, pending int) error {
	data := payload{
		title:   "Dealsync - Backlog",
		message: fmt.Sprintf("%d items waiting to sync", pending),
		tags:    []string{"dealsync", "queue", "backlog"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Dealsync - Error",
		message:  builder.String(),
		tags:     []string{"dealsync", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Dealsync - Test",
		message:  "Notification system test",
		tags:     []string{"dealsync", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifySyncCompleted(context.Context, int, int, int, time.Duration) error {
	return nil
}
func (noopService) NotifyUploadFailed(context.Context, string, string) error    { return nil }
func (noopService) NotifyMutationDropped(context.Context, string, string) error { return nil }
func (noopService) NotifyBacklog(context.Context, int) error                    { return nil }
func (noopService) NotifyError(context.Context, error, string) error            { return nil }
func (noopService) TestNotification(context.Context) error                      { return nil }

// Noop returns the no-op notification service.
func Noop() Service { return noopService{} }
