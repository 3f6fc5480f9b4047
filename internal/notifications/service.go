package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"proxyfarm/internal/config"
	"proxyfarm/internal/version"
)

// Service is the notification surface used by the coordinator.
type Service interface {
	NotifyBatchStarted(ctx context.Context, project, timeline string, tasks int) error
	NotifyBatchCompleted(ctx context.Context, summary BatchSummary) error
	NotifyError(ctx context.Context, err error, contextLabel string) error
	TestNotification(ctx context.Context) error
}

// BatchSummary is the outcome reported when a batch finishes.
type BatchSummary struct {
	Project  string
	Timeline string
	Linked   int
	Failed   int
	Skipped  int
	Duration time.Duration
}

// NewService builds an ntfy-backed service, or a no-op when no topic is set.
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
		endpoint:      topic,
		client:        &http.Client{Timeout: timeout},
		batchComplete: cfg.Notifications.BatchComplete,
		errors:        cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint      string
	client        *http.Client
	batchComplete bool
	errors        bool
}

func (n *ntfyService) NotifyBatchStarted(ctx context.Context, project, timeline string, tasks int) error {
	if !n.batchComplete {
		return nil
	}
	return n.send(ctx, payload{
		title:   "proxyfarm - Batch Started",
		message: fmt.Sprintf("Dispatching %d task(s) for %s", tasks, label(project, timeline)),
		tags:    []string{"proxyfarm", "batch", "started"},
	})
}

func (n *ntfyService) NotifyBatchCompleted(ctx context.Context, s BatchSummary) error {
	if !n.batchComplete {
		return nil
	}
	duration := max(s.Duration.Round(time.Second), 0)
	data := payload{
		title:   "proxyfarm - Batch Complete",
		message: fmt.Sprintf("%s: %d proxies linked in %s", label(s.Project, s.Timeline), s.Linked, duration),
		tags:    []string{"proxyfarm", "batch", "completed"},
	}
	if s.Failed > 0 {
		data.title = "proxyfarm - Batch Complete (with errors)"
		data.message = fmt.Sprintf("%s: %d linked, %d failed in %s", label(s.Project, s.Timeline), s.Linked, s.Failed, duration)
	}
	if s.Skipped > 0 {
		data.message += fmt.Sprintf("\n%d clip(s) skipped", s.Skipped)
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
		builder.WriteString(" in ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}
	return n.send(ctx, payload{
		title:    "proxyfarm - Error",
		message:  builder.String(),
		tags:     []string{"proxyfarm", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "proxyfarm - Test",
		message:  "Notification test from proxyfarm " + version.String(),
		tags:     []string{"proxyfarm", "test"},
		priority: "low",
	})
}

func label(project, timeline string) string {
	project = strings.TrimSpace(project)
	timeline = strings.TrimSpace(timeline)
	switch {
	case project == "":
		return timeline
	case timeline == "":
		return project
	default:
		return project + " / " + timeline
	}
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", "proxyfarm/"+version.String())
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

func (noopService) NotifyBatchStarted(context.Context, string, string, int) error { return nil }
func (noopService) NotifyBatchCompleted(context.Context, BatchSummary) error      { return nil }
func (noopService) NotifyError(context.Context, error, string) error              { return nil }
func (noopService) TestNotification(context.Context) error                        { return nil }
