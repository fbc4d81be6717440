package alert

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"

	"job-trigger-portal/pkg/logger"
)

// Event is the payload posted to the operator webhook. The scheduler emits
// these for exhausted retries and reaped workers; the logger's alert core
// emits them for flagged error entries.
type Event struct {
	Kind      string                 `json:"kind"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

const (
	KindLogAlert         = "log_alert"
	KindRetriesExhausted = "retries_exhausted"
	KindWorkerReaped     = "worker_reaped"
)

// Notifier delivers operator events. Delivery is fire-and-forget; the
// scheduler and worker never depend on it succeeding.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

type webhookNotifier struct {
	client *resty.Client
	url    string
	log    *logger.Logger
}

// NewWebhookNotifier posts events as JSON to the given URL. A NopNotifier
// is returned when the URL is empty so callers can skip wiring checks.
func NewWebhookNotifier(url string, timeout time.Duration, log *logger.Logger) Notifier {
	if url == "" {
		return NopNotifier{}
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	return &webhookNotifier{client: client, url: url, log: log}
}

func (n *webhookNotifier) Notify(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(event).
		Post(n.url)
	if err != nil {
		n.log.Warn("Failed to deliver webhook alert", logger.ErrorField(err), logger.StringField("kind", event.Kind))
		return
	}
	if resp.IsError() {
		n.log.Warn("Webhook alert rejected",
			logger.IntField("status", resp.StatusCode()),
			logger.StringField("kind", event.Kind),
		)
	}
}

// SendAlert implements logger.AlertSender on top of Notify.
func (n *webhookNotifier) SendAlert(level, message string, fields map[string]interface{}) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	n.Notify(ctx, Event{
		Kind:    KindLogAlert,
		Message: level + ": " + message,
		Details: fields,
	})
}

// NopNotifier drops every event. Used when no webhook URL is configured.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) {}

func (NopNotifier) SendAlert(string, string, map[string]interface{}) {}
