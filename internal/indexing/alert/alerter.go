package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/vietddude/chain-observer/internal/indexing/metrics"
)

// Alert is a single operator notification.
type Alert struct {
	Class   Class
	Title   string
	Message string
	Fields  map[string]string
	Time    time.Time
}

// Alerter is the interface for sending alerts.
type Alerter interface {
	Send(ctx context.Context, alert Alert) error
}

// MultiAlerter fans out alerts to multiple channels.
type MultiAlerter struct {
	alerters []Alerter
	logger   *slog.Logger
}

// NewMultiAlerter creates a fan-out over alerters.
func NewMultiAlerter(logger *slog.Logger, alerters ...Alerter) *MultiAlerter {
	return &MultiAlerter{
		alerters: alerters,
		logger:   logger.With("component", "alerter"),
	}
}

// Send dispatches the alert to every channel. It returns the joined errors
// of the channels that failed.
func (m *MultiAlerter) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, a := range m.alerters {
		if err := a.Send(ctx, alert); err != nil {
			m.logger.Warn("Alert send failed",
				"channel", alerterName(a),
				"class", alert.Class,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", alerterName(a), err))
			continue
		}
		metrics.AlertsSent.WithLabelValues(alerterName(a), string(alert.Class)).Inc()
	}
	return errors.Join(errs...)
}

func alerterName(a Alerter) string {
	switch a.(type) {
	case *SlackAlerter:
		return "slack"
	case *WebhookAlerter:
		return "webhook"
	case *EmailAlerter:
		return "email"
	case *LogAlerter:
		return "log"
	default:
		return "unknown"
	}
}

func sortedFields(fields map[string]string) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SlackAlerter sends alerts to a Slack webhook.
type SlackAlerter struct {
	webhookURL string
	client     *http.Client
}

// NewSlackAlerter creates a Slack alerter with the given webhook URL.
func NewSlackAlerter(webhookURL string) *SlackAlerter {
	return &SlackAlerter{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Send sends an alert to Slack.
func (s *SlackAlerter) Send(ctx context.Context, alert Alert) error {
	emoji := ":warning:"
	switch alert.Class {
	case ClassConsistency:
		emoji = ":hourglass:"
	case ClassSchema:
		emoji = ":rotating_light:"
	}

	text := fmt.Sprintf("%s *[%s]* %s\n%s", emoji, alert.Class, alert.Title, alert.Message)
	if len(alert.Fields) > 0 {
		text += "\n"
		for _, k := range sortedFields(alert.Fields) {
			text += fmt.Sprintf("- *%s*: %s\n", k, alert.Fields[k])
		}
	}

	return postJSON(ctx, s.client, s.webhookURL, map[string]string{"text": text}, "slack")
}

// WebhookAlerter sends alerts to a generic HTTP webhook.
type WebhookAlerter struct {
	url    string
	client *http.Client
}

// NewWebhookAlerter creates a generic webhook alerter.
func NewWebhookAlerter(url string) *WebhookAlerter {
	return &WebhookAlerter{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send sends an alert to the webhook endpoint.
func (w *WebhookAlerter) Send(ctx context.Context, alert Alert) error {
	payload := map[string]any{
		"class":   string(alert.Class),
		"title":   alert.Title,
		"message": alert.Message,
		"fields":  alert.Fields,
		"time":    alert.Time.UTC().Format(time.RFC3339),
	}
	return postJSON(ctx, w.client, w.url, payload, "webhook")
}

func postJSON(ctx context.Context, client *http.Client, url string, payload any, channel string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", channel, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", channel, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send %s alert: %w", channel, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned status %d", channel, resp.StatusCode)
	}
	return nil
}

// LogAlerter writes alerts to the log. Used when no channel is configured.
type LogAlerter struct {
	logger *slog.Logger
}

func NewLogAlerter(logger *slog.Logger) *LogAlerter {
	return &LogAlerter{logger: logger.With("component", "alert")}
}

func (l *LogAlerter) Send(_ context.Context, alert Alert) error {
	args := []any{"class", alert.Class, "message", alert.Message}
	for _, k := range sortedFields(alert.Fields) {
		args = append(args, k, alert.Fields[k])
	}
	l.logger.Error(alert.Title, args...)
	return nil
}
