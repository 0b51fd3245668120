// Package webhook notifies an HTTP endpoint when a run ends.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/use-agent/seiassign/models"
)

// Event types.
const (
	EventRunCompleted = "run.completed"
	EventRunFailed    = "run.failed"
)

// SignatureHeader carries the HMAC-SHA256 of the body as "sha256=<hex>".
const SignatureHeader = "X-SEIAssign-Signature"

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string          `json:"type"`
	RunID     string          `json:"run_id"`
	Timestamp int64           `json:"timestamp"`
	Data      *models.Summary `json:"data"`
}

// NewRunEvent builds the event reporting s.
func NewRunEvent(s *models.Summary) *Event {
	typ := EventRunCompleted
	if s.Error != nil {
		typ = EventRunFailed
	}
	return &Event{
		Type:      typ,
		RunID:     s.RunID,
		Timestamp: time.Now().Unix(),
		Data:      s,
	}
}

// Notifier delivers events to one endpoint.
type Notifier struct {
	url    string
	secret string
	client *http.Client
	delays []time.Duration
	logger *slog.Logger
}

// New creates a Notifier. Failed deliveries are retried after 1s, 5s and
// 30s.
func New(url, secret string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
		delays: []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second},
		logger: logger.With("component", "webhook"),
	}
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Deliver sends event once. The body is signed when a secret is set.
func (n *Notifier) Deliver(ctx context.Context, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "SEIAssign-Webhook/1.0")
	if n.secret != "" {
		req.Header.Set(SignatureHeader, Sign(n.secret, body))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Notify delivers event, retrying on failure until the delays are spent or
// ctx ends.
func (n *Notifier) Notify(ctx context.Context, event *Event) error {
	var err error
	for attempt, delay := range n.delays {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("webhook: %w (last error: %v)", ctx.Err(), err)
			}
		}
		if err = n.Deliver(ctx, event); err == nil {
			n.logger.Info("webhook delivered",
				"url", n.url,
				"event", event.Type,
				"run_id", event.RunID,
				"attempt", attempt+1,
			)
			return nil
		}
		n.logger.Warn("webhook delivery failed",
			"url", n.url,
			"event", event.Type,
			"run_id", event.RunID,
			"attempt", attempt+1,
			"error", err,
		)
	}
	n.logger.Error("webhook delivery exhausted all retries",
		"url", n.url,
		"event", event.Type,
		"run_id", event.RunID,
	)
	return err
}

// NotifyAsync runs Notify in the background. The returned channel yields
// its result and is then closed.
func (n *Notifier) NotifyAsync(ctx context.Context, event *Event) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- n.Notify(ctx, event)
	}()
	return done
}
