// Package webhooks pushes mailbox events to per-inbox HTTP subscribers and
// fires Auto-Wake pings at destination agents that registered a webhook URL.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quackhq/quack/pkg/mailbox"
	"github.com/quackhq/quack/pkg/models"
)

// DeliveryTimeout bounds every outbound webhook call.
const DeliveryTimeout = 10 * time.Second

// SignatureHeader carries the HMAC-SHA256 hex of the raw request body.
const SignatureHeader = "X-Quack-Signature"

// Signature computes the hex HMAC-SHA256 of body under secret.
func Signature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Service is the subscriber registry plus delivery client. Subscriptions
// survive restarts via a JSON snapshot.
type Service struct {
	mu     sync.Mutex
	path   string
	subs   map[string]*models.WebhookSubscription
	client *http.Client
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClient overrides the HTTP client, for tests.
func WithClient(c *http.Client) Option {
	return func(s *Service) { s.client = c }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the webhook service, restoring subscriptions from
// snapshotPath when present. An empty path disables persistence.
func NewService(snapshotPath string, opts ...Option) (*Service, error) {
	s := &Service{
		path:   snapshotPath,
		subs:   make(map[string]*models.WebhookSubscription),
		client: &http.Client{Timeout: DeliveryTimeout},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if snapshotPath != "" {
		var snap map[string]*models.WebhookSubscription
		ok, err := mailbox.ReadSnapshot(snapshotPath, &snap)
		if err != nil {
			return nil, err
		}
		if ok {
			s.subs = snap
		}
	}
	return s, nil
}

func (s *Service) persistLocked() error {
	if s.path == "" {
		return nil
	}
	return mailbox.WriteSnapshot(s.path, s.subs)
}

// Subscribe registers a push endpoint for an inbox. The secret, when set,
// signs every delivery body.
func (s *Service) Subscribe(inbox, url, secret string) (*models.WebhookSubscription, error) {
	normalized := mailbox.NormalizePath(inbox)
	if normalized == "" {
		return nil, models.NewValidationError("inbox", "inbox is required")
	}
	if url == "" {
		return nil, models.NewValidationError("url", "url is required")
	}

	sub := &models.WebhookSubscription{
		ID:        uuid.NewString(),
		Inbox:     normalized,
		URL:       url,
		Secret:    secret,
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.ID] = sub
	if err := s.persistLocked(); err != nil {
		delete(s.subs, sub.ID)
		return nil, err
	}
	return sub, nil
}

// Unsubscribe removes a subscription.
func (s *Service) Unsubscribe(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[id]; !ok {
		return fmt.Errorf("webhook %s: %w", id, models.ErrNotFound)
	}
	delete(s.subs, id)
	return s.persistLocked()
}

// List returns the subscriptions for an inbox; with an empty inbox, all of
// them.
func (s *Service) List(inbox string) []*models.WebhookSubscription {
	normalized := mailbox.NormalizePath(inbox)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.WebhookSubscription
	for _, sub := range s.subs {
		if normalized == "" || sub.Inbox == normalized {
			copied := *sub
			out = append(out, &copied)
		}
	}
	return out
}

// event is the delivery body for subscriber fan-out.
type event struct {
	Event     string          `json:"event"`
	Inbox     string          `json:"inbox"`
	Message   *models.Message `json:"message"`
	Timestamp time.Time       `json:"timestamp"`
}

// Notify posts eventType to every subscriber of the message's inbox.
// Delivery is at-most-once: failures bump the subscription's failure
// counter and are logged, never returned. Callers run this off the request
// path.
func (s *Service) Notify(ctx context.Context, eventType, inbox string, msg *models.Message) {
	normalized := mailbox.NormalizePath(inbox)

	s.mu.Lock()
	var targets []*models.WebhookSubscription
	for _, sub := range s.subs {
		if sub.Inbox == normalized {
			targets = append(targets, sub)
		}
	}
	s.mu.Unlock()
	if len(targets) == 0 {
		return
	}

	body, err := json.Marshal(event{
		Event:     eventType,
		Inbox:     normalized,
		Message:   msg,
		Timestamp: s.now(),
	})
	if err != nil {
		slog.Error("Failed to encode webhook event", "event", eventType, "error", err)
		return
	}

	for _, sub := range targets {
		if err := s.deliver(ctx, sub.URL, sub.Secret, body); err != nil {
			s.recordFailure(sub.ID)
			slog.Warn("Webhook delivery failed",
				"event", eventType, "inbox", normalized, "url", sub.URL, "error", err)
		}
	}
}

func (s *Service) recordFailure(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return
	}
	sub.FailureCount++
	now := s.now()
	sub.LastFailureAt = &now
	if err := s.persistLocked(); err != nil {
		slog.Error("Failed to persist webhook failure count", "error", err)
	}
}

// autoWake is the concise new-message ping sent to an agent's own webhook.
type autoWake struct {
	Event     string    `json:"event"`
	Inbox     string    `json:"inbox"`
	From      string    `json:"from"`
	MessageID string    `json:"messageId"`
	Task      string    `json:"task"`
	Timestamp time.Time `json:"timestamp"`
}

// AutoWake pings the destination agent's registered webhook about a new
// message. Failures are logged only.
func (s *Service) AutoWake(ctx context.Context, agent *models.Agent, msg *models.Message) {
	if agent == nil || agent.WebhookURL == "" {
		return
	}
	body, err := json.Marshal(autoWake{
		Event:     "new_message",
		Inbox:     msg.To,
		From:      msg.From,
		MessageID: msg.ID,
		Task:      truncateRunes(msg.Task, 200),
		Timestamp: s.now(),
	})
	if err != nil {
		slog.Error("Failed to encode auto-wake ping", "agent_id", agent.ID, "error", err)
		return
	}
	if err := s.deliver(ctx, agent.WebhookURL, agent.WebhookSecret, body); err != nil {
		slog.Warn("Auto-wake delivery failed",
			"agent_id", agent.ID, "message_id", msg.ID, "error", err)
	}
}

// truncateRunes cuts s to at most n runes, never splitting a multi-byte
// character.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func (s *Service) deliver(ctx context.Context, url, secret string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, DeliveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(SignatureHeader, Signature(secret, body))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
	}
	return nil
}
