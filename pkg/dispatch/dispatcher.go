// Package dispatch pushes approved messages to autonomous agents. A poll
// loop scans the mailbox and POSTs each eligible message to the destination
// agent's task endpoint, then leaves completion to the receiver.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/quackhq/quack/pkg/mailbox"
	"github.com/quackhq/quack/pkg/models"
	"github.com/quackhq/quack/pkg/webhooks"
)

// DefaultPollInterval is how often the loop scans for approved messages.
const DefaultPollInterval = 5 * time.Second

// deliveryTimeout bounds each task POST.
const deliveryTimeout = 10 * time.Second

// AgentDirectory resolves a destination platform to its agent record.
type AgentDirectory interface {
	GetByPlatform(ctx context.Context, platform string) (*models.Agent, error)
}

// Dispatcher is the poll loop plus its in-flight dedupe set.
type Dispatcher struct {
	store    *mailbox.Store
	agents   AgentDirectory
	client   *http.Client
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	inFlight map[string]bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPollInterval overrides the scan interval.
func WithPollInterval(d time.Duration) Option {
	return func(p *Dispatcher) { p.interval = d }
}

// WithClient overrides the HTTP client, for tests.
func WithClient(c *http.Client) Option {
	return func(p *Dispatcher) { p.client = c }
}

// New creates a dispatcher over the mailbox store and agent directory.
func New(store *mailbox.Store, agents AgentDirectory, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:    store,
		agents:   agents,
		client:   &http.Client{Timeout: deliveryTimeout},
		interval: DefaultPollInterval,
		now:      time.Now,
		inFlight: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches the poll loop. Stop cancels it.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		slog.Info("Dispatcher started", "poll_interval", d.interval)
		for {
			select {
			case <-ctx.Done():
				slog.Info("Dispatcher stopped")
				return
			case <-ticker.C:
				d.poll(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for in-flight dispatches to drain.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
}

// poll dispatches every approved message whose destination is a webhook
// agent with a registered base URL.
func (d *Dispatcher) poll(ctx context.Context) {
	for _, m := range d.store.ApprovedMessages(ctx) {
		if err := d.dispatch(ctx, m); err != nil {
			slog.Warn("Dispatch failed", "message_id", m.ID, "to", m.To, "error", err)
		}
	}
}

// DispatchNow pushes a single approved message immediately, outside the
// poll cadence.
func (d *Dispatcher) DispatchNow(ctx context.Context, id string) error {
	m, err := d.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if m.Status != models.StatusApproved {
		return fmt.Errorf("message %s is %s: %w", id, m.Status, models.ErrInvalidTransition)
	}
	return d.dispatch(ctx, m)
}

// taskPayload is the body POSTed to the agent's task endpoint.
type taskPayload struct {
	MessageID string           `json:"messageId"`
	Task      string           `json:"task"`
	Context   string           `json:"context,omitempty"`
	From      string           `json:"from"`
	To        string           `json:"to"`
	Files     []models.FileRef `json:"files"`
	Timestamp time.Time        `json:"timestamp"`
}

func (d *Dispatcher) dispatch(ctx context.Context, m *models.Message) error {
	agent, err := d.agents.GetByPlatform(ctx, mailbox.RootPlatform(m.To))
	if err != nil || agent.NotifyMode != models.NotifyWebhook || agent.WebhookURL == "" {
		// Not a push destination; the agent polls or rides the bridge.
		return nil
	}

	if !d.claim(m.ID) {
		return nil
	}
	defer d.release(m.ID)

	if _, err := d.store.UpdateStatus(ctx, m.ID, models.StatusInProgress, "quack-dispatcher"); err != nil {
		return err
	}

	files := m.Files
	if files == nil {
		files = []models.FileRef{}
	}
	body, err := json.Marshal(taskPayload{
		MessageID: m.ID,
		Task:      m.Task,
		Context:   m.Context,
		From:      m.From,
		To:        m.To,
		Files:     files,
		Timestamp: d.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode task payload: %w", err)
	}

	url := strings.TrimRight(agent.WebhookURL, "/") + "/api/task"
	reqCtx, cancelReq := context.WithTimeout(ctx, deliveryTimeout)
	defer cancelReq()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build task request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if agent.WebhookSecret != "" {
		req.Header.Set(webhooks.SignatureHeader, webhooks.Signature(agent.WebhookSecret, body))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		// Status stays in_progress: the receiver owns recovery via
		// updateStatus once it notices the task.
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("task endpoint returned %d", resp.StatusCode)
	}
	slog.Info("Dispatched message", "message_id", m.ID, "to", m.To, "url", url)
	return nil
}

// claim adds id to the in-flight set; false means another poll owns it.
func (d *Dispatcher) claim(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inFlight[id] {
		return false
	}
	d.inFlight[id] = true
	return true
}

func (d *Dispatcher) release(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inFlight, id)
}
