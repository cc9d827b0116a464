package dispatch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quackhq/quack/pkg/mailbox"
	"github.com/quackhq/quack/pkg/models"
	"github.com/quackhq/quack/pkg/webhooks"
)

type stubDirectory struct {
	agents map[string]*models.Agent
}

func (d *stubDirectory) GetByPlatform(_ context.Context, platform string) (*models.Agent, error) {
	a, ok := d.agents[platform]
	if !ok {
		return nil, models.ErrNotFound
	}
	return a, nil
}

func newApprovedMessage(t *testing.T, store *mailbox.Store, to string) *models.Message {
	t.Helper()
	approved := false
	m, err := store.Send(context.Background(), mailbox.SendInput{
		To: to, From: "cursor/dev", Task: "run the test suite",
		Context:         "branch main",
		RequireApproval: &approved,
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusApproved, m.Status)
	return m
}

func TestDispatchNow_PostsTask(t *testing.T) {
	var gotPath string
	var gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotSig = r.Header.Get(webhooks.SignatureHeader)
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	store, err := mailbox.NewStore()
	require.NoError(t, err)
	dir := &stubDirectory{agents: map[string]*models.Agent{
		"replit": {
			ID: "replit/main", NotifyMode: models.NotifyWebhook,
			WebhookURL: srv.URL, WebhookSecret: "task-secret",
		},
	}}
	d := New(store, dir)

	m := newApprovedMessage(t, store, "replit/main")
	require.NoError(t, d.DispatchNow(context.Background(), m.ID))

	assert.Equal(t, "/api/task", gotPath)
	assert.Equal(t, webhooks.Signature("task-secret", gotBody), gotSig)

	var payload struct {
		MessageID string           `json:"messageId"`
		Task      string           `json:"task"`
		Context   string           `json:"context"`
		Files     []models.FileRef `json:"files"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &payload))
	assert.Equal(t, m.ID, payload.MessageID)
	assert.Equal(t, "run the test suite", payload.Task)
	assert.Equal(t, "branch main", payload.Context)
	assert.NotNil(t, payload.Files, "files is always present, possibly empty")

	got, err := store.Get(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, got.Status)
}

func TestDispatchNow_RequiresApprovedStatus(t *testing.T) {
	store, err := mailbox.NewStore()
	require.NoError(t, err)
	d := New(store, &stubDirectory{agents: map[string]*models.Agent{}})

	pending := true
	m, err := store.Send(context.Background(), mailbox.SendInput{
		To: "replit/main", From: "cursor/dev", Task: "held",
		RequireApproval: &pending,
	})
	require.NoError(t, err)

	assert.ErrorIs(t, d.DispatchNow(context.Background(), m.ID), models.ErrInvalidTransition)
	assert.ErrorIs(t, d.DispatchNow(context.Background(), "missing"), models.ErrNotFound)
}

func TestDispatch_SkipsNonWebhookAgents(t *testing.T) {
	store, err := mailbox.NewStore()
	require.NoError(t, err)
	dir := &stubDirectory{agents: map[string]*models.Agent{
		"claude": {ID: "claude/main", NotifyMode: models.NotifyPolling},
	}}
	d := New(store, dir)

	m := newApprovedMessage(t, store, "claude/main")
	require.NoError(t, d.DispatchNow(context.Background(), m.ID))

	// Untouched: the agent polls instead.
	got, err := store.Get(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, got.Status)
}

func TestDispatch_FailureKeepsInProgress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	store, err := mailbox.NewStore()
	require.NoError(t, err)
	dir := &stubDirectory{agents: map[string]*models.Agent{
		"replit": {ID: "replit/main", NotifyMode: models.NotifyWebhook, WebhookURL: srv.URL},
	}}
	d := New(store, dir)

	m := newApprovedMessage(t, store, "replit/main")
	assert.Error(t, d.DispatchNow(context.Background(), m.ID))

	// The receiver owns recovery; the dispatcher never reverts.
	got, err := store.Get(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, got.Status)
}

func TestPollLoop_DrainsApproved(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	store, err := mailbox.NewStore()
	require.NoError(t, err)
	dir := &stubDirectory{agents: map[string]*models.Agent{
		"replit": {ID: "replit/main", NotifyMode: models.NotifyWebhook, WebhookURL: srv.URL},
	}}
	d := New(store, dir, WithPollInterval(10*time.Millisecond))

	newApprovedMessage(t, store, "replit/main")
	newApprovedMessage(t, store, "replit/dev")

	d.Start(context.Background())
	defer d.Stop()

	require.Eventually(t, func() bool {
		return hits.Load() == 2
	}, 2*time.Second, 10*time.Millisecond)

	// Already in_progress; further polls must not redeliver.
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 2, hits.Load())
}
