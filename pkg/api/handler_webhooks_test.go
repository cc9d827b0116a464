package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quackhq/quack/pkg/models"
)

func TestWebhookSubscriptionLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/webhooks", SubscribeWebhookRequest{
		Inbox: "replit/main", URL: "http://example.com/hook",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sub := decode[models.WebhookSubscription](t, rec)
	require.NotEmpty(t, sub.ID)

	rec = doJSON(t, s, http.MethodPost, "/api/webhooks", SubscribeWebhookRequest{
		Inbox: "replit/main",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing url")

	rec = doJSON(t, s, http.MethodGet, "/api/webhooks?inbox=replit/main", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodDelete, "/api/webhooks/"+sub.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, s, http.MethodDelete, "/api/webhooks/"+sub.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// A subscriber of the destination inbox hears about the message when it
// arrives and again when it clears approval.
func TestWebhookSubscriberGetsSendAndApprovalEvents(t *testing.T) {
	s := newTestServer(t)

	events := make(chan string, 8)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev struct {
			Event string `json:"event"`
			Inbox string `json:"inbox"`
		}
		if err := json.NewDecoder(r.Body).Decode(&ev); err == nil {
			events <- ev.Event
		}
	}))
	defer hook.Close()

	rec := doJSON(t, s, http.MethodPost, "/api/webhooks", SubscribeWebhookRequest{
		Inbox: "claude/web", URL: hook.URL,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, s, http.MethodPost, "/api/send", SendRequest{
		To: "claude/web", From: "replit/dev", Task: "needs a human",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sent := decode[SendResponse](t, rec)
	require.Equal(t, models.StatusPending, sent.Message.Status)

	waitForEvent(t, events, "message.received")

	rec = doJSON(t, s, http.MethodPost, "/api/approve/"+sent.MessageID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	waitForEvent(t, events, "message.approved")
}

func waitForEvent(t *testing.T, ch chan string, want string) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", want)
		}
	}
}
