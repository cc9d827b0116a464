package mcpserver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quackhq/quack/pkg/mailbox"
	"github.com/quackhq/quack/pkg/models"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := mailbox.NewStore()
	require.NoError(t, err)
	return New(store, "test")
}

func TestSendCheckReceiveComplete(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, sent, err := s.send(ctx, nil, sendInput{
		To: "replit/main", From: "cursor/dev", Task: "deploy the branch",
	})
	require.NoError(t, err)
	assert.Equal(t, string(models.StatusApproved), sent.Status)

	_, checked, err := s.check(ctx, nil, checkInput{Inbox: "replit/main"})
	require.NoError(t, err)
	require.Equal(t, 1, checked.Count)
	assert.Equal(t, sent.MessageID, checked.Messages[0].ID)

	_, received, err := s.receive(ctx, nil, receiveInput{Inbox: "replit/main"})
	require.NoError(t, err)
	require.NotNil(t, received.Message)
	assert.Equal(t, models.StatusRead, received.Message.Status)

	_, completed, err := s.complete(ctx, nil, completeInput{
		MessageID: sent.MessageID, Actor: "replit/main",
	})
	require.NoError(t, err)
	assert.Equal(t, string(models.StatusCompleted), completed.Status)

	// Nothing actionable left.
	_, received, err = s.receive(ctx, nil, receiveInput{Inbox: "replit/main"})
	require.NoError(t, err)
	assert.True(t, received.Empty)
}

func TestReply_ResolvesOriginalSender(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, sent, err := s.send(ctx, nil, sendInput{
		To: "replit/main", From: "cursor/dev", Task: "review this",
	})
	require.NoError(t, err)

	_, reply, err := s.reply(ctx, nil, replyInput{
		MessageID: sent.MessageID, From: "replit/main", Task: "looks good",
	})
	require.NoError(t, err)
	assert.Equal(t, sent.ThreadID, reply.ThreadID, "reply joins the original thread")

	msg, err := s.store.Get(ctx, reply.MessageID)
	require.NoError(t, err)
	assert.Equal(t, "cursor/dev", msg.To)
	assert.Equal(t, sent.MessageID, msg.ReplyTo)

	_, _, err = s.reply(ctx, nil, replyInput{MessageID: "missing", From: "a/b", Task: "x"})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSend_ValidationSurfaces(t *testing.T) {
	s := newTestServer(t)

	_, _, err := s.send(context.Background(), nil, sendInput{
		To: "replit/main", From: "cursor/dev",
	})
	assert.True(t, models.IsValidationError(err))
}

func TestHandlerIsMountable(t *testing.T) {
	s := newTestServer(t)
	assert.NotNil(t, s.Handler())
}

type sinkNotifier struct{ events chan string }

func (n *sinkNotifier) Notify(_ context.Context, eventType, inbox string, _ *models.Message) {
	n.events <- eventType + " " + inbox
}

func waitEvent(t *testing.T, ch chan string) string {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fan-out event")
		return ""
	}
}

func TestSend_FansOut(t *testing.T) {
	sink := &sinkNotifier{events: make(chan string, 4)}
	store, err := mailbox.NewStore(mailbox.WithNotifier(sink))
	require.NoError(t, err)
	s := New(store, "test")
	ctx := context.Background()

	_, sent, err := s.send(ctx, nil, sendInput{
		To: "replit/main", From: "cursor/dev", Task: "deploy the branch",
	})
	require.NoError(t, err)
	assert.Equal(t, "message.received replit/main", waitEvent(t, sink.events))

	_, reply, err := s.reply(ctx, nil, replyInput{
		MessageID: sent.MessageID, From: "replit/main", Task: "done",
	})
	require.NoError(t, err)
	require.NotEmpty(t, reply.MessageID)
	assert.Equal(t, "message.received cursor/dev", waitEvent(t, sink.events))
}

func TestCheck_AutoApprovePromotionFansOut(t *testing.T) {
	sink := &sinkNotifier{events: make(chan string, 4)}
	store, err := mailbox.NewStore(mailbox.WithNotifier(sink))
	require.NoError(t, err)
	s := New(store, "test")
	ctx := context.Background()

	hold := true
	msg, err := store.Send(ctx, mailbox.SendInput{
		To: "replit/main", From: "cursor/dev", Task: "held until checked",
		RequireApproval: &hold,
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, msg.Status)
	assert.Equal(t, "message.received replit/main", waitEvent(t, sink.events))

	_, checked, err := s.check(ctx, nil, checkInput{Inbox: "replit/main"})
	require.NoError(t, err)
	require.Equal(t, 1, checked.Count)
	assert.Equal(t, "message.approved replit/main", waitEvent(t, sink.events))
}
