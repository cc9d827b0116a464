package bridge

import (
	"context"

	"github.com/quackhq/quack/pkg/mailbox"
	"github.com/quackhq/quack/pkg/models"
)

// RelayInput is the GET-only relay form: a send that is approved on the
// spot, for clients that cannot hold a socket or POST JSON.
type RelayInput struct {
	From     string
	To       string
	Task     string
	Context  string
	Project  string
	Priority models.Priority
	ReplyTo  string

	SourceAddr string
}

// Relay validates, sends, and immediately approves a message on behalf of
// from. Audited with source bridge-relay.
func (m *ConnectionManager) Relay(ctx context.Context, in RelayInput) (*models.Message, error) {
	if in.From == "" {
		return nil, models.NewValidationError("from", "from is required")
	}
	if in.Task == "" {
		return nil, models.NewValidationError("task", "task is required")
	}

	to := m.coalesce(ctx, mailbox.NormalizePath(in.To))
	hold := true
	msg, err := m.mailbox.Send(ctx, mailbox.SendInput{
		To: to, From: in.From, Task: in.Task, Context: in.Context,
		Project:         in.Project,
		Priority:        in.Priority,
		ReplyTo:         in.ReplyTo,
		Tags:            []string{"bridge", "relay"},
		ImpliedProject:  true,
		RequireApproval: &hold,
		Actor:           in.From,
		SourceAddr:      in.SourceAddr,
	})
	if err != nil {
		return nil, err
	}
	return m.mailbox.ApproveFrom(ctx, msg.ID, in.From, "bridge-relay")
}
