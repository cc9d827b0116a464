package registry

import (
	"context"
	"errors"
	"log/slog"

	"github.com/quackhq/quack/pkg/mailbox"
	"github.com/quackhq/quack/pkg/models"
)

// ShouldAutoApprove applies the routing policy to a (from, to) pair:
//
//   - Neither root platform registered → approve.
//   - Destination requires approval → hold.
//   - Sender is conversational → hold.
//   - Otherwise → approve.
//
// Conversational destinations therefore default to pending while fully
// autonomous pairs flow straight through. Registry lookup failures fall
// back to the unregistered branch so a degraded database never blocks sends.
func (s *Service) ShouldAutoApprove(ctx context.Context, from, to string) bool {
	sender := s.lookupRoot(ctx, from)
	dest := s.lookupRoot(ctx, to)

	if sender == nil && dest == nil {
		return true
	}
	if dest != nil && dest.RequiresApproval {
		return false
	}
	if sender != nil && sender.Category == models.CategoryConversational {
		return false
	}
	return true
}

func (s *Service) lookupRoot(ctx context.Context, id string) *models.Agent {
	root := mailbox.RootPlatform(id)
	if root == "" {
		return nil
	}
	a, err := s.GetByPlatform(ctx, root)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			slog.Warn("Registry lookup failed during routing", "platform", root, "error", err)
		}
		return nil
	}
	return a
}
