package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/quackhq/quack/pkg/mailbox"
	"github.com/quackhq/quack/pkg/models"
	"github.com/quackhq/quack/pkg/webhooks"
)

// sendHandler handles POST /api/send.
func (s *Server) sendHandler(c *echo.Context) error {
	var req SendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	msg, err := s.Store.Send(c.Request().Context(), mailbox.SendInput{
		To:                  req.To,
		From:                req.From,
		Task:                req.Task,
		Context:             req.Context,
		Files:               req.Files,
		Project:             req.Project,
		ProjectName:         req.ProjectName,
		ConversationExcerpt: req.ConversationExcerpt,
		Priority:            req.Priority,
		Tags:                req.Tags,
		Routing:             req.Routing,
		Destination:         req.Destination,
		ReplyTo:             req.ReplyTo,
		RequireApproval:     req.RequireApproval,
		Actor:               extractActor(c),
		SourceAddr:          sourceAddr(c),
	})
	if err != nil {
		return mapStoreError(err)
	}

	s.afterSend(msg)

	return c.JSON(http.StatusOK, &SendResponse{
		Success:   true,
		MessageID: msg.ID,
		Message:   msg,
	})
}

// afterSend runs the non-blocking consequences of an accepted message:
// conversation tracking, sender-activity bump, and an immediate dispatch
// attempt for already-approved webhook traffic. Subscriber fan-out is the
// store's job, not a handler concern.
func (s *Server) afterSend(msg *models.Message) {
	if s.Sessions != nil {
		s.Sessions.Track(msg)
	}
	if s.Registry != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.Registry.UpdateLastActivity(ctx, mailbox.RootPlatform(msg.From)); err != nil {
				slog.Debug("Failed to bump sender activity", "from", msg.From, "error", err)
			}
		}()
	}
	if s.Dispatcher != nil && msg.Status == models.StatusApproved {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := s.Dispatcher.DispatchNow(ctx, msg.ID); err != nil {
				slog.Debug("Immediate dispatch skipped", "message_id", msg.ID, "error", err)
			}
		}()
	}
}

// inboxHandler handles GET /api/inbox/<1-3 segments>.
func (s *Server) inboxHandler(c *echo.Context) error {
	segments := make([]string, 0, 3)
	for _, name := range []string{"seg1", "seg2", "seg3"} {
		if v := c.Param(name); v != "" {
			segments = append(segments, v)
		}
	}
	path := strings.Join(segments, "/")

	includeRead := boolParam(c, "includeRead")
	autoApprove := boolParam(c, "autoApprove")

	msgs, err := s.Store.CheckInbox(c.Request().Context(), path, includeRead, autoApprove)
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusOK, &InboxResponse{
		Inbox:    mailbox.NormalizePath(path),
		Messages: msgs,
		Count:    len(msgs),
	})
}

// boolParam reads a query flag: a bare name counts as true.
func boolParam(c *echo.Context, name string) bool {
	q := c.Request().URL.Query()
	if !q.Has(name) {
		return false
	}
	v := q.Get(name)
	return v == "" || v == "true" || v == "1"
}

func (s *Server) getMessageHandler(c *echo.Context) error {
	msg, err := s.Store.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusOK, msg)
}

// receiveHandler marks a message read.
func (s *Server) receiveHandler(c *echo.Context) error {
	msg, err := s.Store.MarkRead(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusOK, msg)
}

func (s *Server) completeHandler(c *echo.Context) error {
	msg, err := s.Store.Complete(c.Request().Context(), c.Param("id"), extractActor(c))
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusOK, msg)
}

// approveHandler releases a held message. Approval wakes the destination:
// subscribers get a message.approved event from the store, the destination
// agent gets an Auto-Wake POST when it registered a webhook, and a ping
// lands in the destination inbox so polling agents notice.
func (s *Server) approveHandler(c *echo.Context) error {
	ctx := c.Request().Context()
	msg, err := s.Store.Approve(ctx, c.Param("id"), extractActor(c))
	if err != nil {
		return mapStoreError(err)
	}

	if s.Webhooks != nil && s.Registry != nil {
		go func() {
			wakeCtx, cancel := context.WithTimeout(context.Background(), webhooks.DeliveryTimeout)
			defer cancel()
			agent, err := s.Registry.GetByPlatform(wakeCtx, mailbox.RootPlatform(msg.To))
			if err == nil && agent.WebhookURL != "" {
				s.Webhooks.AutoWake(wakeCtx, agent, msg)
			}
		}()
	}

	ping := fmt.Sprintf("🔔 PING: message from %s approved — check your inbox", msg.From)
	if _, err := s.Store.AppendPing(ctx, msg.To, "quack-relay", ping); err != nil {
		slog.Error("Failed to append approval ping", "message_id", msg.ID, "error", err)
	}

	return c.JSON(http.StatusOK, msg)
}

func (s *Server) updateStatusHandler(c *echo.Context) error {
	var req UpdateStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Status == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "status field is required")
	}

	msg, err := s.Store.UpdateStatus(c.Request().Context(),
		c.Param("id"), models.MessageStatus(req.Status), extractActor(c))
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusOK, msg)
}

func (s *Server) deleteMessageHandler(c *echo.Context) error {
	if err := s.Store.Delete(c.Request().Context(), c.Param("id"), extractActor(c)); err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) listThreadsHandler(c *echo.Context) error {
	threads := s.Store.Threads(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]any{
		"threads": threads,
		"count":   len(threads),
	})
}

func (s *Server) getThreadHandler(c *echo.Context) error {
	id := c.Param("id")
	msgs, err := s.Store.Thread(c.Request().Context(), id)
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"threadId": id,
		"messages": msgs,
		"count":    len(msgs),
	})
}

func (s *Server) statsHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.Store.Stats(c.Request().Context()))
}

// listSessionsHandler exposes the conversation session registry.
func (s *Server) listSessionsHandler(c *echo.Context) error {
	if s.Sessions == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "session registry not available")
	}
	list := s.Sessions.List()
	return c.JSON(http.StatusOK, map[string]any{
		"sessions": list,
		"count":    len(list),
	})
}
