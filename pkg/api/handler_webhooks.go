package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/quackhq/quack/pkg/models"
)

// subscribeWebhookHandler handles POST /api/webhooks.
func (s *Server) subscribeWebhookHandler(c *echo.Context) error {
	if s.Webhooks == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "webhooks not available")
	}

	var req SubscribeWebhookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	sub, err := s.Webhooks.Subscribe(req.Inbox, req.URL, req.Secret)
	if err != nil {
		return mapStoreError(err)
	}

	if s.Audit != nil {
		s.Audit.Record(c.Request().Context(), models.AuditWebhookCreate, extractActor(c),
			"webhook", sub.ID, map[string]any{"inbox": sub.Inbox, "url": sub.URL}, sourceAddr(c))
	}
	return c.JSON(http.StatusOK, sub)
}

// listWebhooksHandler returns all subscriptions, or one inbox's with ?inbox=.
func (s *Server) listWebhooksHandler(c *echo.Context) error {
	if s.Webhooks == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "webhooks not available")
	}

	subs := s.Webhooks.List(c.QueryParam("inbox"))
	return c.JSON(http.StatusOK, map[string]any{
		"webhooks": subs,
		"count":    len(subs),
	})
}

func (s *Server) unsubscribeWebhookHandler(c *echo.Context) error {
	if s.Webhooks == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "webhooks not available")
	}

	id := c.Param("id")
	if err := s.Webhooks.Unsubscribe(id); err != nil {
		return mapStoreError(err)
	}

	if s.Audit != nil {
		s.Audit.Record(c.Request().Context(), models.AuditWebhookDelete, extractActor(c),
			"webhook", id, nil, sourceAddr(c))
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}
