package api

import (
	"net/http"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"

	"github.com/quackhq/quack/pkg/bridge"
	"github.com/quackhq/quack/pkg/models"
)

// bridgeConnectHandler upgrades HTTP connections to WebSocket and delegates
// to the ConnectionManager. Authentication happens in-band with the HMAC
// token scheme, not with API keys.
func (s *Server) bridgeConnectHandler(c *echo.Context) error {
	if s.Bridge == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "bridge not available")
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}

	// HandleConnection blocks until the WebSocket closes.
	s.Bridge.HandleConnection(c.Request().Context(), conn)
	return nil
}

// bridgeRelayHandler handles GET /bridge/relay, the fire-and-forget path
// for clients that can only issue plain GETs.
func (s *Server) bridgeRelayHandler(c *echo.Context) error {
	if s.Bridge == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "bridge not available")
	}

	msg, err := s.Bridge.Relay(c.Request().Context(), bridge.RelayInput{
		From:       c.QueryParam("from"),
		To:         c.QueryParam("to"),
		Task:       c.QueryParam("task"),
		Context:    c.QueryParam("context"),
		Project:    c.QueryParam("project"),
		Priority:   models.Priority(c.QueryParam("priority")),
		ReplyTo:    c.QueryParam("replyTo"),
		SourceAddr: sourceAddr(c),
	})
	if err != nil {
		return mapStoreError(err)
	}

	s.afterSend(msg)

	return c.JSON(http.StatusOK, &RelayResponse{
		Success:   true,
		MessageID: msg.ID,
		Status:    string(msg.Status),
	})
}

// bridgeSendHandler is the POST twin of the relay endpoint.
func (s *Server) bridgeSendHandler(c *echo.Context) error {
	if s.Bridge == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "bridge not available")
	}

	var req BridgeSendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	msg, err := s.Bridge.Relay(c.Request().Context(), bridge.RelayInput{
		From:       req.From,
		To:         req.To,
		Task:       req.Task,
		Context:    req.Context,
		Project:    req.Project,
		Priority:   models.Priority(req.Priority),
		ReplyTo:    req.ReplyTo,
		SourceAddr: sourceAddr(c),
	})
	if err != nil {
		return mapStoreError(err)
	}

	s.afterSend(msg)

	return c.JSON(http.StatusOK, &RelayResponse{
		Success:   true,
		MessageID: msg.ID,
		Status:    string(msg.Status),
	})
}

// bridgeAgentsHandler lists bridge-known agents with optional filters.
func (s *Server) bridgeAgentsHandler(c *echo.Context) error {
	if s.Bridge == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "bridge not available")
	}

	filter := &bridge.AgentFilter{
		Platform:   c.QueryParam("platform"),
		Capability: c.QueryParam("capability"),
	}
	if c.Request().URL.Query().Has("online") {
		online := boolParam(c, "online")
		filter.Online = &online
	}

	agents := s.Bridge.AgentList(filter)
	return c.JSON(http.StatusOK, map[string]any{
		"agents": agents,
		"count":  len(agents),
	})
}

func (s *Server) bridgeStatusHandler(c *echo.Context) error {
	if s.Bridge == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "bridge not available")
	}

	return c.JSON(http.StatusOK, &BridgeStatusResponse{
		ActiveConnections: s.Bridge.ActiveConnections(),
		ProtocolVersion:   bridge.ProtocolVersion,
	})
}
