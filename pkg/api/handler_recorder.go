package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/quackhq/quack/pkg/models"
	"github.com/quackhq/quack/pkg/recorder"
)

// journalHandler saves one flight-recorder entry. The convenience routes
// (/thought, /error, /checkpoint) force the entry type; /journal takes it
// from the body.
func (s *Server) journalHandler(forcedType string) echo.HandlerFunc {
	return func(c *echo.Context) error {
		if s.Recorder == nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "flight recorder not available")
		}

		var req JournalRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}

		entryType := req.Type
		if forcedType != "" {
			entryType = forcedType
		}

		entry, err := s.Recorder.SaveEntry(c.Request().Context(), &models.JournalEntry{
			AgentID:     req.AgentID,
			SessionID:   req.SessionID,
			Type:        models.EntryType(entryType),
			Content:     req.Content,
			Snapshot:    req.Snapshot,
			TargetAgent: req.TargetAgent,
			Tags:        req.Tags,
		})
		if err != nil {
			return mapStoreError(err)
		}
		return c.JSON(http.StatusOK, entry)
	}
}

// sessionContextHandler returns the recent entries of one recorder session
// plus the synthesized summary.
func (s *Server) sessionContextHandler(c *echo.Context) error {
	if s.Recorder == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "flight recorder not available")
	}

	limit, err := intParam(c, "limit")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
	}

	entries, err := s.Recorder.GetContextForSession(c.Request().Context(), c.Param("sessionId"), limit)
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"sessionId": c.Param("sessionId"),
		"entries":   entries,
		"count":     len(entries),
		"summary":   recorder.Summarize(entries),
	})
}

func (s *Server) agentContextHandler(c *echo.Context) error {
	if s.Recorder == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "flight recorder not available")
	}

	limit, err := intParam(c, "limit")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
	}

	agentID := c.Param("platform") + "/" + c.Param("name")
	entries, err := s.Recorder.GetContextForAgent(c.Request().Context(), agentID, limit)
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"agentId": agentID,
		"entries": entries,
		"count":   len(entries),
		"summary": recorder.Summarize(entries),
	})
}

// scriptHandler returns the resumption prompt for an agent. With
// ?include_context the synthesized summary rides along.
func (s *Server) scriptHandler(c *echo.Context) error {
	if s.Recorder == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "flight recorder not available")
	}

	agentID := c.Param("platform") + "/" + c.Param("name")
	resp := &ScriptResponse{AgentID: agentID}

	if boolParam(c, "include_context") {
		entries, err := s.Recorder.GetContextForAgent(c.Request().Context(), agentID, 0)
		if err != nil {
			return mapStoreError(err)
		}
		resp.Summary = recorder.Summarize(entries)
	}

	script, err := s.Recorder.GenerateScript(c.Request().Context(), agentID, resp.Summary)
	if err != nil {
		return mapStoreError(err)
	}
	resp.Script = script
	return c.JSON(http.StatusOK, resp)
}

// signinHandler rotates the agent onto a fresh recorder session and hands
// back the resumption prompt built from whatever history remains.
func (s *Server) signinHandler(c *echo.Context) error {
	if s.Recorder == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "flight recorder not available")
	}

	var req AgentSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.AgentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent_id field is required")
	}

	script, err := s.Recorder.GenerateScript(c.Request().Context(), req.AgentID, nil)
	if err != nil {
		return mapStoreError(err)
	}

	session, err := s.Recorder.StartNewSession(c.Request().Context(), req.AgentID)
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusOK, &SigninResponse{Session: session, Script: script})
}

// openSessionHandler resolves the active session, honoring an explicit id.
func (s *Server) openSessionHandler(c *echo.Context) error {
	if s.Recorder == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "flight recorder not available")
	}

	var req AgentSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.AgentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent_id field is required")
	}

	session, err := s.Recorder.GetOrCreateSession(c.Request().Context(), req.AgentID, req.SessionID)
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusOK, session)
}

func (s *Server) newSessionHandler(c *echo.Context) error {
	if s.Recorder == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "flight recorder not available")
	}

	var req AgentSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.AgentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent_id field is required")
	}

	session, err := s.Recorder.StartNewSession(c.Request().Context(), req.AgentID)
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusOK, session)
}

// closeSessionHandler closes one session by id, or all of an agent's.
func (s *Server) closeSessionHandler(c *echo.Context) error {
	if s.Recorder == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "flight recorder not available")
	}

	var req AgentSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	switch {
	case req.SessionID != "":
		if err := s.Recorder.CloseSession(ctx, req.SessionID); err != nil {
			return mapStoreError(err)
		}
	case req.AgentID != "":
		if err := s.Recorder.CloseAgentSessions(ctx, req.AgentID); err != nil {
			return mapStoreError(err)
		}
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "session_id or agent_id is required")
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}
