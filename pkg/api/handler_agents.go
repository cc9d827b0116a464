package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/quackhq/quack/pkg/models"
)

// registerAgentHandler handles POST /api/agents.
func (s *Server) registerAgentHandler(c *echo.Context) error {
	var req AgentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	agent, err := s.Registry.Register(c.Request().Context(), req.toModel())
	if err != nil {
		return mapStoreError(err)
	}

	if s.Audit != nil {
		s.Audit.Record(c.Request().Context(), models.AuditAgentRegister, extractActor(c),
			"agent", agent.ID, map[string]any{"category": string(agent.Category)}, sourceAddr(c))
	}
	return c.JSON(http.StatusOK, agent)
}

// listAgentsHandler returns public agents; ?includePrivate=true lists all.
func (s *Server) listAgentsHandler(c *echo.Context) error {
	agents, err := s.Registry.List(c.Request().Context(), boolParam(c, "includePrivate"))
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"agents": agents,
		"count":  len(agents),
	})
}

func (s *Server) getAgentHandler(c *echo.Context) error {
	agent, err := s.Registry.Get(c.Request().Context(), c.Param("platform"), c.Param("name"))
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusOK, agent)
}

func (s *Server) updateAgentHandler(c *echo.Context) error {
	var req AgentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	// The path names the agent; the body may omit it.
	agent := req.toModel()
	agent.Platform = c.Param("platform")
	agent.Name = c.Param("name")

	updated, err := s.Registry.Update(c.Request().Context(), agent)
	if err != nil {
		return mapStoreError(err)
	}

	if s.Audit != nil {
		s.Audit.Record(c.Request().Context(), models.AuditAgentUpdate, extractActor(c),
			"agent", updated.ID, nil, sourceAddr(c))
	}
	return c.JSON(http.StatusOK, updated)
}

func (s *Server) deleteAgentHandler(c *echo.Context) error {
	platform, name := c.Param("platform"), c.Param("name")
	if err := s.Registry.Delete(c.Request().Context(), platform, name); err != nil {
		return mapStoreError(err)
	}

	if s.Audit != nil {
		s.Audit.Record(c.Request().Context(), models.AuditAgentDelete, extractActor(c),
			"agent", platform+"/"+name, nil, sourceAddr(c))
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

// pingAgentHandler bumps last-seen for the online heuristic.
func (s *Server) pingAgentHandler(c *echo.Context) error {
	agent, err := s.Registry.Ping(c.Request().Context(), c.Param("platform")+"/"+c.Param("name"))
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusOK, agent)
}
