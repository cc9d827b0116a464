package api

import (
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/quackhq/quack/pkg/models"
)

// queryAuditHandler handles GET /api/audit with the standard filter set.
func (s *Server) queryAuditHandler(c *echo.Context) error {
	if s.Audit == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "audit not available")
	}

	q := models.AuditQuery{
		Action:     c.QueryParam("action"),
		Actor:      c.QueryParam("actor"),
		TargetType: c.QueryParam("targetType"),
		TargetID:   c.QueryParam("targetId"),
	}

	var err error
	if q.Since, err = timeParam(c, "since"); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid since: must be RFC3339")
	}
	if q.Until, err = timeParam(c, "until"); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid until: must be RFC3339")
	}
	if q.Limit, err = intParam(c, "limit"); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	if q.Offset, err = intParam(c, "offset"); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid offset")
	}

	entries, err := s.Audit.Query(c.Request().Context(), q)
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

func (s *Server) auditStatsHandler(c *echo.Context) error {
	if s.Audit == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "audit not available")
	}

	stats, err := s.Audit.Stats(c.Request().Context())
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

// listArchiveHandler handles GET /api/archive?limit&offset.
func (s *Server) listArchiveHandler(c *echo.Context) error {
	if s.Archive == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "archive not available")
	}

	limit, err := intParam(c, "limit")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	offset, err := intParam(c, "offset")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid offset")
	}

	threads, err := s.Archive.List(c.Request().Context(), limit, offset)
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"threads": threads,
		"count":   len(threads),
	})
}

// getArchiveHandler returns the latest archived copy of a thread.
func (s *Server) getArchiveHandler(c *echo.Context) error {
	if s.Archive == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "archive not available")
	}

	thread, err := s.Archive.GetThread(c.Request().Context(), c.Param("threadId"))
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusOK, thread)
}

func timeParam(c *echo.Context, name string) (*time.Time, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func intParam(c *echo.Context, name string) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errInvalidInt
	}
	return n, nil
}

var errInvalidInt = &models.ValidationError{Field: "query", Message: "must be a non-negative integer"}
