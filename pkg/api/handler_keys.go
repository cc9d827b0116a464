package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/quackhq/quack/pkg/models"
)

// createKeyHandler handles POST /api/keys. Admin only; the plaintext key
// appears in this response and nowhere else.
func (s *Server) createKeyHandler(c *echo.Context) error {
	if err := requireAdmin(c); err != nil {
		return err
	}

	var req CreateKeyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Permissions) == 0 {
		req.Permissions = []string{models.PermRead, models.PermWrite}
	}

	key, plaintext, err := s.Keys.Create(c.Request().Context(), req.Owner, req.Permissions)
	if err != nil {
		return mapStoreError(err)
	}

	if s.Audit != nil {
		s.Audit.Record(c.Request().Context(), models.AuditKeyCreate, extractActor(c),
			"api_key", key.ID, map[string]any{"owner": key.Owner, "permissions": key.Permissions},
			sourceAddr(c))
	}
	return c.JSON(http.StatusOK, &KeyCreateResponse{Key: plaintext, APIKey: key})
}

func (s *Server) listKeysHandler(c *echo.Context) error {
	if err := requireAdmin(c); err != nil {
		return err
	}

	list, err := s.Keys.List(c.Request().Context())
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"keys":  list,
		"count": len(list),
	})
}

func (s *Server) revokeKeyHandler(c *echo.Context) error {
	if err := requireAdmin(c); err != nil {
		return err
	}

	id := c.Param("id")
	if err := s.Keys.Revoke(c.Request().Context(), id); err != nil {
		return mapStoreError(err)
	}

	if s.Audit != nil {
		s.Audit.Record(c.Request().Context(), models.AuditKeyRevoke, extractActor(c),
			"api_key", id, nil, sourceAddr(c))
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}
