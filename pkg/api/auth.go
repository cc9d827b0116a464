package api

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/quackhq/quack/pkg/models"
)

const apiKeyContextKey = "quack_api_key"

// requireAPIKey authenticates the request with an API key carried as
// `Authorization: Bearer <key>` or `?token=<key>`. GET and HEAD need the
// read permission, everything else write. The dev-bypass flag grants a
// synthetic admin key to every request.
func (s *Server) requireAPIKey() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			if s.AuthDevBypass {
				c.Set(apiKeyContextKey, &models.APIKey{
					ID:          "dev-bypass",
					Owner:       "dev",
					Permissions: []string{models.PermAdmin},
				})
				return next(c)
			}
			if s.Keys == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "API keys not configured")
			}

			token := bearerToken(c)
			if token == "" {
				token = c.QueryParam("token")
			}
			if token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing API key")
			}

			key, err := s.Keys.Verify(c.Request().Context(), token)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid API key")
			}

			perm := models.PermWrite
			switch c.Request().Method {
			case http.MethodGet, http.MethodHead:
				perm = models.PermRead
			}
			if !key.HasPermission(perm) {
				return echo.NewHTTPError(http.StatusForbidden, "insufficient permissions")
			}

			c.Set(apiKeyContextKey, key)
			return next(c)
		}
	}
}

func bearerToken(c *echo.Context) string {
	auth := c.Request().Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// requestKey returns the authenticated key, or nil.
func requestKey(c *echo.Context) *models.APIKey {
	key, _ := c.Get(apiKeyContextKey).(*models.APIKey)
	return key
}

// requireAdmin guards key-management handlers.
func requireAdmin(c *echo.Context) error {
	key := requestKey(c)
	if key == nil || !key.HasPermission(models.PermAdmin) {
		return echo.NewHTTPError(http.StatusForbidden, "admin permission required")
	}
	return nil
}

// extractActor resolves who performed the request for audit purposes.
// Priority: X-Quack-Actor header > key owner > "api-client".
func extractActor(c *echo.Context) string {
	if actor := c.Request().Header.Get("X-Quack-Actor"); actor != "" {
		return actor
	}
	if key := requestKey(c); key != nil && key.Owner != "" {
		return key.Owner
	}
	return "api-client"
}

func sourceAddr(c *echo.Context) string {
	return c.Request().RemoteAddr
}
