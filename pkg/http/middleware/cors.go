package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"
)

// CORSConfig lists what browsers may do cross-origin. An empty or "*"
// AllowOrigins admits every origin.
type CORSConfig struct {
	AllowOrigins []string
	AllowMethods []string
	AllowHeaders []string
	// ExposeHeaders are readable by scripts, e.g. X-Cache.
	ExposeHeaders []string
}

func (cfg CORSConfig) allowed(origin string) bool {
	return len(cfg.AllowOrigins) == 0 ||
		slices.Contains(cfg.AllowOrigins, "*") ||
		slices.Contains(cfg.AllowOrigins, origin)
}

// CORS answers preflight requests and decorates responses for allowed
// origins. Requests from other origins pass through undecorated.
func CORS(cfg CORSConfig) echo.MiddlewareFunc {
	methods := strings.Join(cfg.AllowMethods, ", ")
	headers := strings.Join(cfg.AllowHeaders, ", ")
	expose := strings.Join(cfg.ExposeHeaders, ", ")

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			origin := c.Request().Header.Get(echo.HeaderOrigin)
			if origin == "" || !cfg.allowed(origin) {
				return next(c)
			}

			h := c.Response().Header()
			h.Add(echo.HeaderVary, echo.HeaderOrigin)
			h.Set(echo.HeaderAccessControlAllowOrigin, origin)
			if expose != "" {
				h.Set(echo.HeaderAccessControlExposeHeaders, expose)
			}

			if c.Request().Method != http.MethodOptions {
				return next(c)
			}
			if methods != "" {
				h.Set(echo.HeaderAccessControlAllowMethods, methods)
			}
			if headers != "" {
				h.Set(echo.HeaderAccessControlAllowHeaders, headers)
			}
			return c.NoContent(http.StatusNoContent)
		}
	}
}
