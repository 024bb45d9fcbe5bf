package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	applogger "SalesCast/pkg/logger"
)

// RequestLogging logs HTTP requests. 5xx responses log at error level.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	if l == nil {
		l = applogger.Nop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			fields := []applogger.Field{
				applogger.String("method", req.Method),
				applogger.String("uri", req.RequestURI),
				applogger.String("remote", c.RealIP()),
				applogger.Int("status", c.Response().Status),
				applogger.Duration("latency_ms", time.Since(start)),
			}
			if c.Response().Status >= 500 {
				if err != nil {
					fields = append(fields, applogger.Error(err))
				}
				l.Error("http request", fields...)
			} else {
				l.Info("http request", fields...)
			}
			return nil
		}
	}
}
