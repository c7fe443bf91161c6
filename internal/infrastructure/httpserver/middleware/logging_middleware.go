package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type LoggingMiddleware struct {
	logger *logrus.Logger
}

func NewLoggingMiddleware(logger *logrus.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{logger: logger}
}

// RequestLogging logs each diagnostics request at debug level once it completes.
func (m *LoggingMiddleware) RequestLogging() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if m.logger != nil {
				entry := m.logger.WithFields(logrus.Fields{
					"method":     c.Request().Method,
					"path":       routePath(c),
					"status":     responseStatus(c, err),
					"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
					"duration":   time.Since(start).String(),
				})
				if err != nil {
					entry = entry.WithError(err)
				}
				entry.Debug("diagnostics request")
			}
			return err
		}
	}
}
