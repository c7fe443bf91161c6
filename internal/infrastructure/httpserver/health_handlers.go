package httpserver

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/avatarctic/resilient-client/go/internal/infrastructure/health"
)

// Health check handler
func (s *Server) healthCheck(c echo.Context) error {
	report := health.Report(c.Request().Context(), s.healthCheckers, s.config.Service, s.config.Version, 2*time.Second, time.Now())
	code := http.StatusOK
	if report.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, report)
}
