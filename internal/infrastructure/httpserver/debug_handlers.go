package httpserver

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/avatarctic/resilient-client/go/internal/infrastructure/eventbus"
)

// listEvents returns the event history, oldest first. ?type= filters by
// event type name and ?limit= keeps the newest n records.
func (s *Server) listEvents(c echo.Context) error {
	if s.events == nil {
		return echo.NewHTTPError(http.StatusNotFound, "event history not available")
	}
	records := s.events.History()

	if eventType := c.QueryParam("type"); eventType != "" {
		filtered := make([]eventbus.Record, 0, len(records))
		for _, r := range records {
			if r.EventType == eventType {
				filtered = append(filtered, r)
			}
		}
		records = filtered
	}
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		if limit < len(records) {
			records = records[len(records)-limit:]
		}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"count":  len(records),
		"events": records,
	})
}

func (s *Server) clearEvents(c echo.Context) error {
	if s.events == nil {
		return echo.NewHTTPError(http.StatusNotFound, "event history not available")
	}
	s.events.ClearHistory()
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) cacheStats(c echo.Context) error {
	if s.cache == nil {
		return echo.NewHTTPError(http.StatusNotFound, "cache not available")
	}
	return c.JSON(http.StatusOK, s.cache.Stats())
}

func (s *Server) clearCache(c echo.Context) error {
	if s.cache == nil {
		return echo.NewHTTPError(http.StatusNotFound, "cache not available")
	}
	s.cache.ClearAll()
	if s.logger != nil {
		s.logger.Info("cache cleared from diagnostics endpoint")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) sessionStatus(c echo.Context) error {
	if s.session == nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not available")
	}
	return c.JSON(http.StatusOK, s.session.Status())
}

func (s *Server) resumeSession(c echo.Context) error {
	if s.session == nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not available")
	}
	s.session.Resume()
	return c.JSON(http.StatusOK, s.session.Status())
}

// listLocalKeys lists the keys held by the local store, narrowed by ?prefix=.
func (s *Server) listLocalKeys(c echo.Context) error {
	if s.localKeys == nil {
		return echo.NewHTTPError(http.StatusNotFound, "local store not available")
	}
	keys, err := s.localKeys.Keys(c.Request().Context(), c.QueryParam("prefix"))
	if err != nil {
		if s.logger != nil {
			s.logger.WithError(err).Warn("failed to list local store keys")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list local store keys")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"count": len(keys),
		"keys":  keys,
	})
}
