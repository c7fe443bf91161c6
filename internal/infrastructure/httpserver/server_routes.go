package httpserver

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/metrics", s.metricsEndpoint)

	debug := s.echo.Group("/debug")
	debug.GET("/events", s.listEvents)
	debug.DELETE("/events", s.clearEvents)
	debug.GET("/cache", s.cacheStats)
	debug.DELETE("/cache", s.clearCache)
	debug.GET("/session", s.sessionStatus)
	debug.POST("/session/resume", s.resumeSession)
	debug.GET("/local", s.listLocalKeys)
}
