package httpserver

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/resilient-client/go/internal/application/services"
	"github.com/avatarctic/resilient-client/go/internal/core/ports"
	"github.com/avatarctic/resilient-client/go/internal/infrastructure/eventbus"
	customMiddleware "github.com/avatarctic/resilient-client/go/internal/infrastructure/httpserver/middleware"
	"github.com/avatarctic/resilient-client/go/internal/infrastructure/memcache"
)

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	Service      string
	Version      string
}

// EventHistory is the event bus view served under /debug/events.
type EventHistory interface {
	History() []eventbus.Record
	ClearHistory()
}

// CacheInspector is the cache view served under /debug/cache.
type CacheInspector interface {
	Stats() memcache.Stats
	ClearAll()
}

// SessionInspector is the session view served under /debug/session.
type SessionInspector interface {
	Status() services.SessionStatus
	Resume()
}

type ServerDeps struct {
	Events         EventHistory
	Cache          CacheInspector
	Session        SessionInspector
	LocalKeys      ports.LocalKeyLister
	HealthCheckers []ports.HealthChecker
}

// Server is the local diagnostics endpoint of the client.
type Server struct {
	echo           *echo.Echo
	config         *ServerConfig
	logger         *logrus.Logger
	events         EventHistory
	cache          CacheInspector
	session        SessionInspector
	localKeys      ports.LocalKeyLister
	middleware     *customMiddleware.MiddlewareCollection
	healthCheckers []ports.HealthChecker
}

func NewServer(serverConfig *ServerConfig, logger *logrus.Logger, deps ServerDeps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	server := &Server{
		echo:           e,
		config:         serverConfig,
		logger:         logger,
		events:         deps.Events,
		cache:          deps.Cache,
		session:        deps.Session,
		localKeys:      deps.LocalKeys,
		healthCheckers: deps.HealthCheckers,
		middleware: customMiddleware.NewMiddlewareCollection(
			logger,
			GetRequestsTotal(),
			GetRequestDuration(),
		),
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}
