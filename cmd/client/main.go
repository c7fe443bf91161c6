package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/resilient-client/go/configs"
	"github.com/avatarctic/resilient-client/go/internal/application/repository"
	"github.com/avatarctic/resilient-client/go/internal/application/services"
	"github.com/avatarctic/resilient-client/go/internal/core/domain/events"
	"github.com/avatarctic/resilient-client/go/internal/core/domain/user"
	"github.com/avatarctic/resilient-client/go/internal/core/ports"
	"github.com/avatarctic/resilient-client/go/internal/infrastructure/connectivity"
	"github.com/avatarctic/resilient-client/go/internal/infrastructure/db"
	"github.com/avatarctic/resilient-client/go/internal/infrastructure/eventbus"
	"github.com/avatarctic/resilient-client/go/internal/infrastructure/health"
	"github.com/avatarctic/resilient-client/go/internal/infrastructure/httpserver"
	"github.com/avatarctic/resilient-client/go/internal/infrastructure/memcache"
	"github.com/avatarctic/resilient-client/go/internal/infrastructure/network"
	infraRedis "github.com/avatarctic/resilient-client/go/internal/infrastructure/redis"
	"github.com/avatarctic/resilient-client/go/internal/infrastructure/repositories"
)

func main() {
	// Load configuration
	cfg, err := configs.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	logger := newLogger(cfg.Log)
	logger.WithFields(logrus.Fields{"device_id": cfg.Device.ID, "mock_data": cfg.Network.UseMockData}).Info("Starting resilient client...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()

	// One cache, one bus and one network client for the whole process
	bus := eventbus.New(cfg.Events.HistoryCapacity, clock, logger)
	cache := memcache.New(&memcache.Config{Capacity: cfg.Cache.Capacity, DefaultTTL: cfg.Cache.NetworkTTL}, clock, logger)

	device := network.DeviceInfo{
		DeviceID:   cfg.Device.ID,
		Platform:   cfg.Device.Platform,
		AppVersion: cfg.Device.AppVersion,
		UserAgent:  cfg.Device.UserAgent,
	}
	httpClient := &http.Client{}

	var tokens ports.TokenSource
	if !cfg.Network.UseMockData {
		tokens = network.NewHTTPTokenSource(cfg.Network.BaseURL, cfg.Auth.Endpoint, cfg.Auth.APIKey, device, httpClient, clock)
	}
	client := network.NewClient(&network.Config{
		BaseURL:            cfg.Network.BaseURL,
		Timeout:            cfg.Network.Timeout,
		MaxRetryAttempts:   cfg.Network.MaxRetryAttempts,
		RetryBaseDelay:     cfg.Network.RetryBaseDelay,
		MinRequestInterval: cfg.Network.MinRequestInterval,
		RefreshMargin:      cfg.Auth.RefreshMargin,
		Device:             device,
	}, httpClient, tokens, bus, clock, logger)

	var oracle ports.ConnectivityOracle = connectivity.Static(true)
	var monitor *connectivity.Monitor
	if !cfg.Network.UseMockData {
		monitor = connectivity.NewMonitor(connectivity.MonitorConfig{
			URL:      cfg.Network.BaseURL + cfg.Connectivity.ProbePath,
			Interval: cfg.Connectivity.ProbeInterval,
			Timeout:  cfg.Connectivity.ProbeTimeout,
		}, httpClient, bus, clock, logger)
		oracle = monitor
	}

	healthCheckers := []ports.HealthChecker{connectivity.NewChecker(oracle)}

	// The client keeps working online without a local store
	store, storeChecker, closeStore, err := openLocalStore(cfg, clock, logger)
	if err != nil {
		logger.WithError(err).Warn("Local store unavailable, offline fallback disabled")
	} else {
		defer closeStore()
		healthCheckers = append(healthCheckers, storeChecker)
	}

	// nil when the store is missing or cannot enumerate keys
	localKeys, _ := store.(ports.LocalKeyLister)

	var source repository.DataSource[user.Profile]
	if cfg.Network.UseMockData {
		source = repository.NewMockSource(user.Fixtures())
	} else {
		source = repository.NewRemoteSource[user.Profile](client, "/users/%s")
	}
	users := repository.New[user.Profile](repository.Config{
		Name:       "user",
		NetworkTTL: cfg.Cache.NetworkTTL,
		LocalTTL:   cfg.Cache.LocalTTL,
	}, cache, source, store, oracle, bus, logger)

	session := services.NewSessionService(cache, logger)
	eventbus.Subscribe(bus, session.HandleAuthenticationFailed)
	eventbus.Subscribe(bus, session.HandleConnectivityChanged)
	eventbus.Subscribe(bus, func(evt events.StaleDataServedEvent) {
		logger.WithFields(logrus.Fields{"repository": evt.Repository, "key": evt.Key}).Warn("Stale data served")
	})

	// Supervised background work
	janitor := memcache.NewJanitor(cache, cfg.Cache.SweepInterval, clock, logger)
	background := []func(context.Context) error{
		func(ctx context.Context) error { janitor.Run(ctx); return nil },
	}
	if monitor != nil {
		background = append(background, func(ctx context.Context) error { monitor.Run(ctx); return nil })
	}
	backgroundTask := repository.Go(ctx, 0, background...)

	warmup := services.NewWarmupService(logger)
	warmup.Register(users, cfg.Prefetch.UserKeys)
	warmupTask := warmup.Start(ctx)
	go func() {
		if err := warmupTask.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Warn("Warmup failed")
		}
	}()

	var server *httpserver.Server
	if cfg.Diagnostics.Enabled {
		server = httpserver.NewServer(&httpserver.ServerConfig{
			Host:         cfg.Diagnostics.Host,
			Port:         cfg.Diagnostics.Port,
			ReadTimeout:  cfg.Diagnostics.ReadTimeout,
			WriteTimeout: cfg.Diagnostics.WriteTimeout,
			IdleTimeout:  cfg.Diagnostics.IdleTimeout,
			Service:      "resilient-client",
			Version:      cfg.Device.AppVersion,
		}, logger, httpserver.ServerDeps{
			Events:         bus,
			Cache:          cache,
			Session:        session,
			LocalKeys:      localKeys,
			HealthCheckers: healthCheckers,
		})

		go func() {
			if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("Diagnostics server stopped")
			}
		}()
	}

	<-ctx.Done()
	logger.Info("Shutting down client...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Diagnostics server forced to shutdown")
		}
	}
	if err := backgroundTask.Wait(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Background tasks did not stop in time")
	}

	logger.Info("Client exited")
}

func newLogger(cfg configs.LogConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(level)
	}
	return logger
}

// openLocalStore connects the configured local store backend, sealing it when a key is set.
func openLocalStore(cfg *configs.Config, clock clockwork.Clock, logger *logrus.Logger) (ports.LocalStore, ports.HealthChecker, func(), error) {
	var store ports.LocalStore
	var checker ports.HealthChecker
	var closer func()

	switch cfg.LocalStore.Driver {
	case "redis":
		client, err := infraRedis.NewRedisClient(&cfg.Redis)
		if err != nil {
			return nil, nil, nil, err
		}
		store = infraRedis.NewLocalStore(client, infraRedis.DefaultPrefix, cfg.LocalStore.RedisTTL)
		checker = health.NewRedisHealthChecker(client)
		closer = func() { _ = client.Close() }
	default:
		database, err := db.NewDatabaseWithConfig(&cfg.Database)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := database.Migrate(); err != nil {
			_ = database.Close()
			return nil, nil, nil, err
		}
		store = repositories.NewSQLLocalStore(database, clock, logger)
		checker = health.NewDBHealthChecker(database)
		closer = func() { _ = database.Close() }
	}
	logger.WithField("driver", cfg.LocalStore.Driver).Info("Local store ready")

	if cfg.LocalStore.EncryptionKey != "" {
		key, err := repositories.ParseKey(cfg.LocalStore.EncryptionKey)
		if err != nil {
			closer()
			return nil, nil, nil, err
		}
		sealed, err := repositories.NewSealedLocalStore(store, key)
		if err != nil {
			closer()
			return nil, nil, nil, err
		}
		store = sealed
	}
	return store, checker, closer, nil
}
