package connectivity

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/resilient-client/go/internal/core/domain/events"
	"github.com/avatarctic/resilient-client/go/internal/core/ports"
)

var onlineGauge = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "connectivity_online",
	Help: "1 when the backend answered the last probe",
})

func init() {
	prometheus.MustRegister(onlineGauge)
}

// Static is a fixed answer, used for tests and for forcing offline mode.
type Static bool

func (s Static) IsOnline() bool { return bool(s) }

type MonitorConfig struct {
	URL      string
	Interval time.Duration
	Timeout  time.Duration
}

// Monitor probes the backend with HEAD requests and caches the result so
// IsOnline never blocks. Any HTTP response counts as online; only transport
// failures flip it offline.
type Monitor struct {
	url        string
	interval   time.Duration
	timeout    time.Duration
	httpClient *http.Client
	publisher  ports.EventPublisher
	clock      clockwork.Clock
	logger     *logrus.Logger

	online atomic.Bool
}

// NewMonitor starts optimistic: the device is assumed online until a probe says otherwise.
func NewMonitor(cfg MonitorConfig, httpClient *http.Client, publisher ports.EventPublisher, clock clockwork.Clock, logger *logrus.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	m := &Monitor{
		url:        cfg.URL,
		interval:   cfg.Interval,
		timeout:    cfg.Timeout,
		httpClient: httpClient,
		publisher:  publisher,
		clock:      clock,
		logger:     logger,
	}
	m.online.Store(true)
	onlineGauge.Set(1)
	return m
}

var (
	_ ports.ConnectivityOracle = (*Monitor)(nil)
	_ ports.ConnectivityOracle = Static(true)
)

func (m *Monitor) IsOnline() bool { return m.online.Load() }

// Run probes once immediately and then on every tick until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	m.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			m.Probe(ctx)
		}
	}
}

// Probe checks the backend once and returns the new state.
func (m *Monitor) Probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	online := false
	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, m.url, nil)
	if err == nil {
		var resp *http.Response
		resp, err = m.httpClient.Do(req)
		if err == nil {
			resp.Body.Close()
			online = true
		}
	}
	if ctx.Err() != nil {
		// shutting down; keep the last known state
		return m.online.Load()
	}
	m.set(online, err)
	return online
}

func (m *Monitor) set(online bool, cause error) {
	if m.online.Swap(online) == online {
		return
	}
	if online {
		onlineGauge.Set(1)
	} else {
		onlineGauge.Set(0)
	}
	if m.logger != nil {
		entry := m.logger.WithFields(logrus.Fields{"online": online, "url": m.url})
		if cause != nil {
			entry = entry.WithError(cause)
		}
		entry.Info("connectivity changed")
	}
	if m.publisher != nil {
		m.publisher.Publish(events.ConnectivityChangedEvent{Online: online, At: m.clock.Now()})
	}
}

// Checker exposes the last probe result as a health dependency.
type Checker struct{ oracle ports.ConnectivityOracle }

func NewChecker(oracle ports.ConnectivityOracle) *Checker { return &Checker{oracle: oracle} }

func (c *Checker) Name() string { return "backend" }

func (c *Checker) Check(context.Context) error {
	if !c.oracle.IsOnline() {
		return ErrOffline
	}
	return nil
}

var _ ports.HealthChecker = (*Checker)(nil)
