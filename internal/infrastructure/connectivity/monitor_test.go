package connectivity_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/avatarctic/resilient-client/go/internal/core/domain/events"
	"github.com/avatarctic/resilient-client/go/internal/infrastructure/connectivity"
	"github.com/avatarctic/resilient-client/go/test/mocks"
)

func TestStatic(t *testing.T) {
	require.True(t, connectivity.Static(true).IsOnline())
	require.False(t, connectivity.Static(false).IsOnline())
}

func TestProbe_PublishesOnTransitionsOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	url := srv.URL + "/health"

	publisher := &mocks.PublisherMock{}
	m := connectivity.NewMonitor(connectivity.MonitorConfig{URL: url, Timeout: time.Second}, srv.Client(), publisher, clockwork.NewFakeClock(), nil)
	require.True(t, m.IsOnline())

	// an error status still proves the backend is reachable
	require.True(t, m.Probe(context.Background()))
	require.Empty(t, publisher.Published())

	srv.Close()
	require.False(t, m.Probe(context.Background()))
	require.False(t, m.IsOnline())
	require.False(t, m.Probe(context.Background()))

	published := publisher.Published()
	require.Len(t, published, 1)
	require.Equal(t, false, published[0].(events.ConnectivityChangedEvent).Online)
}

func TestRun_ProbesOnEveryTick(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	clock := clockwork.NewFakeClock()
	m := connectivity.NewMonitor(connectivity.MonitorConfig{URL: srv.URL, Interval: 10 * time.Second}, srv.Client(), nil, clock, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	require.Eventually(t, func() bool { return hits.Load() == 1 }, time.Second, 5*time.Millisecond)

	clock.Advance(10 * time.Second)
	require.Eventually(t, func() bool { return hits.Load() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	require.True(t, m.IsOnline())
}

func TestChecker(t *testing.T) {
	require.NoError(t, connectivity.NewChecker(connectivity.Static(true)).Check(context.Background()))
	err := connectivity.NewChecker(connectivity.Static(false)).Check(context.Background())
	require.ErrorIs(t, err, connectivity.ErrOffline)
}
