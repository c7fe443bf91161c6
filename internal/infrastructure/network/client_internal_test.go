package network

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/avatarctic/resilient-client/go/internal/core/domain/apperr"
)

type failingTransport struct{ calls atomic.Int32 }

func (f *failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	f.calls.Add(1)
	return nil, errors.New("connection refused")
}

func recordSleeps(c *Client) *[]time.Duration {
	var waits []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	return &waits
}

func TestExecute_BackoffDoublesFromTwiceBase(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	base := 250 * time.Millisecond
	c := NewClient(&Config{BaseURL: srv.URL, RetryBaseDelay: base, MinRequestInterval: -1}, srv.Client(), nil, nil, nil, nil)
	waits := recordSleeps(c)

	err := c.Execute(context.Background(), "/users/1", http.MethodGet, nil, nil)
	require.Equal(t, apperr.KindInternalServer, apperr.KindOf(err))
	require.Equal(t, int32(DefaultMaxRetryAttempts), hits.Load())
	require.Equal(t, []time.Duration{2 * base, 4 * base}, *waits)
}

func TestExecute_TransportFailureIsRetriedAsUnreachable(t *testing.T) {
	transport := &failingTransport{}
	c := NewClient(&Config{BaseURL: "http://backend.invalid", RetryBaseDelay: time.Second, MinRequestInterval: -1}, &http.Client{Transport: transport}, nil, nil, nil, nil)
	waits := recordSleeps(c)

	err := c.Execute(context.Background(), "/users/1", http.MethodGet, nil, nil)
	require.Equal(t, apperr.KindNetworkUnreachable, apperr.KindOf(err))
	require.Equal(t, int32(3), transport.calls.Load())
	require.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, *waits)
}

func TestExecute_SingleAttemptDoesNotSleep(t *testing.T) {
	transport := &failingTransport{}
	c := NewClient(&Config{BaseURL: "http://backend.invalid", MaxRetryAttempts: 1, MinRequestInterval: -1}, &http.Client{Transport: transport}, nil, nil, nil, nil)
	waits := recordSleeps(c)

	require.Error(t, c.Execute(context.Background(), "/x", http.MethodGet, nil, nil))
	require.Empty(t, *waits)
	require.Equal(t, int32(1), transport.calls.Load())
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(nil, nil, nil, nil, nil, nil)
	require.Equal(t, DefaultTimeout, c.timeout)
	require.Equal(t, DefaultMaxRetryAttempts, c.maxAttempts)
	require.Equal(t, DefaultRetryBaseDelay, c.baseDelay)
	require.Equal(t, DefaultMinRequestInterval, c.limiter.interval)
	require.Equal(t, DefaultRefreshMargin, c.tokens.margin)
}

func waitFor(l *endpointLimiter, endpoint string) time.Duration {
	wait, _ := l.reserve(endpoint)
	return wait
}

func TestEndpointLimiter_QueuesConcurrentReservations(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := newEndpointLimiter(time.Second, clock)

	require.Equal(t, time.Duration(0), waitFor(l, "/a"))
	require.Equal(t, time.Second, waitFor(l, "/a"))
	require.Equal(t, 2*time.Second, waitFor(l, "/a"))
	require.Equal(t, time.Duration(0), waitFor(l, "/b"))

	clock.Advance(5 * time.Second)
	require.Equal(t, time.Duration(0), waitFor(l, "/a"))

	l.touch("/a")
	last, ok := l.lastInvoked("/a")
	require.True(t, ok)
	require.True(t, clock.Now().Equal(last))

	_, ok = l.lastInvoked("/never")
	require.False(t, ok)
}

func TestEndpointLimiter_DisabledNeverWaits(t *testing.T) {
	l := newEndpointLimiter(-1, clockwork.NewFakeClock())
	for i := 0; i < 3; i++ {
		require.Equal(t, time.Duration(0), waitFor(l, "/a"))
	}
}

func TestEndpointLimiter_CancelReturnsUnusedSlot(t *testing.T) {
	l := newEndpointLimiter(time.Second, clockwork.NewFakeClock())

	require.Equal(t, time.Duration(0), waitFor(l, "/a"))
	wait, cancel := l.reserve("/a")
	require.Equal(t, time.Second, wait)
	cancel()
	cancel()
	require.Equal(t, time.Second, waitFor(l, "/a"), "next caller waits one interval, not two")

	// a slot with reservations queued behind it stays claimed
	_, cancelQueued := l.reserve("/a")
	require.Equal(t, 3*time.Second, waitFor(l, "/a"))
	cancelQueued()
	require.Equal(t, 4*time.Second, waitFor(l, "/a"))

	_, cancelFirst := l.reserve("/b")
	cancelFirst()
	_, ok := l.lastInvoked("/b")
	require.False(t, ok)
}

func TestExecute_CanceledRateLimitWaitDoesNotDelayNextCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	clock := clockwork.NewFakeClock()
	c := NewClient(&Config{BaseURL: srv.URL, MinRequestInterval: time.Second}, srv.Client(), nil, nil, clock, nil)
	waits := recordSleeps(c)

	require.NoError(t, c.Execute(context.Background(), "/users/1", http.MethodGet, nil, nil))

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Execute(canceled, "/users/1", http.MethodGet, nil, nil)
	require.Equal(t, apperr.KindCanceled, apperr.KindOf(err))

	require.NoError(t, c.Execute(context.Background(), "/users/1", http.MethodGet, nil, nil))
	require.Equal(t, []time.Duration{time.Second, time.Second}, *waits)
}
