package network

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/resilient-client/go/internal/core/domain/apperr"
	"github.com/avatarctic/resilient-client/go/internal/core/ports"
)

const (
	DefaultTimeout            = 30 * time.Second
	DefaultMaxRetryAttempts   = 3
	DefaultRetryBaseDelay     = time.Second
	DefaultMinRequestInterval = time.Second

	maxResponseBytes = 10 << 20
)

// Call states, logged at debug level as a request moves through Execute.
const (
	stateRateLimiting   = "rate_limiting"
	stateAuthenticating = "authenticating"
	stateSending        = "sending"
	stateRetrying       = "retrying"
	stateSuccess        = "success"
	stateFailed         = "failed"
)

// Config groups the client tuning parameters. Zero values fall back to the defaults;
// a negative MinRequestInterval disables rate limiting.
type Config struct {
	BaseURL            string
	Timeout            time.Duration
	MaxRetryAttempts   int
	RetryBaseDelay     time.Duration
	MinRequestInterval time.Duration
	RefreshMargin      time.Duration
	Device             DeviceInfo
}

// Client is the authenticated, rate-limited, retrying JSON client.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	timeout     time.Duration
	maxAttempts int
	baseDelay   time.Duration
	device      DeviceInfo
	limiter     *endpointLimiter
	tokens      *tokenManager
	clock       clockwork.Clock
	logger      *logrus.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient builds a client. tokens may be nil for unauthenticated backends;
// publisher receives AuthenticationFailedEvent when a refresh fails.
func NewClient(cfg *Config, httpClient *http.Client, tokens ports.TokenSource, publisher ports.EventPublisher, clock clockwork.Clock, logger *logrus.Logger) *Client {
	timeout := DefaultTimeout
	attempts := DefaultMaxRetryAttempts
	delay := DefaultRetryBaseDelay
	interval := DefaultMinRequestInterval
	margin := DefaultRefreshMargin
	var baseURL string
	var device DeviceInfo
	if cfg != nil {
		baseURL = cfg.BaseURL
		device = cfg.Device
		if cfg.Timeout > 0 {
			timeout = cfg.Timeout
		}
		if cfg.MaxRetryAttempts > 0 {
			attempts = cfg.MaxRetryAttempts
		}
		if cfg.RetryBaseDelay > 0 {
			delay = cfg.RetryBaseDelay
		}
		if cfg.MinRequestInterval != 0 {
			interval = cfg.MinRequestInterval
		}
		if cfg.RefreshMargin > 0 {
			margin = cfg.RefreshMargin
		}
	}
	if httpClient == nil {
		// per-attempt timeouts come from the request context
		httpClient = &http.Client{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	c := &Client{
		baseURL:     baseURL,
		httpClient:  httpClient,
		timeout:     timeout,
		maxAttempts: attempts,
		baseDelay:   delay,
		device:      device,
		limiter:     newEndpointLimiter(interval, clock),
		tokens: &tokenManager{
			source:    tokens,
			margin:    margin,
			clock:     clock,
			publisher: publisher,
			logger:    logger,
		},
		clock:  clock,
		logger: logger,
	}
	c.sleep = c.clockSleep
	return c
}

var _ ports.NetworkClient = (*Client)(nil)

// Execute sends body (JSON encoded when non-nil) to endpoint and decodes a
// successful response into out. The returned error is always an *apperr.Error.
func (c *Client) Execute(ctx context.Context, endpoint, method string, body, out any) error {
	c.trace(endpoint, method, stateRateLimiting, 0)
	if wait, release := c.limiter.reserve(endpoint); wait > 0 {
		rateLimitWaits.WithLabelValues(endpoint).Inc()
		if err := c.sleep(ctx, wait); err != nil {
			release()
			return apperr.New(apperr.KindCanceled, endpoint, err)
		}
	}

	c.trace(endpoint, method, stateAuthenticating, 0)
	if err := c.tokens.ensure(ctx, endpoint); err != nil {
		c.trace(endpoint, method, stateFailed, 0)
		return err
	}

	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return apperr.New(apperr.KindBadRequest, endpoint, fmt.Errorf("failed to encode request body: %w", err))
		}
		payload = b
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		c.trace(endpoint, method, stateSending, attempt)
		c.limiter.touch(endpoint)

		err := c.send(ctx, endpoint, method, payload, out)
		if err == nil {
			requestAttempts.WithLabelValues(endpoint, "success").Inc()
			c.trace(endpoint, method, stateSuccess, attempt)
			return nil
		}
		lastErr = err
		kind := apperr.KindOf(err)
		requestAttempts.WithLabelValues(endpoint, kind.String()).Inc()
		if c.logger != nil {
			c.logger.WithFields(logrus.Fields{"endpoint": endpoint, "method": method, "attempt": attempt, "max_attempts": c.maxAttempts, "kind": kind.String()}).WithError(err).Warn("request attempt failed")
		}

		if kind == apperr.KindUnauthorized {
			c.tokens.invalidate()
		}
		if !apperr.IsRetryable(err) || attempt == c.maxAttempts {
			break
		}

		c.trace(endpoint, method, stateRetrying, attempt)
		requestRetries.WithLabelValues(endpoint).Inc()
		if err := c.sleep(ctx, c.backoff(attempt)); err != nil {
			return apperr.New(apperr.KindCanceled, endpoint, err)
		}
	}

	c.trace(endpoint, method, stateFailed, c.maxAttempts)
	return lastErr
}

// backoff is 2^attempt * base: the waits after attempts 1 and 2 are 2×base and 4×base.
func (c *Client) backoff(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * c.baseDelay
}

func (c *Client) send(ctx context.Context, endpoint, method string, payload []byte, out any) error {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(attemptCtx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return apperr.New(apperr.KindBadRequest, endpoint, err)
	}
	c.applyHeaders(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.WithLabelValues(endpoint, method).Observe(time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return apperr.New(apperr.KindCanceled, endpoint, ctx.Err())
		}
		return apperr.New(apperr.KindNetworkUnreachable, endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctx.Err() != nil {
			return apperr.New(apperr.KindCanceled, endpoint, ctx.Err())
		}
		return apperr.New(apperr.KindNetworkUnreachable, endpoint, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperr.FromStatus(resp.StatusCode, endpoint, raw)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &apperr.Error{Kind: apperr.KindInvalidResponse, Status: resp.StatusCode, Endpoint: endpoint, Err: err}
	}
	return nil
}

func (c *Client) clockSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := c.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}

func (c *Client) trace(endpoint, method, state string, attempt int) {
	if c.logger == nil {
		return
	}
	c.logger.WithFields(logrus.Fields{"endpoint": endpoint, "method": method, "state": state, "attempt": attempt}).Debug("request state")
}

// Fetch executes a request and decodes the response into a T.
func Fetch[T any](ctx context.Context, client ports.NetworkClient, endpoint, method string, body any) (T, error) {
	var out T
	if err := client.Execute(ctx, endpoint, method, body, &out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
