package network

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/resilient-client/go/internal/core/domain/apperr"
	"github.com/avatarctic/resilient-client/go/internal/core/domain/auth"
	"github.com/avatarctic/resilient-client/go/internal/core/domain/events"
	"github.com/avatarctic/resilient-client/go/internal/core/ports"
)

const DefaultRefreshMargin = 5 * time.Minute

// tokenManager owns the bearer token. Refreshes are serialized by mu so
// concurrent requests wait for a single refresh instead of issuing their own.
type tokenManager struct {
	mu        sync.Mutex
	token     *auth.Token
	source    ports.TokenSource
	margin    time.Duration
	clock     clockwork.Clock
	publisher ports.EventPublisher
	logger    *logrus.Logger
}

// ensure refreshes the token when absent or within margin of expiry.
// With no TokenSource configured the client runs unauthenticated.
func (m *tokenManager) ensure(ctx context.Context, endpoint string) error {
	if m.source == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.token.ExpiresWithin(m.clock.Now(), m.margin) {
		return nil
	}

	tok, err := m.source.Token(ctx)
	if err == nil && (tok == nil || tok.Value == "") {
		err = fmt.Errorf("token source returned an empty token")
	}
	if err != nil {
		m.token = nil
		tokenRefreshes.WithLabelValues("failure").Inc()
		if m.logger != nil {
			m.logger.WithFields(logrus.Fields{"endpoint": endpoint}).WithError(err).Error("auth token refresh failed")
		}
		if m.publisher != nil {
			m.publisher.Publish(events.AuthenticationFailedEvent{Endpoint: endpoint, Reason: err.Error(), At: m.clock.Now()})
		}
		return apperr.New(apperr.KindAuthentication, endpoint, err)
	}

	m.token = tok
	tokenRefreshes.WithLabelValues("success").Inc()
	if m.logger != nil {
		m.logger.WithFields(logrus.Fields{"expires_at": tok.ExpiresAt}).Debug("auth token refreshed")
	}
	return nil
}

func (m *tokenManager) value() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == nil {
		return ""
	}
	return m.token.Value
}

func (m *tokenManager) invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = nil
}

// HTTPTokenSource exchanges the device identity for a bearer token at the auth endpoint.
type HTTPTokenSource struct {
	url        string
	apiKey     string
	device     DeviceInfo
	httpClient *http.Client
	clock      clockwork.Clock
}

func NewHTTPTokenSource(baseURL, endpoint, apiKey string, device DeviceInfo, httpClient *http.Client, clock clockwork.Clock) *HTTPTokenSource {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &HTTPTokenSource{url: baseURL + endpoint, apiKey: apiKey, device: device, httpClient: httpClient, clock: clock}
}

var _ ports.TokenSource = (*HTTPTokenSource)(nil)

func (s *HTTPTokenSource) Token(ctx context.Context) (*auth.Token, error) {
	body, err := json.Marshal(auth.TokenRequest{DeviceID: s.device.DeviceID, APIKey: s.apiKey, Platform: s.device.Platform})
	if err != nil {
		return nil, fmt.Errorf("failed to encode token request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Device-ID", s.device.DeviceID)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperr.FromStatus(resp.StatusCode, s.url, raw)
	}

	var tr auth.TokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("token response has no access_token")
	}

	if tr.ExpiresIn > 0 {
		return &auth.Token{Value: tr.AccessToken, ExpiresAt: s.clock.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)}, nil
	}
	expiresAt, err := jwtExpiry(tr.AccessToken, s.device.DeviceID)
	if err != nil {
		return nil, err
	}
	return &auth.Token{Value: tr.AccessToken, ExpiresAt: expiresAt}, nil
}

// jwtExpiry reads the exp claim without verifying the signature; the server
// verifies the token, the client only schedules its refresh. A token whose
// device_id names another device is rejected.
func jwtExpiry(token, deviceID string) (time.Time, error) {
	claims := &auth.DeviceClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("token has no expires_in and is not a JWT: %w", err)
	}
	if claims.DeviceID != "" && deviceID != "" && claims.DeviceID != deviceID {
		return time.Time{}, fmt.Errorf("token was issued for device %q", claims.DeviceID)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("token has neither expires_in nor an exp claim")
	}
	return claims.ExpiresAt.Time, nil
}
