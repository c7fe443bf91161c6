package network_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/avatarctic/resilient-client/go/internal/core/domain/apperr"
	"github.com/avatarctic/resilient-client/go/internal/core/domain/auth"
	"github.com/avatarctic/resilient-client/go/internal/core/domain/events"
	"github.com/avatarctic/resilient-client/go/internal/infrastructure/network"
	"github.com/avatarctic/resilient-client/go/test/mocks"
)

type profile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func staticTokens(value string, expiresAt time.Time) *mocks.TokenSourceMock {
	return &mocks.TokenSourceMock{TokenFn: func(ctx context.Context) (*auth.Token, error) {
		return &auth.Token{Value: value, ExpiresAt: expiresAt}, nil
	}}
}

func fastConfig(baseURL string) *network.Config {
	return &network.Config{
		BaseURL:            baseURL,
		MaxRetryAttempts:   3,
		RetryBaseDelay:     time.Millisecond,
		MinRequestInterval: -1,
		Device: network.DeviceInfo{
			DeviceID:   "device-1",
			Platform:   "linux",
			AppVersion: "1.2.3",
			UserAgent:  "resilient-client/1.2.3",
		},
	}
}

func TestExecute_MapsStatusToErrorKind(t *testing.T) {
	cases := []struct {
		status int
		kind   apperr.Kind
	}{
		{http.StatusBadRequest, apperr.KindBadRequest},
		{http.StatusUnauthorized, apperr.KindUnauthorized},
		{http.StatusForbidden, apperr.KindForbidden},
		{http.StatusNotFound, apperr.KindNotFound},
		{http.StatusTooManyRequests, apperr.KindRateLimited},
		{http.StatusInternalServerError, apperr.KindInternalServer},
		{http.StatusTeapot, apperr.KindHTTP},
		{http.StatusBadGateway, apperr.KindHTTP},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("status_%d", tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"error":"nope"}`))
			}))
			defer srv.Close()

			cfg := fastConfig(srv.URL)
			cfg.MaxRetryAttempts = 1
			client := network.NewClient(cfg, srv.Client(), nil, nil, nil, nil)

			err := client.Execute(context.Background(), "/thing", http.MethodGet, nil, nil)
			require.Error(t, err)
			require.Equal(t, tc.kind, apperr.KindOf(err))

			var appErr *apperr.Error
			require.True(t, errors.As(err, &appErr))
			require.Equal(t, tc.status, appErr.Status)
			require.Equal(t, "/thing", appErr.Endpoint)
			if tc.status == http.StatusBadRequest {
				require.JSONEq(t, `{"error":"nope"}`, string(appErr.Payload))
			}
		})
	}
}

func TestExecute_SendsHeadersAndDecodesResponse(t *testing.T) {
	var mu sync.Mutex
	var seen []http.Header
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		seen = append(seen, r.Header.Clone())
		bodies = append(bodies, string(raw))
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"user_001","name":"Ada"}`))
	}))
	defer srv.Close()

	tokens := staticTokens("tok-1", time.Now().Add(time.Hour))
	client := network.NewClient(fastConfig(srv.URL), srv.Client(), tokens, nil, nil, nil)

	got, err := network.Fetch[profile](context.Background(), client, "/users/user_001", http.MethodPost, map[string]string{"hello": "world"})
	require.NoError(t, err)
	require.Equal(t, profile{ID: "user_001", Name: "Ada"}, got)

	require.NoError(t, client.Execute(context.Background(), "/users/user_001", http.MethodGet, nil, nil))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	h := seen[0]
	require.Equal(t, "application/json", h.Get("Content-Type"))
	require.Equal(t, "application/json", h.Get("Accept"))
	require.Equal(t, "Bearer tok-1", h.Get("Authorization"))
	require.Equal(t, "device-1", h.Get("X-Device-ID"))
	require.Equal(t, "linux", h.Get("X-Platform"))
	require.Equal(t, "1.2.3", h.Get("X-App-Version"))
	require.Equal(t, "resilient-client/1.2.3", h.Get("User-Agent"))
	require.NotEmpty(t, h.Get("X-Request-ID"))
	require.NotEqual(t, h.Get("X-Request-ID"), seen[1].Get("X-Request-ID"))
	require.JSONEq(t, `{"hello":"world"}`, bodies[0])
	require.Empty(t, bodies[1])

	require.Equal(t, 1, tokens.Calls(), "a valid token is reused")
}

func TestExecute_WithoutTokenSourceSendsNoAuthorization(t *testing.T) {
	var authHeader atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader.Store(r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := network.NewClient(fastConfig(srv.URL), srv.Client(), nil, nil, nil, nil)
	var out profile
	require.NoError(t, client.Execute(context.Background(), "/ping", http.MethodGet, nil, &out))
	require.Equal(t, "", authHeader.Load())
	require.Equal(t, profile{}, out)
}

func TestExecute_InvalidBodyIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	client := network.NewClient(fastConfig(srv.URL), srv.Client(), nil, nil, nil, nil)
	_, err := network.Fetch[profile](context.Background(), client, "/users/1", http.MethodGet, nil)
	require.Equal(t, apperr.KindInvalidResponse, apperr.KindOf(err))
	require.Equal(t, int32(1), hits.Load())
}

func TestExecute_PermanentStatusIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := network.NewClient(fastConfig(srv.URL), srv.Client(), nil, nil, nil, nil)
	err := client.Execute(context.Background(), "/missing", http.MethodGet, nil, nil)
	require.ErrorIs(t, err, apperr.ErrNotFound)
	require.Equal(t, int32(1), hits.Load())
}

func TestExecute_RetriesTransientFailuresThenSucceeds(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"id":"1"}`))
	}))
	defer srv.Close()

	client := network.NewClient(fastConfig(srv.URL), srv.Client(), nil, nil, nil, nil)
	got, err := network.Fetch[profile](context.Background(), client, "/users/1", http.MethodGet, nil)
	require.NoError(t, err)
	require.Equal(t, "1", got.ID)
	require.Equal(t, int32(3), hits.Load())
}

func TestExecute_ReturnsLastErrorAfterMaxAttempts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := network.NewClient(fastConfig(srv.URL), srv.Client(), nil, nil, nil, nil)
	err := client.Execute(context.Background(), "/busy", http.MethodGet, nil, nil)
	require.ErrorIs(t, err, apperr.ErrRateLimited)
	require.Equal(t, int32(3), hits.Load())
}

func TestExecute_AuthFailurePublishesEventAndSkipsRequest(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	tokens := &mocks.TokenSourceMock{TokenFn: func(ctx context.Context) (*auth.Token, error) {
		return nil, errors.New("invalid api key")
	}}
	publisher := &mocks.PublisherMock{}
	client := network.NewClient(fastConfig(srv.URL), srv.Client(), tokens, publisher, nil, nil)

	err := client.Execute(context.Background(), "/users/1", http.MethodGet, nil, nil)
	require.ErrorIs(t, err, apperr.ErrAuthentication)
	require.Equal(t, int32(0), hits.Load())
	require.Equal(t, 1, tokens.Calls(), "refresh failure is not retried")

	published := publisher.Published()
	require.Len(t, published, 1)
	evt, ok := published[0].(events.AuthenticationFailedEvent)
	require.True(t, ok)
	require.Equal(t, "/users/1", evt.Endpoint)
	require.Contains(t, evt.Reason, "invalid api key")

	// the next call tries again
	_ = client.Execute(context.Background(), "/users/1", http.MethodGet, nil, nil)
	require.Equal(t, 2, tokens.Calls())
}

func TestExecute_EmptyTokenIsAnAuthFailure(t *testing.T) {
	tokens := staticTokens("", time.Now().Add(time.Hour))
	publisher := &mocks.PublisherMock{}
	client := network.NewClient(fastConfig("http://127.0.0.1:1"), nil, tokens, publisher, nil, nil)

	err := client.Execute(context.Background(), "/x", http.MethodGet, nil, nil)
	require.Equal(t, apperr.KindAuthentication, apperr.KindOf(err))
	require.Len(t, publisher.Published(), 1)
}

func TestExecute_RefreshesTokenWithinMargin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	clock := clockwork.NewFakeClock()
	var issued atomic.Int32
	tokens := &mocks.TokenSourceMock{TokenFn: func(ctx context.Context) (*auth.Token, error) {
		n := issued.Add(1)
		return &auth.Token{Value: fmt.Sprintf("tok-%d", n), ExpiresAt: clock.Now().Add(10 * time.Minute)}, nil
	}}
	client := network.NewClient(fastConfig(srv.URL), srv.Client(), tokens, nil, clock, nil)
	ctx := context.Background()

	require.NoError(t, client.Execute(ctx, "/a", http.MethodGet, nil, nil))
	require.Equal(t, 1, tokens.Calls())

	clock.Advance(4 * time.Minute)
	require.NoError(t, client.Execute(ctx, "/a", http.MethodGet, nil, nil))
	require.Equal(t, 1, tokens.Calls(), "six minutes left is outside the five minute margin")

	clock.Advance(time.Minute)
	require.NoError(t, client.Execute(ctx, "/a", http.MethodGet, nil, nil))
	require.Equal(t, 2, tokens.Calls(), "five minutes left triggers a refresh")
}

func TestExecute_UnauthorizedDropsTokenForNextCall(t *testing.T) {
	var hits atomic.Int32
	var lastAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastAuth.Store(r.Header.Get("Authorization"))
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	var issued atomic.Int32
	tokens := &mocks.TokenSourceMock{TokenFn: func(ctx context.Context) (*auth.Token, error) {
		n := issued.Add(1)
		return &auth.Token{Value: fmt.Sprintf("tok-%d", n), ExpiresAt: time.Now().Add(time.Hour)}, nil
	}}
	client := network.NewClient(fastConfig(srv.URL), srv.Client(), tokens, nil, nil, nil)

	err := client.Execute(context.Background(), "/me", http.MethodGet, nil, nil)
	require.ErrorIs(t, err, apperr.ErrUnauthorized)
	require.Equal(t, int32(1), hits.Load())

	require.NoError(t, client.Execute(context.Background(), "/me", http.MethodGet, nil, nil))
	require.Equal(t, 2, tokens.Calls())
	require.Equal(t, "Bearer tok-2", lastAuth.Load())
}

func TestExecute_WaitsMinimumIntervalPerEndpoint(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	clock := clockwork.NewFakeClock()
	cfg := fastConfig(srv.URL)
	cfg.MinRequestInterval = time.Second
	client := network.NewClient(cfg, srv.Client(), nil, nil, clock, nil)
	ctx := context.Background()

	require.NoError(t, client.Execute(ctx, "/a", http.MethodGet, nil, nil))

	done := make(chan error, 1)
	go func() { done <- client.Execute(ctx, "/a", http.MethodGet, nil, nil) }()

	blockCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(blockCtx, 1))

	// another endpoint is not held back
	require.NoError(t, client.Execute(ctx, "/b", http.MethodGet, nil, nil))
	require.Equal(t, int32(2), hits.Load())

	clock.Advance(time.Second)
	require.NoError(t, <-done)
	require.Equal(t, int32(3), hits.Load())
}

func TestExecute_CancelDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	clock := clockwork.NewFakeClock()
	cfg := fastConfig(srv.URL)
	cfg.RetryBaseDelay = time.Second
	client := network.NewClient(cfg, srv.Client(), nil, nil, clock, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.Execute(ctx, "/slow", http.MethodGet, nil, nil) }()

	blockCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
	defer stop()
	require.NoError(t, clock.BlockUntilContext(blockCtx, 1))
	cancel()

	err := <-done
	require.Equal(t, apperr.KindCanceled, apperr.KindOf(err))
}

func TestExecute_CanceledContextBeforeSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := network.NewClient(fastConfig(srv.URL), srv.Client(), nil, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := client.Execute(ctx, "/x", http.MethodGet, nil, nil)
	require.Equal(t, apperr.KindCanceled, apperr.KindOf(err))
	require.False(t, apperr.IsRetryable(err))
}

func TestExecute_UnencodableBodyIsBadRequest(t *testing.T) {
	client := network.NewClient(fastConfig("http://127.0.0.1:1"), nil, nil, nil, nil, nil)
	err := client.Execute(context.Background(), "/x", http.MethodPost, map[string]any{"ch": make(chan int)}, nil)
	require.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
}

func TestHTTPTokenSource_UsesExpiresIn(t *testing.T) {
	var req auth.TokenRequest
	var method, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&req)
		_, _ = w.Write([]byte(`{"access_token":"abc","expires_in":3600}`))
	}))
	defer srv.Close()

	clock := clockwork.NewFakeClock()
	device := network.DeviceInfo{DeviceID: "device-1", Platform: "linux"}
	src := network.NewHTTPTokenSource(srv.URL, "/auth/token", "key-1", device, srv.Client(), clock)

	tok, err := src.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "abc", tok.Value)
	require.True(t, clock.Now().Add(time.Hour).Equal(tok.ExpiresAt))
	require.Equal(t, http.MethodPost, method)
	require.Equal(t, "/auth/token", path)
	require.Equal(t, auth.TokenRequest{DeviceID: "device-1", APIKey: "key-1", Platform: "linux"}, req)
}

func TestHTTPTokenSource_ReadsJWTExpiry(t *testing.T) {
	exp := time.Unix(time.Now().Add(2*time.Hour).Unix(), 0)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.DeviceClaims{
		DeviceID:         "device-1",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(exp)},
	}).SignedString([]byte("server-secret"))
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(auth.TokenResponse{AccessToken: signed})
	}))
	defer srv.Close()

	src := network.NewHTTPTokenSource(srv.URL, "/auth/token", "", network.DeviceInfo{DeviceID: "device-1"}, srv.Client(), nil)
	tok, err := src.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, signed, tok.Value)
	require.True(t, exp.Equal(tok.ExpiresAt))
}

func TestHTTPTokenSource_Failures(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()
		src := network.NewHTTPTokenSource(srv.URL, "/auth/token", "bad", network.DeviceInfo{}, srv.Client(), nil)
		_, err := src.Token(context.Background())
		require.ErrorIs(t, err, apperr.ErrUnauthorized)
	})
	t.Run("opaque token without expiry", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"access_token":"opaque"}`))
		}))
		defer srv.Close()
		src := network.NewHTTPTokenSource(srv.URL, "/auth/token", "", network.DeviceInfo{}, srv.Client(), nil)
		_, err := src.Token(context.Background())
		require.Error(t, err)
	})
	t.Run("jwt issued for another device", func(t *testing.T) {
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.DeviceClaims{
			DeviceID:         "device-2",
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		}).SignedString([]byte("server-secret"))
		require.NoError(t, err)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(auth.TokenResponse{AccessToken: signed})
		}))
		defer srv.Close()
		src := network.NewHTTPTokenSource(srv.URL, "/auth/token", "", network.DeviceInfo{DeviceID: "device-1"}, srv.Client(), nil)
		_, err = src.Token(context.Background())
		require.ErrorContains(t, err, "device-2")
	})
	t.Run("missing access token", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"expires_in":60}`))
		}))
		defer srv.Close()
		src := network.NewHTTPTokenSource(srv.URL, "/auth/token", "", network.DeviceInfo{}, srv.Client(), nil)
		_, err := src.Token(context.Background())
		require.Error(t, err)
	})
}
