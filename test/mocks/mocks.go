package mocks

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/avatarctic/resilient-client/go/internal/core/domain/auth"
	"github.com/avatarctic/resilient-client/go/internal/core/ports"
)

// TokenSourceMock is a lightweight mock for ports.TokenSource
type TokenSourceMock struct {
	TokenFn func(ctx context.Context) (*auth.Token, error)
	calls   atomic.Int32
}

func (m *TokenSourceMock) Token(ctx context.Context) (*auth.Token, error) {
	m.calls.Add(1)
	if m.TokenFn != nil {
		return m.TokenFn(ctx)
	}
	return nil, fmt.Errorf("no token configured")
}

// Calls returns how many times Token was invoked.
func (m *TokenSourceMock) Calls() int { return int(m.calls.Load()) }

// LocalStoreMock is an in-memory ports.LocalStore whose calls can be overridden.
type LocalStoreMock struct {
	SaveFn   func(ctx context.Context, key string, value []byte) error
	LoadFn   func(ctx context.Context, key string) ([]byte, bool, error)
	DeleteFn func(ctx context.Context, key string) error

	mu      sync.Mutex
	data    map[string][]byte
	Saves   int
	Loads   int
	Deletes int
}

func (m *LocalStoreMock) Save(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	m.Saves++
	m.mu.Unlock()
	if m.SaveFn != nil {
		return m.SaveFn(ctx, key, value)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *LocalStoreMock) Load(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	m.Loads++
	m.mu.Unlock()
	if m.LoadFn != nil {
		return m.LoadFn(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *LocalStoreMock) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	m.Deletes++
	m.mu.Unlock()
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Stored returns the raw bytes saved under key.
func (m *LocalStoreMock) Stored(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

// ConnectivityMock is a settable ports.ConnectivityOracle
type ConnectivityMock struct {
	online atomic.Bool
}

func NewConnectivityMock(online bool) *ConnectivityMock {
	m := &ConnectivityMock{}
	m.online.Store(online)
	return m
}

func (m *ConnectivityMock) IsOnline() bool   { return m.online.Load() }
func (m *ConnectivityMock) SetOnline(v bool) { m.online.Store(v) }

// NetworkClientMock is a lightweight mock for ports.NetworkClient
type NetworkClientMock struct {
	ExecuteFn func(ctx context.Context, endpoint, method string, body, out any) error
	calls     atomic.Int32
}

func (m *NetworkClientMock) Execute(ctx context.Context, endpoint, method string, body, out any) error {
	m.calls.Add(1)
	if m.ExecuteFn != nil {
		return m.ExecuteFn(ctx, endpoint, method, body, out)
	}
	return fmt.Errorf("not implemented")
}

func (m *NetworkClientMock) Calls() int { return int(m.calls.Load()) }

// PublisherMock records every published event.
type PublisherMock struct {
	mu     sync.Mutex
	Events []any
}

func (m *PublisherMock) Publish(event any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, event)
}

func (m *PublisherMock) Published() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]any(nil), m.Events...)
}

// HealthCheckerMock is a lightweight mock for ports.HealthChecker
type HealthCheckerMock struct {
	NameValue string
	CheckFn   func(ctx context.Context) error
}

func (m *HealthCheckerMock) Name() string { return m.NameValue }
func (m *HealthCheckerMock) Check(ctx context.Context) error {
	if m.CheckFn != nil {
		return m.CheckFn(ctx)
	}
	return nil
}

var (
	_ ports.TokenSource        = (*TokenSourceMock)(nil)
	_ ports.LocalStore         = (*LocalStoreMock)(nil)
	_ ports.ConnectivityOracle = (*ConnectivityMock)(nil)
	_ ports.NetworkClient      = (*NetworkClientMock)(nil)
	_ ports.EventPublisher     = (*PublisherMock)(nil)
	_ ports.HealthChecker      = (*HealthCheckerMock)(nil)
)
