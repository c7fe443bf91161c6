package repository

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/avatarctic/resilient-client/go/internal/core/domain/apperr"
	"github.com/avatarctic/resilient-client/go/internal/core/ports"
)

// FetchFunc loads one value from a single tier.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// DataSource is where a repository gets fresh values from.
type DataSource[T any] interface {
	Fetch(ctx context.Context, key string) (T, error)
}

// RemoteSource fetches values from the backend. The endpoint is a format
// string with a single %s verb for the path-escaped key, e.g. "/users/%s".
type RemoteSource[T any] struct {
	client   ports.NetworkClient
	endpoint string
}

func NewRemoteSource[T any](client ports.NetworkClient, endpoint string) *RemoteSource[T] {
	return &RemoteSource[T]{client: client, endpoint: endpoint}
}

func (s *RemoteSource[T]) Fetch(ctx context.Context, key string) (T, error) {
	var out T
	if err := s.client.Execute(ctx, fmt.Sprintf(s.endpoint, url.PathEscape(key)), http.MethodGet, nil, &out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// MockSource serves in-memory fixtures for offline development and tests.
type MockSource[T any] struct {
	mu       sync.RWMutex
	fixtures map[string]T
}

func NewMockSource[T any](fixtures map[string]T) *MockSource[T] {
	m := &MockSource[T]{fixtures: make(map[string]T, len(fixtures))}
	for k, v := range fixtures {
		m.fixtures[k] = v
	}
	return m
}

func (s *MockSource[T]) Fetch(ctx context.Context, key string) (T, error) {
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, apperr.New(apperr.KindCanceled, key, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.fixtures[key]
	if !ok {
		var zero T
		return zero, &apperr.Error{Kind: apperr.KindNotFound, Status: http.StatusNotFound, Endpoint: key}
	}
	return v, nil
}

// Put adds or replaces a fixture.
func (s *MockSource[T]) Put(key string, value T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fixtures[key] = value
}

var (
	_ DataSource[struct{}] = (*RemoteSource[struct{}])(nil)
	_ DataSource[struct{}] = (*MockSource[struct{}])(nil)
)
