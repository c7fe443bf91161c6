package ports

import (
	"context"

	"github.com/avatarctic/resilient-client/go/internal/core/domain/auth"
)

// NetworkClient performs authenticated, rate-limited, retried JSON requests.
type NetworkClient interface {
	// Execute sends body to endpoint and decodes a successful response into out.
	// Failures are *apperr.Error values.
	Execute(ctx context.Context, endpoint, method string, body, out any) error
}

// TokenSource obtains a fresh bearer token.
type TokenSource interface {
	Token(ctx context.Context) (*auth.Token, error)
}
