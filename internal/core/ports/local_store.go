package ports

import "context"

// LocalStore persists opaque payloads on the device so data survives offline periods.
type LocalStore interface {
	Save(ctx context.Context, key string, value []byte) error
	// Load returns ok=false when key has never been saved.
	Load(ctx context.Context, key string) (value []byte, ok bool, err error)
	Delete(ctx context.Context, key string) error
}

// ConnectivityOracle answers whether the device is online. It is polled
// synchronously before every fetch decision, so it must not block.
type ConnectivityOracle interface {
	IsOnline() bool
}

// LocalKeyLister is implemented by local stores that can enumerate their keys.
type LocalKeyLister interface {
	// Keys returns the stored keys starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
