package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/avatarctic/resilient-client/go/internal/core/ports"
)

const DefaultPrefix = "local_store"

// LocalStore implements ports.LocalStore on Redis, for shared or test devices
// where a SQL file is not available.
type LocalStore struct {
	r redis.Cmdable
	// optional key prefix to namespace entries
	prefix string
	// ttl bounds retention; zero keeps entries until deleted
	ttl time.Duration
}

func NewLocalStore(r redis.Cmdable, prefix string, ttl time.Duration) *LocalStore {
	return &LocalStore{r: r, prefix: prefix, ttl: ttl}
}

var (
	_ ports.LocalStore     = (*LocalStore)(nil)
	_ ports.LocalKeyLister = (*LocalStore)(nil)
)

// globEscaper makes a key prefix match literally in a SCAN pattern.
var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func (s *LocalStore) namespaced(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}

func (s *LocalStore) Save(ctx context.Context, key string, value []byte) error {
	if err := s.r.Set(ctx, s.namespaced(key), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save local entry: %w", err)
	}
	return nil
}

func (s *LocalStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.r.Get(ctx, s.namespaced(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load local entry: %w", err)
	}
	return val, true, nil
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	if err := s.r.Del(ctx, s.namespaced(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete local entry: %w", err)
	}
	return nil
}

// Keys scans the namespace for keys starting with prefix.
func (s *LocalStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	pattern := globEscaper.Replace(s.namespaced(prefix)) + "*"
	trim := len(s.namespaced(""))

	keys := []string{}
	var cursor uint64
	for {
		batch, next, err := s.r.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to list local entries: %w", err)
		}
		for _, k := range batch {
			keys = append(keys, k[trim:])
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	sort.Strings(keys)
	return keys, nil
}
