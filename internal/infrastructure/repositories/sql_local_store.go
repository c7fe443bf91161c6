package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/resilient-client/go/internal/core/ports"
	"github.com/avatarctic/resilient-client/go/internal/infrastructure/db"
)

// SQLLocalStore keeps repository payloads in the local_store table.
type SQLLocalStore struct {
	db     *db.Database
	clock  clockwork.Clock
	logger *logrus.Logger
}

// NewSQLLocalStore expects the database to be migrated.
func NewSQLLocalStore(database *db.Database, clock clockwork.Clock, logger *logrus.Logger) *SQLLocalStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SQLLocalStore{db: database, clock: clock, logger: logger}
}

var (
	_ ports.LocalStore     = (*SQLLocalStore)(nil)
	_ ports.LocalKeyLister = (*SQLLocalStore)(nil)
)

// likeEscaper makes a prefix match literally; repository keys contain "_".
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *SQLLocalStore) Save(ctx context.Context, key string, value []byte) error {
	query := s.db.DB.Rebind(`
		INSERT INTO local_store (store_key, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (store_key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`)

	if _, err := s.db.DB.ExecContext(ctx, query, key, value, s.clock.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save local entry: %w", err)
	}
	return nil
}

func (s *SQLLocalStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	var payload []byte
	query := s.db.DB.Rebind(`SELECT payload FROM local_store WHERE store_key = ?`)

	err := s.db.DB.GetContext(ctx, &payload, query, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to load local entry: %w", err)
	}
	return payload, true, nil
}

func (s *SQLLocalStore) Delete(ctx context.Context, key string) error {
	query := s.db.DB.Rebind(`DELETE FROM local_store WHERE store_key = ?`)

	if _, err := s.db.DB.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("failed to delete local entry: %w", err)
	}
	return nil
}

// Keys lists stored keys with the given prefix, for diagnostics.
func (s *SQLLocalStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys := []string{}
	query := s.db.DB.Rebind(`SELECT store_key FROM local_store WHERE store_key LIKE ? ESCAPE '\' ORDER BY store_key`)

	if err := s.db.DB.SelectContext(ctx, &keys, query, likeEscaper.Replace(prefix)+"%"); err != nil {
		return nil, fmt.Errorf("failed to list local entries: %w", err)
	}
	// SQLite LIKE ignores ASCII case
	matched := keys[:0]
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			matched = append(matched, k)
		}
	}
	keys = matched
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"prefix": prefix, "count": len(keys)}).Debug("listed local entries")
	}
	return keys, nil
}
