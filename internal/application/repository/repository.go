package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/avatarctic/resilient-client/go/internal/core/domain/apperr"
	"github.com/avatarctic/resilient-client/go/internal/core/domain/events"
	"github.com/avatarctic/resilient-client/go/internal/core/ports"
)

const (
	DefaultNetworkTTL = 10 * time.Minute
	DefaultLocalTTL   = time.Hour
)

var discard = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

type Config struct {
	// Name namespaces cache and local store keys as "{Name}_{key}".
	Name       string
	NetworkTTL time.Duration
	LocalTTL   time.Duration
}

// Repository resolves values of one entity type through the cache, the
// network, the local store and finally a stale cache entry, in that order.
type Repository[T any] struct {
	name       string
	cache      ports.Cache
	source     DataSource[T]
	store      ports.LocalStore
	oracle     ports.ConnectivityOracle
	publisher  ports.EventPublisher
	networkTTL time.Duration
	localTTL   time.Duration
	logger     *logrus.Logger
}

// New builds a repository. store, oracle and publisher may be nil: without a
// store there is no local tier, and without an oracle the device is assumed online.
func New[T any](cfg Config, cache ports.Cache, source DataSource[T], store ports.LocalStore, oracle ports.ConnectivityOracle, publisher ports.EventPublisher, logger *logrus.Logger) *Repository[T] {
	networkTTL := cfg.NetworkTTL
	if networkTTL <= 0 {
		networkTTL = DefaultNetworkTTL
	}
	localTTL := cfg.LocalTTL
	if localTTL <= 0 {
		localTTL = DefaultLocalTTL
	}
	return &Repository[T]{
		name:       cfg.Name,
		cache:      cache,
		source:     source,
		store:      store,
		oracle:     oracle,
		publisher:  publisher,
		networkTTL: networkTTL,
		localTTL:   localTTL,
		logger:     logger,
	}
}

func (r *Repository[T]) Name() string { return r.name }

// CacheKey returns the namespaced key used in the cache and the local store.
func (r *Repository[T]) CacheKey(key string) string { return r.name + "_" + key }

// GetData returns the value for key and whether one was found. Tier failures
// are logged and absorbed; a nil fetcher skips its tier.
func (r *Repository[T]) GetData(ctx context.Context, key string, networkFetcher, localFetcher FetchFunc[T]) (T, bool) {
	var zero T
	if key == "" {
		r.log().WithField("repository", r.name).Warn("rejected lookup with empty key")
		tierResults.WithLabelValues(r.name, "rejected").Inc()
		return zero, false
	}
	ck := r.CacheKey(key)
	fields := logrus.Fields{"repository": r.name, "key": key}

	// An expired entry is dropped by the lookup but kept here as the last resort.
	var stale T
	haveStale := false
	if v, expired, ok := r.cache.Lookup(ck); ok {
		typed, isT := v.(T)
		switch {
		case !isT:
			r.log().WithFields(fields).Warnf("cached value has type %T, ignoring", v)
		case expired:
			stale, haveStale = typed, true
		default:
			tierResults.WithLabelValues(r.name, string(events.TierCache)).Inc()
			return typed, true
		}
	}

	if networkFetcher != nil && r.isOnline() {
		v, err := networkFetcher(ctx)
		if err == nil {
			r.cache.Set(ck, v, r.networkTTL)
			r.persist(ctx, ck, v, fields)
			r.updated(key, events.TierNetwork)
			return v, true
		}
		r.log().WithFields(fields).WithField("kind", apperr.KindOf(err).String()).WithError(err).Warn("network tier failed")
	}

	if localFetcher != nil {
		v, err := localFetcher(ctx)
		if err == nil {
			r.cache.Set(ck, v, r.localTTL)
			r.updated(key, events.TierLocal)
			return v, true
		}
		if apperr.KindOf(err) == apperr.KindCacheMiss {
			r.log().WithFields(fields).Debug("local tier has no entry")
		} else {
			r.log().WithFields(fields).WithError(err).Warn("local tier failed")
		}
	}

	if haveStale {
		r.log().WithFields(fields).Warn("serving stale cached data")
		tierResults.WithLabelValues(r.name, string(events.TierStale)).Inc()
		r.publish(events.StaleDataServedEvent{Repository: r.name, Key: key})
		return stale, true
	}

	tierResults.WithLabelValues(r.name, "miss").Inc()
	r.log().WithFields(fields).Debug("no tier produced a value")
	return zero, false
}

// Get resolves key through the repository's data source and local store.
func (r *Repository[T]) Get(ctx context.Context, key string) (T, bool) {
	var network, local FetchFunc[T]
	if r.source != nil {
		network = func(ctx context.Context) (T, error) { return r.source.Fetch(ctx, key) }
	}
	if r.store != nil {
		local = func(ctx context.Context) (T, error) { return r.loadLocal(ctx, r.CacheKey(key)) }
	}
	return r.GetData(ctx, key, network, local)
}

// Save writes value through to the cache and the local store.
func (r *Repository[T]) Save(ctx context.Context, key string, value T) error {
	if key == "" {
		return apperr.New(apperr.KindBadRequest, r.name, fmt.Errorf("empty key"))
	}
	ck := r.CacheKey(key)
	r.cache.Set(ck, value, r.networkTTL)
	if r.store != nil {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", ck, err)
		}
		if err := r.store.Save(ctx, ck, raw); err != nil {
			return fmt.Errorf("failed to persist %s: %w", ck, err)
		}
	}
	r.updated(key, events.TierSave)
	return nil
}

// Invalidate drops key from the cache. The local copy is kept for offline use.
func (r *Repository[T]) Invalidate(key string) {
	r.cache.Remove(r.CacheKey(key))
}

// InvalidateAll drops every cached entry of this repository.
func (r *Repository[T]) InvalidateAll() {
	r.cache.ClearByPrefix(r.name + "_")
}

func (r *Repository[T]) loadLocal(ctx context.Context, ck string) (T, error) {
	var zero T
	raw, ok, err := r.store.Load(ctx, ck)
	if err != nil {
		return zero, fmt.Errorf("failed to load %s: %w", ck, err)
	}
	if !ok {
		return zero, apperr.New(apperr.KindCacheMiss, ck, nil)
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, fmt.Errorf("failed to decode %s: %w", ck, err)
	}
	return v, nil
}

func (r *Repository[T]) persist(ctx context.Context, ck string, v T, fields logrus.Fields) {
	if r.store == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err == nil {
		err = r.store.Save(ctx, ck, raw)
	}
	if err != nil {
		r.log().WithFields(fields).WithError(err).Warn("failed to persist network result locally")
	}
}

func (r *Repository[T]) updated(key string, tier events.DataSourceTier) {
	tierResults.WithLabelValues(r.name, string(tier)).Inc()
	r.publish(events.DataUpdatedEvent{Repository: r.name, Key: key, Source: tier})
}

func (r *Repository[T]) isOnline() bool {
	return r.oracle == nil || r.oracle.IsOnline()
}

func (r *Repository[T]) publish(event any) {
	if r.publisher != nil {
		r.publisher.Publish(event)
	}
}

func (r *Repository[T]) log() logrus.FieldLogger {
	if r.logger == nil {
		return discard
	}
	return r.logger
}
