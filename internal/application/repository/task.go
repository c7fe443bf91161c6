package repository

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/avatarctic/resilient-client/go/internal/core/domain/events"
)

// DefaultPrefetchConcurrency bounds parallel fetches in a prefetch.
const DefaultPrefetchConcurrency = 4

// Task is a supervised background job. Its outcome is observable through
// Done and Err instead of being fire-and-forget.
type Task struct {
	done   chan struct{}
	err    error
	cancel context.CancelFunc
}

// Go runs fns concurrently, at most limit at a time (limit <= 0 is unbounded).
// The first error cancels the others and becomes the task's error.
func Go(ctx context.Context, limit int, fns ...func(ctx context.Context) error) *Task {
	return start(ctx, limit, fns, nil)
}

// start runs fns and, if all of them succeed, then before closing Done.
func start(ctx context.Context, limit int, fns []func(ctx context.Context) error, then func()) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{done: make(chan struct{}), cancel: cancel}

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	go func() {
		defer close(t.done)
		defer cancel()
		for _, fn := range fns {
			g.Go(func() error { return fn(gctx) })
		}
		t.err = g.Wait()
		if t.err == nil && then != nil {
			then()
		}
	}()
	return t
}

// Done is closed once every function has returned.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err is nil until Done is closed.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the task finishes or ctx is cancelled.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Task) Cancel() { t.cancel() }

// PrefetchResult lists which keys a prefetch resolved.
type PrefetchResult struct {
	Loaded  []string
	Missing []string
}

// Prefetch warms the cache for keys in the background. Misses are reported,
// not treated as failures; the task only fails when ctx is cancelled.
// onDone, when non-nil, receives the result before the task completes.
func (r *Repository[T]) Prefetch(ctx context.Context, keys []string, onDone func(PrefetchResult)) *Task {
	var mu sync.Mutex
	var result PrefetchResult

	fns := make([]func(context.Context) error, 0, len(keys))
	for _, key := range keys {
		fns = append(fns, func(ctx context.Context) error {
			_, ok := r.Get(ctx, key)
			if err := ctx.Err(); err != nil {
				return err
			}
			mu.Lock()
			if ok {
				result.Loaded = append(result.Loaded, key)
			} else {
				result.Missing = append(result.Missing, key)
			}
			mu.Unlock()
			return nil
		})
	}

	return start(ctx, DefaultPrefetchConcurrency, fns, func() {
		sort.Strings(result.Loaded)
		sort.Strings(result.Missing)
		r.publish(events.PrefetchCompletedEvent{Repository: r.name, Loaded: result.Loaded, Missing: result.Missing})
		if onDone != nil {
			onDone(result)
		}
	})
}
