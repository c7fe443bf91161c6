package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/avatarctic/resilient-client/go/internal/application/repository"
)

// Prefetcher is the part of a repository the warmup needs.
type Prefetcher interface {
	Name() string
	Prefetch(ctx context.Context, keys []string, onDone func(repository.PrefetchResult)) *repository.Task
}

type warmupTarget struct {
	repo Prefetcher
	keys []string
}

// WarmupService loads configured keys into the cache at start-up.
type WarmupService struct {
	targets []warmupTarget
	logger  *logrus.Logger
}

func NewWarmupService(logger *logrus.Logger) *WarmupService {
	return &WarmupService{logger: logger}
}

// Register adds keys to prefetch from repo. Empty key lists are ignored.
func (s *WarmupService) Register(repo Prefetcher, keys []string) {
	if repo == nil || len(keys) == 0 {
		return
	}
	s.targets = append(s.targets, warmupTarget{repo: repo, keys: keys})
}

// Start prefetches every registered target concurrently. The returned task
// completes when all of them have finished.
func (s *WarmupService) Start(ctx context.Context) *repository.Task {
	fns := make([]func(context.Context) error, 0, len(s.targets))
	for _, target := range s.targets {
		fns = append(fns, func(ctx context.Context) error {
			task := target.repo.Prefetch(ctx, target.keys, func(res repository.PrefetchResult) {
				if s.logger != nil {
					s.logger.WithFields(logrus.Fields{
						"repository": target.repo.Name(),
						"loaded":     len(res.Loaded),
						"missing":    res.Missing,
					}).Info("warmup finished")
				}
			})
			return task.Wait(ctx)
		})
	}
	return repository.Go(ctx, 0, fns...)
}
