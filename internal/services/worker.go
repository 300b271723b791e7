package services

import (
	"context"
	"sync"
	"time"

	"github.com/elecmate/rams/internal/logger"
	"github.com/elecmate/rams/internal/metrics"
)

// Worker defaults
const (
	DefaultPollInterval = 5 * time.Second
	DefaultBatchSize    = 5
	DefaultReapInterval = time.Hour
)

// CacheReaper deletes expired partial cache entries
type CacheReaper interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// LaunchWorker polls for pending jobs and runs them one by one until ctx is
// done.
func LaunchWorker(ctx context.Context, wg *sync.WaitGroup, jobService *Job, interval time.Duration, batch int) {
	defer wg.Done()
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	logger.Info("Worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("Worker received shutdown signal, stopping...")
			return
		default:
		}

		sweep(ctx, jobService, batch)

		select {
		case <-ctx.Done():
			logger.Info("Worker received shutdown signal, stopping...")
			return
		case <-time.After(interval):
		}
	}
}

// LaunchCacheReaper deletes expired partial cache entries every interval
// until ctx is done. It runs regardless of the dispatch mode.
func LaunchCacheReaper(ctx context.Context, wg *sync.WaitGroup, reaper CacheReaper, interval time.Duration) {
	defer wg.Done()
	if interval <= 0 {
		interval = DefaultReapInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		reapExpired(ctx, reaper)

		select {
		case <-ctx.Done():
			logger.Info("Cache reaper received shutdown signal, stopping...")
			return
		case <-ticker.C:
		}
	}
}

func reapExpired(ctx context.Context, reaper CacheReaper) {
	if ctx.Err() != nil {
		return
	}
	n, err := reaper.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		logger.Errorf("Cache reaper error: %v", err)
		return
	}
	if n > 0 {
		metrics.AddCacheEntriesReaped(n)
		logger.Infof("Cache reaper deleted %d expired entries", n)
	}
}

func sweep(ctx context.Context, jobService *Job, batch int) {
	jobs, err := jobService.ListPending(ctx, batch)
	if err != nil {
		logger.Errorf("Worker error fetching jobs: %v", err)
		return
	}
	if len(jobs) == 0 {
		logger.Debug("Worker: No jobs to process")
		return
	}
	logger.Infof("Worker fetched %d jobs", len(jobs))

	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		resp := jobService.Run(ctx, job.ID)
		entry := logger.WithJob(job.ID).WithField("success", resp.Success)
		if resp.Error != "" {
			entry = entry.WithField("error", resp.Error)
		}
		entry.Info("Worker finished job")
	}
}
