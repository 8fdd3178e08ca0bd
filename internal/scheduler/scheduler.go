// Package scheduler drives the refresh and publish cycles on their own
// cadences. Both jobs run from a single goroutine: the process is the only
// database writer and cycles never overlap.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"digest_bot/internal/pipeline"
	"digest_bot/internal/publisher"
	"digest_bot/internal/storage"
)

const sweepEvery = 24 * time.Hour

type refreshRunner interface {
	Refresh(ctx context.Context, chatID int64, now time.Time) (*pipeline.Stats, error)
}

type publishRunner interface {
	PublishNext(ctx context.Context, chatID int64, now time.Time, opts publisher.Options) ([]publisher.Result, error)
}

// Scheduler periodically ingests feeds and publishes queued items.
type Scheduler struct {
	store        storage.Storage
	refresher    refreshRunner
	selector     publishRunner
	chatID       int64
	refreshEvery time.Duration
	publishEvery time.Duration
	publishOpts  publisher.Options
	log          *slog.Logger
}

// New creates a Scheduler for the given chat and cadences.
func New(store storage.Storage, refresher refreshRunner, selector publishRunner,
	chatID int64, refreshEvery, publishEvery time.Duration, publishOpts publisher.Options, log *slog.Logger) *Scheduler {
	return &Scheduler{
		store:        store,
		refresher:    refresher,
		selector:     selector,
		chatID:       chatID,
		refreshEvery: refreshEvery,
		publishEvery: publishEvery,
		publishOpts:  publishOpts,
		log:          log,
	}
}

// Run starts the scheduler loop, blocking until ctx is cancelled. One refresh
// and one publish run immediately so a fresh deployment posts without waiting
// a full interval.
func (s *Scheduler) Run(ctx context.Context) {
	s.RunCycle(ctx)

	refresh := time.NewTicker(s.refreshEvery)
	defer refresh.Stop()
	publish := time.NewTicker(s.publishEvery)
	defer publish.Stop()
	sweep := time.NewTicker(sweepEvery)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-refresh.C:
			s.RefreshNow(ctx)
		case <-publish.C:
			s.PublishNow(ctx)
		case <-sweep.C:
			s.sweepSeen(ctx)
		}
	}
}

// RunCycle performs one refresh followed by one publish.
func (s *Scheduler) RunCycle(ctx context.Context) {
	s.RefreshNow(ctx)
	s.PublishNow(ctx)
}

// RefreshNow runs a single refresh cycle. Errors are logged, not fatal: a
// broken cycle should not stop the scheduler.
func (s *Scheduler) RefreshNow(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	stats, err := s.refresher.Refresh(ctx, s.chatID, time.Now().UTC())
	if err != nil {
		s.log.Error("refresh cycle", "error", err)
		return
	}
	s.log.Info("refresh cycle done",
		"fetched", stats.Fetched, "enqueued", stats.Enqueued,
		"filtered", stats.Filtered, "already_seen", stats.AlreadySeen,
		"source_errors", stats.SourceErrors)
}

// PublishNow runs a single publish cycle.
func (s *Scheduler) PublishNow(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	results, err := s.selector.PublishNext(ctx, s.chatID, time.Now().UTC(), s.publishOpts)
	if err != nil {
		s.log.Error("publish cycle", "error", err)
		return
	}
	for _, r := range results {
		if !r.Posted && r.Reason != publisher.ReasonDryRun {
			s.log.Info("publish cycle: nothing to post", "reason", r.Reason)
		}
	}
}

func (s *Scheduler) sweepSeen(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	n, err := s.store.SweepSeen(ctx)
	if err != nil {
		s.log.Error("sweep seen", "error", err)
		return
	}
	if n > 0 {
		s.log.Info("swept expired seen records", "count", n)
	}
}
