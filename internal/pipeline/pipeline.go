// Package pipeline implements the refresh cycle: fetch candidate items from
// the configured sources, filter and score them, deduplicate against the seen
// memory, and enqueue survivors into per-topic backlogs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"digest_bot/internal/fetcher"
	"digest_bot/internal/model"
	"digest_bot/internal/storage"
)

// ErrAllSourcesFailed is returned when not a single source produced items.
// Individual source failures are isolated and only logged.
var ErrAllSourcesFailed = errors.New("all sources failed")

// Fetcher pulls raw items from one upstream source.
type Fetcher interface {
	Fetch(ctx context.Context, src fetcher.Source) ([]model.RawItem, error)
}

// Rules classifies raw items: relevance filtering, scoring, and routing to a
// topic key.
type Rules interface {
	Relevant(item model.RawItem) bool
	Score(item model.RawItem) (int, []string)
	Topic(item model.RawItem) string
}

// TopicSpec declares a destination the pipeline should route into.
type TopicSpec struct {
	Key    string `yaml:"key"`
	Thread *int64 `yaml:"thread"`
	Name   string `yaml:"name"`
}

// Options tunes a refresh cycle. Zero values get the defaults below.
type Options struct {
	Sources []fetcher.Source
	Topics  []TopicSpec

	// MaxAge rejects items older than this; items without a publish date are
	// always rejected.
	MaxAge   time.Duration
	MinScore int

	// TopicBacklogCap stops enqueueing into a topic whose new backlog has
	// reached this size. CycleEnqueueCap bounds total enqueues per cycle.
	TopicBacklogCap int
	CycleEnqueueCap int

	// SeenTTL applies to accepted items, SeenTTLRejected to items the filter
	// turned away. Rejected falls back to SeenTTL when unset.
	SeenTTL         time.Duration
	SeenTTLRejected time.Duration
}

const (
	defaultMaxAge          = 120 * 24 * time.Hour
	defaultTopicBacklogCap = 80
	defaultCycleEnqueueCap = 30
	defaultSeenTTL         = 30 * 24 * time.Hour
)

func (o *Options) applyDefaults() {
	if o.MaxAge == 0 {
		o.MaxAge = defaultMaxAge
	}
	if o.TopicBacklogCap == 0 {
		o.TopicBacklogCap = defaultTopicBacklogCap
	}
	if o.CycleEnqueueCap == 0 {
		o.CycleEnqueueCap = defaultCycleEnqueueCap
	}
	if o.SeenTTL == 0 {
		o.SeenTTL = defaultSeenTTL
	}
	if o.SeenTTLRejected == 0 {
		o.SeenTTLRejected = o.SeenTTL
	}
}

// Stats reports what one refresh cycle did.
type Stats struct {
	TopicsSeen   int
	Fetched      int
	Filtered     int
	AlreadySeen  int
	Enqueued     int
	Deduped      int
	SkippedFull  int
	SourceErrors int
}

// Refresher runs refresh cycles against a storage backend.
type Refresher struct {
	store storage.Storage
	fetch Fetcher
	rules Rules
	opts  Options
	log   *slog.Logger
}

// New creates a Refresher. Missing option values get defaults.
func New(store storage.Storage, fetch Fetcher, rules Rules, opts Options, log *slog.Logger) (*Refresher, error) {
	if len(opts.Sources) == 0 {
		return nil, fmt.Errorf("pipeline: at least one source is required")
	}
	if len(opts.Topics) == 0 {
		return nil, fmt.Errorf("pipeline: at least one topic is required")
	}
	opts.applyDefaults()
	return &Refresher{store: store, fetch: fetch, rules: rules, opts: opts, log: log}, nil
}

// Refresh runs one full cycle for the chat. Running it twice over an
// unchanged upstream feed enqueues nothing the second time.
//
// A failing source does not abort the cycle; the cycle errors only when
// every source failed or on a storage error.
func (r *Refresher) Refresh(ctx context.Context, chatID int64, now time.Time) (*Stats, error) {
	stats := &Stats{}

	topics := make(map[string]*model.Topic, len(r.opts.Topics))
	counts := make(map[int64]int, len(r.opts.Topics))
	for _, spec := range r.opts.Topics {
		topic, err := r.store.RegisterTopic(ctx, chatID, spec.Thread, spec.Name)
		if err != nil {
			return stats, fmt.Errorf("register topic %q: %w", spec.Key, err)
		}
		topics[spec.Key] = topic
		n, err := r.store.CountNew(ctx, topic.ID)
		if err != nil {
			return stats, fmt.Errorf("count new for topic %q: %w", spec.Key, err)
		}
		counts[topic.ID] = n
	}
	stats.TopicsSeen = len(topics)

	enqueued := 0
	var fetchErrs []error

sources:
	for _, src := range r.opts.Sources {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		items, err := r.fetch.Fetch(ctx, src)
		if err != nil {
			r.log.Error("fetch source", "source", src.Name, "url", src.URL, "error", err)
			stats.SourceErrors++
			fetchErrs = append(fetchErrs, fmt.Errorf("%s: %w", src.Name, err))
			continue
		}

		for _, item := range items {
			if enqueued >= r.opts.CycleEnqueueCap {
				r.log.Info("cycle enqueue cap reached", "cap", r.opts.CycleEnqueueCap)
				break sources
			}
			stats.Fetched++

			if err := r.process(ctx, item, now, topics, counts, &enqueued, stats); err != nil {
				return stats, err
			}
		}
	}

	if len(fetchErrs) == len(r.opts.Sources) && len(fetchErrs) > 0 {
		return stats, fmt.Errorf("%w: %w", ErrAllSourcesFailed, errors.Join(fetchErrs...))
	}

	r.log.Info("refresh cycle done",
		"fetched", stats.Fetched, "filtered", stats.Filtered,
		"already_seen", stats.AlreadySeen, "enqueued", stats.Enqueued,
		"deduped", stats.Deduped, "skipped_full", stats.SkippedFull,
		"source_errors", stats.SourceErrors)
	return stats, nil
}

func (r *Refresher) process(ctx context.Context, item model.RawItem, now time.Time,
	topics map[string]*model.Topic, counts map[int64]int, enqueued *int, stats *Stats) error {

	// Rejected items are marked seen too, so a stable feed stops producing
	// work after the first cycle.
	if !r.fresh(item, now) || !r.rules.Relevant(item) {
		stats.Filtered++
		return r.markSeen(ctx, item, r.opts.SeenTTLRejected)
	}

	seen, err := r.store.SeenHas(ctx, item.SourceKind, item.ExternalID)
	if err != nil {
		return fmt.Errorf("check seen: %w", err)
	}
	if seen {
		stats.AlreadySeen++
		return nil
	}

	score, reasons := r.rules.Score(item)
	if score < r.opts.MinScore {
		stats.Filtered++
		return r.markSeen(ctx, item, r.opts.SeenTTLRejected)
	}

	key := r.rules.Topic(item)
	topic, ok := topics[key]
	if !ok {
		r.log.Warn("no topic configured for key", "key", key, "title", item.Title)
		stats.Filtered++
		return r.markSeen(ctx, item, r.opts.SeenTTLRejected)
	}

	// A full backlog skips the item without marking it seen, so it can still
	// be ingested once the backlog drains.
	if counts[topic.ID] >= r.opts.TopicBacklogCap {
		stats.SkippedFull++
		return nil
	}

	inserted, err := r.store.Enqueue(ctx, &model.QueueItem{
		TopicID:    topic.ID,
		Source:     item.SourceKind,
		ExternalID: item.ExternalID,
		Title:      item.Title,
		Snippet:    item.Summary,
		Link:       item.Link,
		Score:      score,
		Reasons:    reasons,
		CreatedAt:  now,
	})
	if err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	if inserted {
		stats.Enqueued++
		counts[topic.ID]++
		*enqueued++
	} else {
		stats.Deduped++
	}

	return r.markSeen(ctx, item, r.opts.SeenTTL)
}

func (r *Refresher) markSeen(ctx context.Context, item model.RawItem, ttl time.Duration) error {
	if err := r.store.SeenMark(ctx, item.SourceKind, item.ExternalID, ttl); err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}

func (r *Refresher) fresh(item model.RawItem, now time.Time) bool {
	if item.PublishedAt == nil {
		return false
	}
	return now.Sub(*item.PublishedAt) <= r.opts.MaxAge
}
