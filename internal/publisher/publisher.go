// Package publisher selects the next queued item to publish and delivers it.
// Topic selection is fair: topics that never posted come first, then the one
// that has waited longest. Backlog size is never a factor.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"digest_bot/internal/model"
	"digest_bot/internal/notify"
	"digest_bot/internal/storage"
)

// ErrNoNotifier is returned when a live publish is requested but the
// Selector was built without a notifier (dry-run deployments).
var ErrNoNotifier = errors.New("live publish requires a notifier")

// Outcome reasons reported in Result.
const (
	ReasonPosted           = "posted"
	ReasonDryRun           = "dry_run"
	ReasonNoEligibleTopics = "no_eligible_topics"
	ReasonEmptyPickedTopic = "empty_queue_for_picked_topic"
)

// Options controls one publish invocation.
type Options struct {
	// DryRun selects and logs a candidate without sending anything or
	// mutating any state.
	DryRun bool
	// MaxItems bounds how many items a single invocation publishes.
	// Defaults to 1.
	MaxItems int
}

// Result describes one selection attempt. Posted is true only when a live
// publish was committed.
type Result struct {
	Posted     bool
	Reason     string
	TopicID    int64
	TopicName  string
	ItemID     int64
	ExternalID string
	Title      string
	Link       string
	Score      int
}

// Selector picks and publishes queued items.
type Selector struct {
	store    storage.Storage
	notifier notify.Notifier
	log      *slog.Logger
}

// New creates a Selector. The notifier may be nil when every invocation is a
// dry run.
func New(store storage.Storage, notifier notify.Notifier, log *slog.Logger) *Selector {
	return &Selector{store: store, notifier: notifier, log: log}
}

// PublishNext publishes up to opts.MaxItems queued items for the chat. On a
// notify failure the item stays new and the topic's last-post timestamp is
// untouched, so the same item is retried on the next cycle.
func (s *Selector) PublishNext(ctx context.Context, chatID int64, now time.Time, opts Options) ([]Result, error) {
	if !opts.DryRun && s.notifier == nil {
		return nil, ErrNoNotifier
	}

	maxItems := opts.MaxItems
	if maxItems < 1 {
		maxItems = 1
	}

	var results []Result
	for i := 0; i < maxItems; i++ {
		topic, err := s.pickTopic(ctx, chatID)
		if err != nil {
			return results, err
		}
		if topic == nil {
			results = append(results, Result{Reason: ReasonNoEligibleTopics})
			break
		}

		item, err := s.store.PeekBestNew(ctx, topic.ID)
		if err != nil {
			return results, fmt.Errorf("peek best new: %w", err)
		}
		if item == nil {
			results = append(results, Result{Reason: ReasonEmptyPickedTopic, TopicID: topic.ID, TopicName: topic.Name})
			break
		}

		if opts.DryRun {
			s.log.Info("dry run candidate",
				"topic", topic.Name, "item_id", item.ID,
				"external_id", item.ExternalID, "score", item.Score, "title", item.Title)
			results = append(results, resultFor(ReasonDryRun, false, topic, item))
			// Without a commit the next iteration would pick the same item.
			break
		}

		text := RenderItem(topic, item)
		dest := notify.Destination{ChatID: topic.ChatID, ThreadID: topic.ThreadID}
		if err := s.notifier.Send(ctx, dest, text); err != nil {
			return results, fmt.Errorf("notify topic %q: %w", topic.Name, err)
		}

		if err := s.store.MarkPosted(ctx, topic.ID, item.ExternalID, now); err != nil {
			return results, fmt.Errorf("mark posted: %w", err)
		}
		if err := s.store.RecordPublish(ctx, topic.ID, now); err != nil {
			return results, fmt.Errorf("record publish: %w", err)
		}

		s.log.Info("published",
			"topic", topic.Name, "item_id", item.ID, "external_id", item.ExternalID, "score", item.Score)
		results = append(results, resultFor(ReasonPosted, true, topic, item))
	}
	return results, nil
}

// pickTopic returns the fairest enabled topic that has new items, or nil when
// none qualifies. Never-posted topics come first, then ascending last-post
// time, then ascending creation time.
func (s *Selector) pickTopic(ctx context.Context, chatID int64) (*model.Topic, error) {
	topics, err := s.store.ListTopics(ctx, chatID, true)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}

	var candidates []model.Topic
	for _, topic := range topics {
		n, err := s.store.CountNew(ctx, topic.ID)
		if err != nil {
			return nil, fmt.Errorf("count new: %w", err)
		}
		if n > 0 {
			candidates = append(candidates, topic)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i].LastPostAt, candidates[j].LastPostAt
		switch {
		case a == nil && b != nil:
			return true
		case a != nil && b == nil:
			return false
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	return &candidates[0], nil
}

func resultFor(reason string, posted bool, topic *model.Topic, item *model.QueueItem) Result {
	return Result{
		Posted:     posted,
		Reason:     reason,
		TopicID:    topic.ID,
		TopicName:  topic.Name,
		ItemID:     item.ID,
		ExternalID: item.ExternalID,
		Title:      item.Title,
		Link:       item.Link,
		Score:      item.Score,
	}
}
