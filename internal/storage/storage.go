// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"time"

	"digest_bot/internal/model"
)

// Storage is the interface for all persistence operations. It covers the
// three stores the pipeline and publisher work against: the topic registry,
// the per-topic content queue, and the seen-item memory.
type Storage interface {
	// RegisterTopic creates a topic for (chatID, threadID) or returns the
	// existing one. Registering the same pair twice never produces two rows.
	RegisterTopic(ctx context.Context, chatID int64, threadID *int64, name string) (*model.Topic, error)
	GetTopic(ctx context.Context, id int64) (*model.Topic, error)
	// ListTopics returns the chat's topics in creation order (id ascending).
	ListTopics(ctx context.Context, chatID int64, enabledOnly bool) ([]model.Topic, error)
	SetTopicEnabled(ctx context.Context, id int64, enabled bool) error
	// RecordPublish sets the topic's last-publish timestamp. Called only on a
	// real (non-dry-run) publish.
	RecordPublish(ctx context.Context, id int64, at time.Time) error
	DeleteTopic(ctx context.Context, id int64) error

	// Enqueue inserts a queue item with status new. Returns false without
	// error when (topic_id, external_id) already exists.
	Enqueue(ctx context.Context, item *model.QueueItem) (bool, error)
	CountNew(ctx context.Context, topicID int64) (int, error)
	// PeekBestNew returns the highest-score new item for the topic, ties
	// broken by oldest creation time then lowest id. Returns nil when the
	// backlog is empty. Never mutates anything.
	PeekBestNew(ctx context.Context, topicID int64) (*model.QueueItem, error)
	// MarkPosted transitions a row from new to posted. No-op when the row is
	// absent or already posted.
	MarkPosted(ctx context.Context, topicID int64, externalID string, at time.Time) error

	// SeenHas reports whether (sourceKind, externalID) is marked and not yet
	// expired. An expired record counts as absent.
	SeenHas(ctx context.Context, sourceKind, externalID string) (bool, error)
	// SeenMark upserts a seen record with expiry now+ttl. Re-marking slides
	// the expiry forward, it does not duplicate the record.
	SeenMark(ctx context.Context, sourceKind, externalID string, ttl time.Duration) error
	// SweepSeen deletes expired seen rows and returns how many were removed.
	SweepSeen(ctx context.Context) (int64, error)

	Close() error
}
