// Package model defines the domain types used across the application.
package model

import "time"

// Topic is a named destination inside a chat: either a forum thread or the
// general chat when ThreadID is nil. Each topic owns a backlog of queued items.
type Topic struct {
	ID         int64
	ChatID     int64
	ThreadID   *int64
	Name       string
	Enabled    bool
	LastPostAt *time.Time
	CreatedAt  time.Time
}

// ItemStatus is the lifecycle state of a queued item.
type ItemStatus string

// Queue item statuses. An item starts as new and transitions to posted
// exactly once; it never reverts.
const (
	StatusNew    ItemStatus = "new"
	StatusPosted ItemStatus = "posted"
)

// QueueItem is a scored candidate awaiting publication in a topic's backlog.
// (TopicID, ExternalID) is unique; a second enqueue of the same pair is a
// no-op.
type QueueItem struct {
	ID         int64
	TopicID    int64
	Source     string
	ExternalID string
	Title      string
	Snippet    string
	Link       string
	Score      int
	Reasons    []string
	Status     ItemStatus
	CreatedAt  time.Time
	PostedAt   *time.Time
}

// SeenRecord suppresses re-ingestion of an item independently of any topic.
// A record past its expiry is treated as absent.
type SeenRecord struct {
	SourceKind string
	ExternalID string
	ExpiresAt  time.Time
}

// RawItem is a content item as delivered by a source fetcher, before
// filtering and scoring.
type RawItem struct {
	ExternalID  string
	Title       string
	Summary     string
	Link        string
	SourceKind  string
	PublishedAt *time.Time
}
