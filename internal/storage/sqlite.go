package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"digest_bot/internal/model"
	"digest_bot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// RegisterTopic finds or creates the topic for (chatID, threadID).
// Lookup first, insert only when absent; the UNIQUE(chat_id, thread_id)
// constraint remains as a backstop.
func (s *SQLite) RegisterTopic(ctx context.Context, chatID int64, threadID *int64, name string) (*model.Topic, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, chat_id, thread_id, name, enabled, last_post_at, created_at
		 FROM topics WHERE chat_id = ? AND thread_id IS ?`, chatID, threadID,
	)
	existing, err := scanTopic(row)
	if err == nil {
		return existing, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO topics (chat_id, thread_id, name, enabled, created_at) VALUES (?, ?, ?, 1, ?)`,
		chatID, threadID, name, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert topic: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	created, _ := time.Parse(timeLayout, now)
	return &model.Topic{
		ID:        id,
		ChatID:    chatID,
		ThreadID:  threadID,
		Name:      name,
		Enabled:   true,
		CreatedAt: created,
	}, nil
}

// GetTopic returns a single topic by its ID.
func (s *SQLite) GetTopic(ctx context.Context, id int64) (*model.Topic, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, chat_id, thread_id, name, enabled, last_post_at, created_at
		 FROM topics WHERE id = ?`, id,
	)
	t, err := scanTopic(row)
	if err != nil {
		return nil, fmt.Errorf("get topic: %w", err)
	}
	return t, nil
}

// ListTopics returns the chat's topics in creation order.
func (s *SQLite) ListTopics(ctx context.Context, chatID int64, enabledOnly bool) ([]model.Topic, error) {
	q := `SELECT id, chat_id, thread_id, name, enabled, last_post_at, created_at
	      FROM topics WHERE chat_id = ?`
	if enabledOnly {
		q += ` AND enabled = 1`
	}
	q += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, q, chatID)
	if err != nil {
		return nil, fmt.Errorf("query topics: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var topics []model.Topic
	for rows.Next() {
		t, err := scanTopic(rows)
		if err != nil {
			return nil, err
		}
		topics = append(topics, *t)
	}
	return topics, rows.Err()
}

// SetTopicEnabled toggles a topic's enabled flag.
func (s *SQLite) SetTopicEnabled(ctx context.Context, id int64, enabled bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE topics SET enabled = ? WHERE id = ?`, boolToInt(enabled), id,
	)
	if err != nil {
		return fmt.Errorf("set topic enabled: %w", err)
	}
	return nil
}

// RecordPublish sets the topic's last-publish timestamp.
func (s *SQLite) RecordPublish(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE topics SET last_post_at = ? WHERE id = ?`,
		at.UTC().Format(timeLayout), id,
	)
	if err != nil {
		return fmt.Errorf("record publish: %w", err)
	}
	return nil
}

// DeleteTopic removes a topic; its queue items go with it via cascade.
func (s *SQLite) DeleteTopic(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM topics WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete topic: %w", err)
	}
	return nil
}

// Enqueue inserts a queue item, reporting whether a row was actually added.
// A duplicate (topic_id, external_id) pair is ignored, not an error.
func (s *SQLite) Enqueue(ctx context.Context, item *model.QueueItem) (bool, error) {
	reasons, err := json.Marshal(item.Reasons)
	if err != nil {
		return false, fmt.Errorf("marshal reasons: %w", err)
	}

	createdAt := item.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	now := createdAt.UTC().Format(timeLayout)

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO content_queue
		     (topic_id, source, external_id, title, snippet, link, score, reasons_json, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.TopicID, item.Source, item.ExternalID, item.Title, item.Snippet,
		item.Link, item.Score, string(reasons), string(model.StatusNew), now,
	)
	if err != nil {
		return false, fmt.Errorf("insert queue item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("last insert id: %w", err)
	}
	item.ID = id
	item.Status = model.StatusNew
	item.CreatedAt, _ = time.Parse(timeLayout, now)
	return true, nil
}

// CountNew returns the number of status-new items in a topic's backlog.
func (s *SQLite) CountNew(ctx context.Context, topicID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM content_queue WHERE topic_id = ? AND status = ?`,
		topicID, string(model.StatusNew),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count new: %w", err)
	}
	return count, nil
}

// PeekBestNew selects the best new item for a topic without mutating anything.
// Ordering is score descending, then oldest first, then lowest id.
func (s *SQLite) PeekBestNew(ctx context.Context, topicID int64) (*model.QueueItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, topic_id, source, external_id, title, snippet, link, score, reasons_json, status, created_at, posted_at
		 FROM content_queue
		 WHERE topic_id = ? AND status = ?
		 ORDER BY score DESC, created_at ASC, id ASC
		 LIMIT 1`,
		topicID, string(model.StatusNew),
	)
	item, err := scanQueueItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// MarkPosted transitions one row from new to posted. Rows that are absent or
// already posted are left alone so retried publishes stay harmless.
func (s *SQLite) MarkPosted(ctx context.Context, topicID int64, externalID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE content_queue SET status = ?, posted_at = ?
		 WHERE topic_id = ? AND external_id = ? AND status = ?`,
		string(model.StatusPosted), at.UTC().Format(timeLayout),
		topicID, externalID, string(model.StatusNew),
	)
	if err != nil {
		return fmt.Errorf("mark posted: %w", err)
	}
	return nil
}

// SeenHas checks whether an item is marked seen and its TTL has not expired.
// Expiry is enforced here; sweeping stale rows is only an optimization.
func (s *SQLite) SeenHas(ctx context.Context, sourceKind, externalID string) (bool, error) {
	now := time.Now().UTC().Format(timeLayout)
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM seen WHERE source_kind = ? AND external_id = ? AND expires_at > ?`,
		sourceKind, externalID, now,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check seen: %w", err)
	}
	return count > 0, nil
}

// SeenMark upserts a seen record with expiry now+ttl (sliding TTL).
func (s *SQLite) SeenMark(ctx context.Context, sourceKind, externalID string, ttl time.Duration) error {
	expires := time.Now().UTC().Add(ttl).Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO seen (source_kind, external_id, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT (source_kind, external_id) DO UPDATE SET expires_at = excluded.expires_at`,
		sourceKind, externalID, expires,
	)
	if err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}

// SweepSeen removes expired seen rows.
func (s *SQLite) SweepSeen(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx, `DELETE FROM seen WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, fmt.Errorf("sweep seen: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTopic(row scannable) (*model.Topic, error) {
	var t model.Topic
	var threadID sql.NullInt64
	var enabled int
	var lastPost, created sql.NullString
	err := row.Scan(&t.ID, &t.ChatID, &threadID, &t.Name, &enabled, &lastPost, &created)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan topic: %w", err)
	}
	if threadID.Valid {
		v := threadID.Int64
		t.ThreadID = &v
	}
	t.Enabled = enabled == 1
	if lastPost.Valid {
		ts, _ := time.Parse(timeLayout, lastPost.String)
		t.LastPostAt = &ts
	}
	if created.Valid {
		t.CreatedAt, _ = time.Parse(timeLayout, created.String)
	}
	return &t, nil
}

func scanQueueItem(row scannable) (*model.QueueItem, error) {
	var it model.QueueItem
	var status, reasonsJSON string
	var created, posted sql.NullString
	err := row.Scan(&it.ID, &it.TopicID, &it.Source, &it.ExternalID, &it.Title,
		&it.Snippet, &it.Link, &it.Score, &reasonsJSON, &status, &created, &posted)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan queue item: %w", err)
	}
	it.Status = model.ItemStatus(status)
	if reasonsJSON != "" {
		_ = json.Unmarshal([]byte(reasonsJSON), &it.Reasons)
	}
	if created.Valid {
		it.CreatedAt, _ = time.Parse(timeLayout, created.String)
	}
	if posted.Valid {
		ts, _ := time.Parse(timeLayout, posted.String)
		it.PostedAt = &ts
	}
	return &it, nil
}
