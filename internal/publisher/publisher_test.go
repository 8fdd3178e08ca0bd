package publisher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"digest_bot/internal/model"
	"digest_bot/internal/notify"
	"digest_bot/internal/storage"
)

type sentMessage struct {
	Dest notify.Destination
	Text string
}

type fakeNotifier struct {
	sent []sentMessage
	err  error
}

func (f *fakeNotifier) Send(_ context.Context, dest notify.Destination, text string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{Dest: dest, Text: text})
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustRegister(t *testing.T, s *storage.SQLite, chatID int64, name string) *model.Topic {
	t.Helper()
	topic, err := s.RegisterTopic(context.Background(), chatID, nil, name)
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	return topic
}

func mustEnqueue(t *testing.T, s *storage.SQLite, topicID int64, externalID string, score int, createdAt time.Time) {
	t.Helper()
	added, err := s.Enqueue(context.Background(), &model.QueueItem{
		TopicID:    topicID,
		Source:     "rss",
		ExternalID: externalID,
		Title:      "Item " + externalID,
		Score:      score,
		CreatedAt:  createdAt,
	})
	if err != nil {
		t.Fatalf("enqueue %s: %v", externalID, err)
	}
	if !added {
		t.Fatalf("enqueue %s: duplicate", externalID)
	}
}

func TestPublishNextFairness(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	enq := now.Add(-time.Hour)

	// Backlog sizes are deliberately inverted relative to the expected pick
	// order: fairness goes by posting history, never by queue depth.
	never := mustRegister(t, store, 1, "Never Posted")
	stale := mustRegister(t, store, 1, "Stale")
	fresh := mustRegister(t, store, 1, "Fresh")

	mustEnqueue(t, store, never.ID, "n1", 1, enq)
	mustEnqueue(t, store, stale.ID, "s1", 1, enq)
	mustEnqueue(t, store, stale.ID, "s2", 1, enq)
	for i, ext := range []string{"f1", "f2", "f3", "f4", "f5"} {
		mustEnqueue(t, store, fresh.ID, ext, i, enq)
	}

	if err := store.RecordPublish(ctx, stale.ID, now.Add(-48*time.Hour)); err != nil {
		t.Fatalf("record publish: %v", err)
	}
	if err := store.RecordPublish(ctx, fresh.ID, now.Add(-time.Hour)); err != nil {
		t.Fatalf("record publish: %v", err)
	}

	fn := &fakeNotifier{}
	sel := New(store, fn, testLogger())
	results, err := sel.PublishNext(ctx, 1, now, Options{MaxItems: 3})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	var order []string
	for _, r := range results {
		if !r.Posted || r.Reason != ReasonPosted {
			t.Errorf("result %+v, want a committed post", r)
		}
		order = append(order, r.TopicName)
	}
	want := []string{"Never Posted", "Stale", "Fresh"}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Errorf("pick order mismatch (-want +got):\n%s", diff)
	}
	if len(fn.sent) != 3 {
		t.Errorf("sent %d messages, want 3", len(fn.sent))
	}
}

func TestPublishNextDryRun(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	topic := mustRegister(t, store, 1, "General")
	mustEnqueue(t, store, topic.ID, "a", 5, now.Add(-time.Hour))

	// A dry run must never reach the notifier.
	sel := New(store, nil, testLogger())
	results, err := sel.PublishNext(ctx, 1, now, Options{DryRun: true, MaxItems: 3})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	r := results[0]
	if r.Posted || r.Reason != ReasonDryRun {
		t.Errorf("result %+v, want unposted dry_run", r)
	}
	if r.ExternalID != "a" || r.TopicID != topic.ID {
		t.Errorf("result %+v, want candidate a for topic %d", r, topic.ID)
	}

	// No state changed: the item is still new and the topic never posted.
	n, err := store.CountNew(ctx, topic.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("count new = %d, want 1", n)
	}
	got, err := store.GetTopic(ctx, topic.ID)
	if err != nil {
		t.Fatalf("get topic: %v", err)
	}
	if got.LastPostAt != nil {
		t.Errorf("last post at = %v, want nil", got.LastPostAt)
	}
}

func TestPublishNextCommitsState(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	topic := mustRegister(t, store, 1, "General")
	mustEnqueue(t, store, topic.ID, "a", 5, now.Add(-time.Hour))
	mustEnqueue(t, store, topic.ID, "b", 3, now.Add(-time.Hour))

	fn := &fakeNotifier{}
	sel := New(store, fn, testLogger())
	results, err := sel.PublishNext(ctx, 1, now, Options{})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(results) != 1 || results[0].ExternalID != "a" {
		t.Fatalf("results %+v, want the higher-scored item posted", results)
	}

	if len(fn.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(fn.sent))
	}
	if fn.sent[0].Dest.ChatID != topic.ChatID {
		t.Errorf("sent to chat %d, want %d", fn.sent[0].Dest.ChatID, topic.ChatID)
	}
	if !strings.Contains(fn.sent[0].Text, "Item a") {
		t.Errorf("message %q does not mention the item title", fn.sent[0].Text)
	}

	n, _ := store.CountNew(ctx, topic.ID)
	if n != 1 {
		t.Errorf("count new = %d, want 1 remaining", n)
	}
	got, err := store.GetTopic(ctx, topic.ID)
	if err != nil {
		t.Fatalf("get topic: %v", err)
	}
	if got.LastPostAt == nil || !got.LastPostAt.Equal(now) {
		t.Errorf("last post at = %v, want %v", got.LastPostAt, now)
	}
}

func TestPublishNextNotifyFailure(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	topic := mustRegister(t, store, 1, "General")
	mustEnqueue(t, store, topic.ID, "a", 5, now.Add(-time.Hour))

	sendErr := errors.New("telegram unavailable")
	sel := New(store, &fakeNotifier{err: sendErr}, testLogger())
	_, err := sel.PublishNext(ctx, 1, now, Options{})
	if !errors.Is(err, sendErr) {
		t.Fatalf("err = %v, want wrapped send error", err)
	}

	// Nothing committed: the same item is retried on the next cycle.
	item, err := store.PeekBestNew(ctx, topic.ID)
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if item == nil || item.ExternalID != "a" {
		t.Fatalf("peek after failure = %+v, want item a still new", item)
	}
	got, _ := store.GetTopic(ctx, topic.ID)
	if got.LastPostAt != nil {
		t.Errorf("last post at = %v, want nil after failed send", got.LastPostAt)
	}

	fn := &fakeNotifier{}
	sel = New(store, fn, testLogger())
	results, err := sel.PublishNext(ctx, 1, now.Add(time.Hour), Options{})
	if err != nil {
		t.Fatalf("retry publish: %v", err)
	}
	if len(results) != 1 || results[0].ExternalID != "a" || !results[0].Posted {
		t.Errorf("retry results %+v, want item a posted", results)
	}
}

func TestPublishNextWithoutNotifier(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	topic := mustRegister(t, store, 1, "General")
	mustEnqueue(t, store, topic.ID, "a", 5, now.Add(-time.Hour))

	// A selector built for dry-run deployments has no notifier. A live call
	// must fail loud instead of dereferencing it.
	sel := New(store, nil, testLogger())
	_, err := sel.PublishNext(ctx, 1, now, Options{})
	if !errors.Is(err, ErrNoNotifier) {
		t.Fatalf("err = %v, want ErrNoNotifier", err)
	}

	// Nothing was selected or committed.
	n, _ := store.CountNew(ctx, topic.ID)
	if n != 1 {
		t.Errorf("count new = %d, want 1", n)
	}
	got, _ := store.GetTopic(ctx, topic.ID)
	if got.LastPostAt != nil {
		t.Errorf("last post at = %v, want nil", got.LastPostAt)
	}
}

func TestPublishNextNoEligibleTopics(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	// An enabled topic with an empty queue and a disabled topic with items:
	// neither is eligible.
	mustRegister(t, store, 1, "Empty")
	paused := mustRegister(t, store, 1, "Paused")
	mustEnqueue(t, store, paused.ID, "p1", 5, now.Add(-time.Hour))
	if err := store.SetTopicEnabled(ctx, paused.ID, false); err != nil {
		t.Fatalf("disable: %v", err)
	}

	fn := &fakeNotifier{}
	sel := New(store, fn, testLogger())
	results, err := sel.PublishNext(ctx, 1, now, Options{MaxItems: 2})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	want := []Result{{Reason: ReasonNoEligibleTopics}}
	if diff := cmp.Diff(want, results); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
	if len(fn.sent) != 0 {
		t.Errorf("sent %d messages, want 0", len(fn.sent))
	}
}
