package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"digest_bot/internal/pipeline"
)

const validPipeline = `
sources:
  - kind: rss
    name: digest
    url: https://example.com/feed
topics:
  - key: general
    name: General
  - key: japan
    thread: 10
    name: Japan
rules:
  include: [onsen, hot spring]
  exclude: [wastewater]
  weights:
    - term: onsen
      points: 2
  min_score: 1
  routes:
    - term: japan
      topic: japan
  default_topic: general
max_age_days: 90
topic_backlog_cap: 50
cycle_enqueue_cap: 20
seen_ttl_days: 14
`

func writePipeline(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadPipeline(t *testing.T) {
	p, err := LoadPipeline(writePipeline(t, validPipeline))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if len(p.Sources) != 1 || p.Sources[0].Kind != "rss" {
		t.Errorf("unexpected sources: %+v", p.Sources)
	}
	if len(p.Topics) != 2 {
		t.Fatalf("expected 2 topics, got %d", len(p.Topics))
	}
	if p.Topics[1].Thread == nil || *p.Topics[1].Thread != 10 {
		t.Errorf("expected japan thread 10, got %v", p.Topics[1].Thread)
	}

	want := pipeline.Options{
		Sources:         p.Sources,
		Topics:          p.Topics,
		MaxAge:          90 * 24 * time.Hour,
		MinScore:        1,
		TopicBacklogCap: 50,
		CycleEnqueueCap: 20,
		SeenTTL:         14 * 24 * time.Hour,
	}
	got := p.Options()
	if got.MaxAge != want.MaxAge || got.MinScore != want.MinScore ||
		got.TopicBacklogCap != want.TopicBacklogCap ||
		got.CycleEnqueueCap != want.CycleEnqueueCap ||
		got.SeenTTL != want.SeenTTL || got.SeenTTLRejected != 0 {
		t.Errorf("options mismatch: got %+v", got)
	}
}

func TestLoadPipelineErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "no sources", content: `
topics:
  - key: general
rules:
  include: [onsen]
  default_topic: general
`},
		{name: "source without url", content: `
sources:
  - kind: rss
topics:
  - key: general
rules:
  include: [onsen]
  default_topic: general
`},
		{name: "no topics", content: `
sources:
  - kind: rss
    url: https://example.com/feed
rules:
  include: [onsen]
  default_topic: general
`},
		{name: "duplicate topic key", content: `
sources:
  - kind: rss
    url: https://example.com/feed
topics:
  - key: general
  - key: general
rules:
  include: [onsen]
  default_topic: general
`},
		{name: "default topic not configured", content: `
sources:
  - kind: rss
    url: https://example.com/feed
topics:
  - key: general
rules:
  include: [onsen]
  default_topic: missing
`},
		{name: "invalid rules", content: `
sources:
  - kind: rss
    url: https://example.com/feed
topics:
  - key: general
rules:
  default_topic: general
`},
		{name: "bad yaml", content: "sources: [unclosed\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadPipeline(writePipeline(t, tt.content)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadPipeline("/nonexistent/pipeline.yml"); err == nil {
			t.Error("expected error, got nil")
		}
	})
}
