// Package fetcher downloads feeds and converts their entries into raw items.
package fetcher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/mmcdole/gofeed"

	"digest_bot/internal/model"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Source describes a single upstream feed.
type Source struct {
	Kind string `yaml:"kind"`
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Fetcher downloads and parses feeds.
type Fetcher struct {
	client  HTTPClient
	timeout time.Duration
}

// New creates a Fetcher with the given HTTP client.
func New(client HTTPClient) *Fetcher {
	return &Fetcher{
		client:  client,
		timeout: 30 * time.Second,
	}
}

// Fetch downloads src and returns its entries as raw items. Entries without
// any usable identity (no GUID and no link) are dropped.
func (f *Fetcher) Fetch(ctx context.Context, src Source) ([]model.RawItem, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "DigestBot/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	var items []model.RawItem
	for _, entry := range feed.Items {
		id := ItemID(entry)
		if id == "" {
			continue
		}
		summary := truncate(entry.Description, 300)
		items = append(items, model.RawItem{
			ExternalID:  id,
			Title:       entry.Title,
			Summary:     summary,
			Link:        entry.Link,
			SourceKind:  src.Kind,
			PublishedAt: entry.PublishedParsed,
		})
	}
	return items, nil
}

// truncate shortens s to at most max runes, cutting on a rune boundary so
// the result stays valid UTF-8.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "..."
}

// ItemID returns the stable identifier for a feed entry: the GUID when
// present, otherwise a SHA-256 hash of the link. Titles are never used,
// they repeat across entries.
func ItemID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	if item.Link == "" {
		return ""
	}
	h := sha256.Sum256([]byte(item.Link))
	return fmt.Sprintf("sha256:%x", h[:16])
}
