package bot

import (
	"fmt"
	"strings"

	"digest_bot/internal/model"
	"digest_bot/internal/pipeline"
	"digest_bot/internal/publisher"
)

const (
	statusActive = "active"
	statusPaused = "paused"
)

// FormatTopicList formats the configured topics for display.
func FormatTopicList(topics []model.Topic, counts map[int64]int) string {
	if len(topics) == 0 {
		return "No topics yet. They are created from the pipeline config on the next refresh."
	}
	var b strings.Builder
	b.WriteString("Topics:\n")
	for _, t := range topics {
		status := statusActive
		if !t.Enabled {
			status = statusPaused
		}
		fmt.Fprintf(&b, "\n#%d %s [%s] — %d queued\n", t.ID, t.Name, status, counts[t.ID])
		if t.LastPostAt != nil {
			fmt.Fprintf(&b, "   last post: %s\n", t.LastPostAt.Format("2006-01-02 15:04 UTC"))
		} else {
			b.WriteString("   never posted\n")
		}
	}
	return b.String()
}

// FormatStatus formats a one-screen overview of the queue and publish mode.
func FormatStatus(topics []model.Topic, counts map[int64]int, dryRun bool) string {
	var b strings.Builder
	mode := "live"
	if dryRun {
		mode = "dry run"
	}
	fmt.Fprintf(&b, "Publish mode: %s\n", mode)

	total := 0
	enabled := 0
	for _, t := range topics {
		total += counts[t.ID]
		if t.Enabled {
			enabled++
		}
	}
	fmt.Fprintf(&b, "Topics: %d (%d active)\n", len(topics), enabled)
	fmt.Fprintf(&b, "Queued items: %d\n", total)
	return b.String()
}

// FormatRefreshStats formats the outcome of a refresh cycle.
func FormatRefreshStats(s *pipeline.Stats) string {
	var b strings.Builder
	b.WriteString("Refresh done.\n")
	fmt.Fprintf(&b, "Fetched: %d\n", s.Fetched)
	fmt.Fprintf(&b, "Enqueued: %d\n", s.Enqueued)
	fmt.Fprintf(&b, "Filtered: %d\n", s.Filtered)
	fmt.Fprintf(&b, "Already seen: %d\n", s.AlreadySeen)
	if s.Deduped > 0 {
		fmt.Fprintf(&b, "Duplicates: %d\n", s.Deduped)
	}
	if s.SkippedFull > 0 {
		fmt.Fprintf(&b, "Skipped (backlog full): %d\n", s.SkippedFull)
	}
	if s.SourceErrors > 0 {
		fmt.Fprintf(&b, "Source errors: %d\n", s.SourceErrors)
	}
	return b.String()
}

// FormatCandidate formats a dry-run selection for the /next preview.
func FormatCandidate(results []publisher.Result) string {
	if len(results) == 0 {
		return "Nothing to post."
	}
	r := results[0]
	if r.Reason != publisher.ReasonDryRun {
		return "Nothing to post: all topics are paused or empty."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Next candidate for \"%s\":\n", r.TopicName)
	fmt.Fprintf(&b, "%s (score %d)\n", r.Title, r.Score)
	if r.Link != "" {
		b.WriteString(r.Link)
		b.WriteString("\n")
	}
	return b.String()
}

// FormatPublishResults formats the outcome of a manual /post.
func FormatPublishResults(results []publisher.Result) string {
	var b strings.Builder
	posted := 0
	for _, r := range results {
		if r.Posted {
			posted++
			fmt.Fprintf(&b, "Posted to \"%s\": %s\n", r.TopicName, r.Title)
		}
	}
	if posted == 0 {
		return "Nothing to post: all topics are paused or empty."
	}
	return b.String()
}
