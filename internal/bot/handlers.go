package bot

import (
	"context"
	"fmt"
	"time"

	"digest_bot/internal/publisher"
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to Digest Bot!

It collects articles from configured feeds, scores them, and posts the best
one per topic on a schedule.

Quick start:
1. /topics — list topics and their backlogs
2. /next — preview what would be posted next
3. /refresh — pull the feeds right now

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Topic management:
/topics — list topics with backlog sizes
/status — queue and posting overview
/pause <id> — exclude a topic from publishing
/resume <id> — include a topic again

Cycle control:
/refresh — fetch and enqueue new articles now
/next — preview the next candidate without posting
/post — publish the next candidate now`)
}

func (b *Bot) handleTopics(ctx context.Context, chatID int64) {
	topics, err := b.store.ListTopics(ctx, b.cfg.ChatID, false)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	counts := make(map[int64]int)
	for _, topic := range topics {
		n, err := b.store.CountNew(ctx, topic.ID)
		if err != nil {
			continue
		}
		counts[topic.ID] = n
	}

	b.reply(chatID, FormatTopicList(topics, counts))
}

func (b *Bot) handleStatus(ctx context.Context, chatID int64) {
	topics, err := b.store.ListTopics(ctx, b.cfg.ChatID, false)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	counts := make(map[int64]int)
	for _, topic := range topics {
		n, err := b.store.CountNew(ctx, topic.ID)
		if err != nil {
			continue
		}
		counts[topic.ID] = n
	}

	b.reply(chatID, FormatStatus(topics, counts, b.cfg.PublishDryRun))
}

func (b *Bot) handlePause(ctx context.Context, chatID int64, args string) {
	b.setEnabled(ctx, chatID, args, false, "paused", "Usage: /pause <id>")
}

func (b *Bot) handleResume(ctx context.Context, chatID int64, args string) {
	b.setEnabled(ctx, chatID, args, true, "resumed", "Usage: /resume <id>")
}

func (b *Bot) setEnabled(ctx context.Context, chatID int64, args string, enabled bool, verb, usage string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, usage)
		return
	}

	topic, err := b.store.GetTopic(ctx, id)
	if err != nil || topic.ChatID != b.cfg.ChatID {
		b.reply(chatID, fmt.Sprintf("Topic #%d not found.", id))
		return
	}

	if err := b.store.SetTopicEnabled(ctx, id, enabled); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Topic #%d \"%s\" %s.", id, topic.Name, verb))
}

func (b *Bot) handleNext(ctx context.Context, chatID int64) {
	results, err := b.selector.PublishNext(ctx, b.cfg.ChatID, time.Now().UTC(), publisher.Options{DryRun: true})
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatCandidate(results))
}

func (b *Bot) handleRefresh(ctx context.Context, chatID int64) {
	stats, err := b.refresher.Refresh(ctx, b.cfg.ChatID, time.Now().UTC())
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Refresh failed: %v", err))
		return
	}
	b.reply(chatID, FormatRefreshStats(stats))
}

func (b *Bot) handlePost(ctx context.Context, chatID int64) {
	if b.cfg.PublishDryRun {
		b.reply(chatID, "Publishing is in dry-run mode. Use /next to preview, or unset PUBLISH_DRY_RUN to post for real.")
		return
	}

	results, err := b.selector.PublishNext(ctx, b.cfg.ChatID, time.Now().UTC(), publisher.Options{})
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Publish failed: %v", err))
		return
	}
	b.reply(chatID, FormatPublishResults(results))
}
