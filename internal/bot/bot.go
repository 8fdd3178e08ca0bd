package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"digest_bot/internal/config"
	"digest_bot/internal/pipeline"
	"digest_bot/internal/publisher"
	"digest_bot/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type refreshRunner interface {
	Refresh(ctx context.Context, chatID int64, now time.Time) (*pipeline.Stats, error)
}

type publishRunner interface {
	PublishNext(ctx context.Context, chatID int64, now time.Time, opts publisher.Options) ([]publisher.Result, error)
}

// Bot is the operator-facing Telegram bot. It answers status queries and lets
// an allowed user pause topics or trigger a cycle by hand.
type Bot struct {
	api       telegramAPI
	store     storage.Storage
	cfg       *config.Config
	refresher refreshRunner
	selector  publishRunner
	log       *slog.Logger
}

// New creates a Bot with the given Telegram token.
func New(token string, store storage.Storage, cfg *config.Config, refresher refreshRunner, selector publishRunner, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		api:       api,
		store:     store,
		cfg:       cfg,
		refresher: refresher,
		selector:  selector,
		log:       log,
	}, nil
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if !b.cfg.IsUserAllowed(update.Message.From.ID) {
				b.reply(update.Message.Chat.ID, "Access denied.")
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case "topics":
		b.handleTopics(ctx, chatID)
	case "status":
		b.handleStatus(ctx, chatID)
	case "pause":
		b.handlePause(ctx, chatID, args)
	case "resume":
		b.handleResume(ctx, chatID, args)
	case "next":
		b.handleNext(ctx, chatID)
	case "refresh":
		b.handleRefresh(ctx, chatID)
	case "post":
		b.handlePost(ctx, chatID)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
