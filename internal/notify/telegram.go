package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type telegramAPI interface {
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
}

// Telegram sends messages through the Telegram Bot API, addressing forum
// threads via message_thread_id when the destination has one.
type Telegram struct {
	api telegramAPI
	log *slog.Logger
}

// NewTelegram creates a Telegram notifier with the given bot token.
func NewTelegram(token string, log *slog.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return &Telegram{api: api, log: log}, nil
}

// Send delivers text to the destination chat/thread.
func (t *Telegram) Send(_ context.Context, dest Destination, text string) error {
	params := tgbotapi.Params{}
	params.AddNonEmpty("chat_id", strconv.FormatInt(dest.ChatID, 10))
	params.AddNonEmpty("text", text)
	params.AddBool("disable_web_page_preview", true)
	if dest.ThreadID != nil {
		params.AddNonEmpty("message_thread_id", strconv.FormatInt(*dest.ThreadID, 10))
	}

	if _, err := t.api.MakeRequest("sendMessage", params); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	t.log.Debug("message sent", "chat_id", dest.ChatID, "thread_id", dest.ThreadID)
	return nil
}

var _ Notifier = (*Telegram)(nil)
