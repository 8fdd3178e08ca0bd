package notify

import (
	"context"
	"io"
	"log/slog"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/go-cmp/cmp"
)

type mockAPI struct {
	endpoint string
	params   tgbotapi.Params
	err      error
}

func (m *mockAPI) MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error) {
	m.endpoint = endpoint
	m.params = params
	if m.err != nil {
		return nil, m.err
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func TestSend(t *testing.T) {
	thread := int64(7)

	tests := []struct {
		name       string
		dest       Destination
		wantParams tgbotapi.Params
	}{
		{
			name: "general chat",
			dest: Destination{ChatID: 100},
			wantParams: tgbotapi.Params{
				"chat_id":                  "100",
				"text":                     "hello",
				"disable_web_page_preview": "true",
			},
		},
		{
			name: "forum thread",
			dest: Destination{ChatID: 100, ThreadID: &thread},
			wantParams: tgbotapi.Params{
				"chat_id":                  "100",
				"text":                     "hello",
				"disable_web_page_preview": "true",
				"message_thread_id":        "7",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &mockAPI{}
			n := &Telegram{api: api, log: slog.New(slog.NewTextHandler(io.Discard, nil))}

			if err := n.Send(context.Background(), tt.dest, "hello"); err != nil {
				t.Fatalf("send: %v", err)
			}
			if api.endpoint != "sendMessage" {
				t.Errorf("endpoint = %q, want sendMessage", api.endpoint)
			}
			if diff := cmp.Diff(tt.wantParams, api.params); diff != "" {
				t.Errorf("params mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSendError(t *testing.T) {
	api := &mockAPI{err: io.ErrUnexpectedEOF}
	n := &Telegram{api: api, log: slog.New(slog.NewTextHandler(io.Discard, nil))}

	if err := n.Send(context.Background(), Destination{ChatID: 1}, "hello"); err == nil {
		t.Fatal("expected error, got nil")
	}
}
