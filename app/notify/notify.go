// Package notify pushes lifecycle events to an operator channel. Delivery
// is fire-and-forget: failures are logged and never fed back into pipeline
// state.
package notify

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// Service is the notification surface exposed to the pipeline stages.
type Service interface {
	NotifyItemDiscovered(ctx context.Context, sourceID, title string)
	NotifyItemCompleted(ctx context.Context, itemID, title string)
	NotifyItemFailed(ctx context.Context, itemID, title, lastError string)
	NotifyUploadCompleted(ctx context.Context, itemID, remotePath string)
	NotifySweepSummary(ctx context.Context, sourceID string, itemCount, newItemCount int)
}

// NewService builds a Telegram-backed notifier when a bot token and chat id
// are configured, a noop otherwise.
func NewService(botToken, chatID string, timeout time.Duration) Service {
	botToken = strings.TrimSpace(botToken)
	chatID = strings.TrimSpace(chatID)
	if botToken == "" || chatID == "" {
		return noopService{}
	}

	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &telegramService{
		httpClient: &http.Client{Timeout: timeout},
		botToken:   botToken,
		chatID:     chatID,
	}
}

type noopService struct{}

func (noopService) NotifyItemDiscovered(context.Context, string, string) {}
func (noopService) NotifyItemCompleted(context.Context, string, string) {}
func (noopService) NotifyItemFailed(context.Context, string, string, string) {}
func (noopService) NotifyUploadCompleted(context.Context, string, string) {}
func (noopService) NotifySweepSummary(context.Context, string, int, int) {}
