package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

const telegramAPIURL = "https://api.telegram.org/bot%s/sendMessage"

type telegramService struct {
	httpClient *http.Client
	botToken   string
	chatID     string
	apiURL     string
}

func (t *telegramService) NotifyItemDiscovered(ctx context.Context, sourceID, title string) {
	t.send(ctx, fmt.Sprintf("New item from %s:\n%s", sourceID, title))
}

func (t *telegramService) NotifyItemCompleted(ctx context.Context, itemID, title string) {
	t.send(ctx, fmt.Sprintf("Completed %s:\n%s", itemID, title))
}

func (t *telegramService) NotifyItemFailed(ctx context.Context, itemID, title, lastError string) {
	t.send(ctx, fmt.Sprintf("Failed %s (%s):\n%s", itemID, title, lastError))
}

func (t *telegramService) NotifyUploadCompleted(ctx context.Context, itemID, remotePath string) {
	t.send(ctx, fmt.Sprintf("Uploaded %s to %s", itemID, remotePath))
}

func (t *telegramService) NotifySweepSummary(ctx context.Context, sourceID string, itemCount, newItemCount int) {
	if newItemCount == 0 {
		return
	}
	t.send(ctx, fmt.Sprintf("Sweep of %s: %d items, %d new", sourceID, itemCount, newItemCount))
}

// send posts one message to the Telegram bot API. Errors are logged, never
// returned: a dead notifier must not stall the pipeline.
func (t *telegramService) send(ctx context.Context, text string) {
	payload, _ := json.Marshal(map[string]string{
		"chat_id": t.chatID,
		"text":    text,
	})

	apiURL := t.apiURL
	if apiURL == "" {
		apiURL = telegramAPIURL
	}

	req, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf(apiURL, t.botToken), bytes.NewReader(payload))
	if err != nil {
		slog.Warn("Failed to create notification request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		slog.Warn("Failed to deliver notification", "error", err)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		slog.Warn("Notification rejected", "status", resp.StatusCode)
	}
}
