package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/JakeFAU/jobscout/internal/retry"
)

const defaultTelegramBaseURL = "https://api.telegram.org"

// TelegramConfig holds bot credentials.
type TelegramConfig struct {
	BotToken string
	ChatID   string
	BaseURL  string
}

// Telegram posts Markdown messages through the Bot API sendMessage method.
type Telegram struct {
	cfg    TelegramConfig
	client *retry.Client
}

// NewTelegram returns nil when the bot token or chat id is missing.
func NewTelegram(cfg TelegramConfig, client *retry.Client) *Telegram {
	if strings.TrimSpace(cfg.BotToken) == "" || strings.TrimSpace(cfg.ChatID) == "" {
		return nil
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTelegramBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Telegram{cfg: cfg, client: client}
}

// Name implements Sender.
func (t *Telegram) Name() string { return "telegram" }

// Send implements Sender. The subject is already the first line of body.
func (t *Telegram) Send(ctx context.Context, _ string, body string) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id":    t.cfg.ChatID,
		"text":       escapeMarkdown(body),
		"parse_mode": "Markdown",
	})
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.cfg.BaseURL, t.cfg.BotToken)
	resp, err := t.client.Do(ctx, "telegram sendMessage", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return redact(err, t.cfg.BotToken)
	}
	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(resp, &result); err == nil && !result.OK {
		return fmt.Errorf("telegram api error: %s", result.Description)
	}
	return nil
}

// escapeMarkdown escapes underscores, which legacy Markdown treats as
// emphasis and which are common in file names.
func escapeMarkdown(s string) string {
	return strings.ReplaceAll(s, "_", `\_`)
}

// redact keeps the bot token out of logged errors.
func redact(err error, secret string) error {
	if secret == "" || !strings.Contains(err.Error(), secret) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), secret, "<redacted>"))
}
