package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/JakeFAU/jobscout/internal/retry"
)

// Slack posts messages to an incoming webhook.
type Slack struct {
	webhookURL string
	client     *retry.Client
}

// NewSlack returns nil when no webhook URL is configured.
func NewSlack(webhookURL string, client *retry.Client) *Slack {
	if strings.TrimSpace(webhookURL) == "" {
		return nil
	}
	return &Slack{webhookURL: webhookURL, client: client}
}

// Name implements Sender.
func (s *Slack) Name() string { return "slack" }

// Send implements Sender. Slack mrkdwn uses single asterisks for bold, which
// the session alerts already follow.
func (s *Slack) Send(ctx context.Context, _ string, body string) error {
	payload, err := json.Marshal(map[string]string{"text": body})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}
	_, err = s.client.Do(ctx, "slack webhook", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	return err
}
