// Package gemini generates text with Google's Gemini models.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/JakeFAU/jobscout/internal/logging"
	"github.com/JakeFAU/jobscout/internal/retry"
)

const (
	defaultModel   = "gemini-2.5-pro"
	defaultTimeout = 60 * time.Second
)

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("gemini api returned empty response")

type modelAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Config configures the client.
type Config struct {
	APIKey       string
	Model        string
	Timeout      time.Duration
	MaxLogLength int
}

// Client wraps the GenAI models API with a per-attempt timeout and retries.
type Client struct {
	models    modelAPI
	model     string
	timeout   time.Duration
	policy    *retry.Policy
	maxLogLen int
	logger    *zap.Logger
}

// New creates a client for the Gemini API backend.
func New(ctx context.Context, cfg Config, policy *retry.Policy, logger *zap.Logger) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newClient(client.Models, cfg, policy, logger), nil
}

func newClient(models modelAPI, cfg Config, policy *retry.Policy, logger *zap.Logger) *Client {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if policy == nil {
		policy = retry.NewDefault()
	}
	if cfg.MaxLogLength <= 0 {
		cfg.MaxLogLength = 200
	}
	return &Client{
		models:    models,
		model:     model,
		timeout:   cfg.Timeout,
		policy:    policy,
		maxLogLen: cfg.MaxLogLength,
		logger:    logging.OrNop(logger).With(zap.String("component", "gemini")),
	}
}

// Model reports the configured model name.
func (c *Client) Model() string { return c.model }

// GenerateContent sends prompt and returns the concatenated text parts.
func (c *Client) GenerateContent(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}
	c.logger.Debug("generate content request",
		zap.String("model", c.model),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", logging.Truncate(prompt, c.maxLogLen)),
	)

	var output string
	err := c.policy.Do(ctx, c.logger, "gemini generate", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		resp, err := c.models.GenerateContent(callCtx, c.model, genai.Text(prompt), nil)
		if err != nil {
			return classify(err)
		}
		text := joinText(resp)
		if text == "" {
			return ErrEmptyResponse
		}
		output = text
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	c.logger.Debug("generate content response",
		zap.Int("response_length", utf8.RuneCountInString(output)),
		zap.String("response_preview", logging.Truncate(output, c.maxLogLen)),
	)
	return output, nil
}

// classify maps API status codes onto the retry taxonomy. A call that hit
// its own deadline is worth another attempt while the parent is alive.
func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %w", &retry.HTTPError{StatusCode: apiErr.Code, Body: apiErr.Status}, err)
	}
	var apiPtr *genai.APIError
	if errors.As(err, &apiPtr) && apiPtr != nil {
		return fmt.Errorf("%w: %w", &retry.HTTPError{StatusCode: apiPtr.Code, Body: apiPtr.Status}, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("gemini call timed out: %s", err.Error())
	}
	return err
}

func joinText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(text)
		}
	}
	return strings.TrimSpace(b.String())
}
