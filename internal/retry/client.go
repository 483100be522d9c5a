package retry

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// maxBodyBytes bounds how much of a response body the client buffers.
const maxBodyBytes = 8 << 20

// Waiter blocks until a request to url may proceed.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// ClientConfig controls timeouts for the retrying HTTP client.
type ClientConfig struct {
	Timeout     time.Duration
	DialTimeout time.Duration
	UserAgent   string
}

// Client issues HTTP requests with explicit timeouts and bounded retries.
type Client struct {
	http    *http.Client
	policy  *Policy
	limiter Waiter
	ua      string
	logger  *zap.Logger
	now     func() time.Time
}

// NewClient builds a Client. limiter may be nil.
func NewClient(cfg ClientConfig, policy *Policy, limiter Waiter, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if policy == nil {
		policy = NewDefault()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
		ExpectContinueTimeout: time.Second,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
	}
	return &Client{
		http:    &http.Client{Timeout: cfg.Timeout, Transport: transport},
		policy:  policy,
		limiter: limiter,
		ua:      cfg.UserAgent,
		logger:  logger,
		now:     time.Now,
	}
}

// Do sends the request produced by newReq and returns the body of a 2xx
// response. newReq is called once per attempt so bodies can be replayed.
func (c *Client) Do(ctx context.Context, op string, newReq func(context.Context) (*http.Request, error)) ([]byte, error) {
	var body []byte
	err := c.policy.Do(ctx, c.logger, op, func(ctx context.Context) error {
		req, err := newReq(ctx)
		if err != nil {
			return Permanent(fmt.Errorf("build request: %w", err))
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx, req.URL.String()); err != nil {
				return err
			}
		}
		if c.ua != "" && req.Header.Get("User-Agent") == "" {
			req.Header.Set("User-Agent", c.ua)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("%s request: %w", op, err)
		}
		defer resp.Body.Close() //nolint:errcheck // read-only body
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return fmt.Errorf("%s read body: %w", op, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &HTTPError{
				StatusCode: resp.StatusCode,
				RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After"), c.now()),
				Body:       truncateBody(data),
			}
		}
		body = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func truncateBody(b []byte) string {
	const limit = 256
	if len(b) > limit {
		return string(b[:limit])
	}
	return string(b)
}
