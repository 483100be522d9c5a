// Package browser drives headless Chrome through chromedp. One exec allocator
// is shared per process and every caller works in its own tab.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ErrClosed is returned when a tab is requested after Close.
var ErrClosed = errors.New("browser closed")

// Config controls the shared browser.
type Config struct {
	Headless   bool
	MaxTabs    int
	NavTimeout time.Duration
	UserAgent  string
	ExecPath   string
}

// Cookie is a browser cookie in a storage-friendly shape.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

// Page is the subset of tab operations the scrapers rely on.
type Page interface {
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	Click(ctx context.Context, selector string, timeout time.Duration) error
	Count(ctx context.Context, selector string) (int, error)
	ScrollBottom(ctx context.Context) error
	HTML(ctx context.Context) (string, error)
	Location(ctx context.Context) (string, error)
	SetCookies(ctx context.Context, cookies []Cookie) error
	Cookies(ctx context.Context) ([]Cookie, error)
	Close()
}

// Driver opens pages.
type Driver interface {
	NewPage(ctx context.Context) (Page, error)
}

// Browser owns the chromedp allocator.
type Browser struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

// New starts an exec allocator. Chrome itself launches lazily on the first tab.
func New(cfg Config, logger *zap.Logger) (*Browser, error) {
	if cfg.MaxTabs < 0 {
		return nil, fmt.Errorf("max tabs must be >= 0")
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 45 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter chan struct{}
	if cfg.MaxTabs > 0 {
		limiter = make(chan struct{}, cfg.MaxTabs)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1920, 1080),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Browser{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger.With(zap.String("component", "browser")),
	}, nil
}

// Close shuts down Chrome and every open tab.
func (b *Browser) Close() {
	b.allocCancel()
}

// NewPage opens a fresh tab. The tab closes when ctx ends or Close is called.
func (b *Browser) NewPage(ctx context.Context) (Page, error) {
	if b.allocator.Err() != nil {
		return nil, ErrClosed
	}
	if err := b.acquire(ctx); err != nil {
		return nil, err
	}
	tabCtx, tabCancel := chromedp.NewContext(b.allocator)
	stop := context.AfterFunc(ctx, tabCancel)

	if err := chromedp.Run(tabCtx, b.setupAction()); err != nil {
		stop()
		tabCancel()
		b.release()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return &tab{
		ctx:        tabCtx,
		navTimeout: b.cfg.NavTimeout,
		close: func() {
			stop()
			tabCancel()
			b.release()
		},
	}, nil
}

// Fetch loads url in a throwaway tab and returns the rendered document.
func (b *Browser) Fetch(ctx context.Context, url string) (string, error) {
	page, err := b.NewPage(ctx)
	if err != nil {
		return "", err
	}
	defer page.Close()
	if err := page.Navigate(ctx, url); err != nil {
		return "", err
	}
	if err := page.WaitVisible(ctx, "body", b.cfg.NavTimeout); err != nil {
		return "", err
	}
	return page.HTML(ctx)
}

func (b *Browser) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if b.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (b *Browser) acquire(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	select {
	case b.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser tab wait canceled: %w", ctx.Err())
	}
}

func (b *Browser) release() {
	if b.limiter == nil {
		return
	}
	select {
	case <-b.limiter:
	default:
	}
}

type tab struct {
	ctx        context.Context
	navTimeout time.Duration
	close      func()
}

func (t *tab) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(t.ctx, timeout)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

func (t *tab) Navigate(ctx context.Context, url string) error {
	if err := t.run(ctx, t.navTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (t *tab) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if err := t.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait for %s: %w", selector, err)
	}
	return nil
}

func (t *tab) Click(ctx context.Context, selector string, timeout time.Duration) error {
	if err := t.run(ctx, timeout, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

func (t *tab) Count(ctx context.Context, selector string) (int, error) {
	quoted, err := json.Marshal(selector)
	if err != nil {
		return 0, fmt.Errorf("quote selector: %w", err)
	}
	var n int
	script := fmt.Sprintf("document.querySelectorAll(%s).length", quoted)
	if err := t.run(ctx, 5*time.Second, chromedp.Evaluate(script, &n)); err != nil {
		return 0, fmt.Errorf("count %s: %w", selector, err)
	}
	return n, nil
}

func (t *tab) ScrollBottom(ctx context.Context) error {
	var height float64
	script := "window.scrollTo(0, document.body.scrollHeight); document.body.scrollHeight"
	if err := t.run(ctx, 5*time.Second, chromedp.Evaluate(script, &height)); err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	return nil
}

func (t *tab) HTML(ctx context.Context) (string, error) {
	var html string
	if err := t.run(ctx, t.navTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("outer html: %w", err)
	}
	return html, nil
}

func (t *tab) Location(ctx context.Context) (string, error) {
	var loc string
	if err := t.run(ctx, 5*time.Second, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("location: %w", err)
	}
	return loc, nil
}

func (t *tab) SetCookies(ctx context.Context, cookies []Cookie) error {
	params := toCookieParams(cookies)
	if len(params) == 0 {
		return nil
	}
	err := t.run(ctx, 10*time.Second, chromedp.ActionFunc(func(ctx context.Context) error {
		return network.SetCookies(params).Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("set cookies: %w", err)
	}
	return nil
}

func (t *tab) Cookies(ctx context.Context) ([]Cookie, error) {
	var raw []*network.Cookie
	err := t.run(ctx, 10*time.Second, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}
	return fromNetworkCookies(raw), nil
}

func (t *tab) Close() {
	t.close()
}

func toCookieParams(cookies []Cookie) []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		if c.Name == "" {
			continue
		}
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if p.Path == "" {
			p.Path = "/"
		}
		if c.Expires > 0 {
			exp := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			p.Expires = &exp
		}
		if c.SameSite != "" {
			p.SameSite = network.CookieSameSite(c.SameSite)
		}
		params = append(params, p)
	}
	return params
}

func fromNetworkCookies(raw []*network.Cookie) []Cookie {
	out := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		if c == nil {
			continue
		}
		out = append(out, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: c.SameSite.String(),
		})
	}
	return out
}
