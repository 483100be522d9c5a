// Package browsertest provides a scriptable in-memory browser for tests.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/jobscout/internal/browser"
)

// ErrTimeout mimics a wait that never completes.
var ErrTimeout = errors.New("browsertest: timed out")

// Page is a fake tab. Zero-value maps behave as "nothing present".
type Page struct {
	mu sync.Mutex

	// Docs maps a navigated URL to the document served for it.
	Docs map[string]string
	// Redirects maps a navigated URL to the location reported afterwards.
	Redirects map[string]string
	// Visible lists selectors that WaitVisible finds.
	Visible map[string]bool
	// Counts scripts successive Count results per selector; the last repeats.
	Counts map[string][]int
	// Clicks is the number of successful clicks per selector; -1 is unlimited.
	Clicks map[string]int
	// NavigateErr fails every navigation.
	NavigateErr error
	// Jar holds cookies returned by Cookies.
	Jar []browser.Cookie

	current   string
	location  string
	Navigated []string
	Clicked   []string
	Scrolls   int
	CookieSet []browser.Cookie
	Closed    bool
}

var _ browser.Page = (*Page)(nil)

// Navigate records url and applies any redirect.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	p.Navigated = append(p.Navigated, url)
	p.current = url
	p.location = url
	if to, ok := p.Redirects[url]; ok {
		p.location = to
	}
	return nil
}

// WaitVisible succeeds for selectors listed in Visible.
func (p *Page) WaitVisible(_ context.Context, selector string, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Visible[selector] {
		return nil
	}
	return fmt.Errorf("wait for %s: %w", selector, ErrTimeout)
}

// Click consumes one scripted click for selector.
func (p *Page) Click(_ context.Context, selector string, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.Clicks[selector]
	switch {
	case n < 0:
	case n > 0:
		p.Clicks[selector] = n - 1
	default:
		return fmt.Errorf("click %s: %w", selector, ErrTimeout)
	}
	p.Clicked = append(p.Clicked, selector)
	return nil
}

// Count pops the next scripted count for selector.
func (p *Page) Count(_ context.Context, selector string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	seq := p.Counts[selector]
	if len(seq) == 0 {
		return 0, nil
	}
	n := seq[0]
	if len(seq) > 1 {
		p.Counts[selector] = seq[1:]
	}
	return n, nil
}

// ScrollBottom counts scrolls.
func (p *Page) ScrollBottom(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Scrolls++
	return nil
}

// HTML returns the document registered for the last navigated URL.
func (p *Page) HTML(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Docs[p.current], nil
}

// Location reports the current location.
func (p *Page) Location(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.location, nil
}

// SetCookies records cookies.
func (p *Page) SetCookies(_ context.Context, cookies []browser.Cookie) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CookieSet = append(p.CookieSet, cookies...)
	return nil
}

// Cookies returns Jar.
func (p *Page) Cookies(context.Context) ([]browser.Cookie, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]browser.Cookie(nil), p.Jar...), nil
}

// Close marks the page closed.
func (p *Page) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
}

// Driver hands out pages from Open.
type Driver struct {
	mu    sync.Mutex
	Open  func(n int) *Page
	Err   error
	Pages []*Page
}

var _ browser.Driver = (*Driver)(nil)

// NewPage returns Open(n) for the n-th call, starting at zero.
func (d *Driver) NewPage(ctx context.Context) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	p := d.Open(len(d.Pages))
	d.Pages = append(d.Pages, p)
	return p, nil
}
