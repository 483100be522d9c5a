package session

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/JakeFAU/jobscout/internal/browser"
)

// Selectors that only render for a signed-in member.
const (
	SearchResultsSelectors = ".jobs-search-results, div[data-job-id]"
	feedSelectors          = ".feed-identity-module, .global-nav__me, " + SearchResultsSelectors
)

// DefaultProbeURL is loaded to test a session.
const DefaultProbeURL = "https://www.linkedin.com/feed/"

// VerifyTimeout bounds the wait for signed-in markup.
const VerifyTimeout = 5 * time.Second

var loginMarkers = []string{"authwall", "login", "sign-in", "signin", "checkpoint"}

// Verdict is the outcome of inspecting a loaded page.
type Verdict int

const (
	// Authenticated means signed-in markup rendered.
	Authenticated Verdict = iota
	// Rejected means the site redirected to a login or checkpoint page.
	Rejected
	// Unverified means there was no redirect but no signed-in markup
	// rendered within VerifyTimeout either.
	Unverified
)

func (v Verdict) String() string {
	switch v {
	case Authenticated:
		return "authenticated"
	case Rejected:
		return "rejected"
	default:
		return "unverified"
	}
}

// ClassifyPage decides whether page shows an authenticated view. A login
// redirect is the only proof of a rejected session. Otherwise it waits up to
// VerifyTimeout for validSelectors before giving up as Unverified.
func ClassifyPage(ctx context.Context, page browser.Page, validSelectors string) (Verdict, string) {
	if reason, rejected := checkLocation(ctx, page); rejected {
		return Rejected, reason
	}
	if err := page.WaitVisible(ctx, validSelectors, VerifyTimeout); err == nil {
		return Authenticated, ""
	}
	if n, err := page.Count(ctx, validSelectors); err == nil && n > 0 {
		return Authenticated, ""
	}
	// The redirect can land while we wait.
	if reason, rejected := checkLocation(ctx, page); rejected {
		return Rejected, reason
	}
	return Unverified, "authenticated page structure not found"
}

func checkLocation(ctx context.Context, page browser.Page) (string, bool) {
	loc, err := page.Location(ctx)
	if err != nil {
		return "", false
	}
	if marker, redirected := loginRedirect(loc); redirected {
		return fmt.Sprintf("redirected to %s page", marker), true
	}
	return "", false
}

func loginRedirect(loc string) (string, bool) {
	path := strings.ToLower(loc)
	if u, err := url.Parse(loc); err == nil {
		path = strings.ToLower(u.Path)
	}
	for _, m := range loginMarkers {
		if strings.Contains(path, m) {
			return m, true
		}
	}
	return "", false
}

// Prober tests stored cookies against the live site.
type Prober interface {
	Probe(ctx context.Context, cookies []browser.Cookie) (valid bool, reason string, err error)
}

// BrowserProber probes with a real browser tab.
type BrowserProber struct {
	driver   browser.Driver
	probeURL string
}

// NewBrowserProber builds a prober. An empty probeURL uses the member feed.
func NewBrowserProber(driver browser.Driver, probeURL string) *BrowserProber {
	if probeURL == "" {
		probeURL = DefaultProbeURL
	}
	return &BrowserProber{driver: driver, probeURL: probeURL}
}

// Probe loads the cookies into a fresh tab and opens the probe page. The
// feed only renders for members, so an Unverified page after the wait
// counts as invalid here.
func (p *BrowserProber) Probe(ctx context.Context, cookies []browser.Cookie) (bool, string, error) {
	page, err := p.driver.NewPage(ctx)
	if err != nil {
		return false, "", fmt.Errorf("open probe tab: %w", err)
	}
	defer page.Close()

	if err := page.SetCookies(ctx, cookies); err != nil {
		return false, "", err
	}
	if err := page.Navigate(ctx, p.probeURL); err != nil {
		return false, "", err
	}
	verdict, reason := ClassifyPage(ctx, page, feedSelectors)
	return verdict == Authenticated, reason, nil
}
