package source

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobscout/internal/browser"
	"github.com/JakeFAU/jobscout/internal/posting"
	"github.com/JakeFAU/jobscout/internal/session"
)

const (
	linkedInName = "linkedin"
	linkedInHome = "https://www.linkedin.com"

	consentSelector  = "button[data-control-name='ga-cookie.consent.accept.v3']"
	resultsSelector  = ".jobs-search-results, .jobs-search__results-list, ul.jobs-search__results-list"
	cardSelector     = "div[data-job-id], div[data-chameleon-result-urn], div.base-search-card"
	seeMoreSelector  = "button.infinite-scroller__show-more-button, button[aria-label='See more jobs']"
	detailSelector   = "div.description__text.description__text--rich, div.jobs-description__content, #job-details"
	maxScrollRounds  = 20
	maxStaleAttempts = 2
)

var (
	linkedInCards = []string{"div[data-job-id]", "div[data-chameleon-result-urn]", "div.base-search-card"}

	linkedInLink = []Strategy{
		Attr("a.job-card-container__link[href*='/jobs/view/']", "href"),
		Attr("a[href*='/jobs/view/']", "href"),
		Attr("a.base-card__full-link", "href"),
	}

	linkedInTitle = []Strategy{
		Text("span[aria-hidden='true'] strong"),
		Text("span[aria-hidden='true']"),
		Text("a.job-card-container__link"),
		Text("a.base-card__full-link"),
		Text("h3.base-search-card__title"),
	}

	linkedInCompany = []Strategy{
		Text(".artdeco-entity-lockup__subtitle span"),
		Text("a[data-tracking-control-name*='company']"),
		Text("a[href*='/company/']"),
		Text("h4.base-search-card__subtitle a"),
		Text("h4.base-search-card__subtitle"),
		Text("a.hidden-nested-link"),
		Text("span.job-search-card__company-name"),
	}

	linkedInLocation = []Strategy{
		Text(".artdeco-entity-lockup__caption li span"),
		Text(".job-card-container__metadata-wrapper li span"),
		Text("span[class*='location']"),
		SpanMatching(australianPlace),
		Text("span.job-search-card__location"),
	}

	linkedInPosted = []Strategy{
		Attr("time[datetime]", "datetime"),
		Text("time"),
	}

	linkedInDetailCompany = []Strategy{
		Text("div.job-details-jobs-unified-top-card__company-name"),
		Text("a.topcard__org-name-link"),
		Text("span.topcard__flavor--black"),
		Text("a[data-tracking-control-name=public_jobs_topcard-org-name]"),
	}

	australianPlace = regexp.MustCompile(`(?i)\b(sydney|melbourne|brisbane|perth|adelaide|canberra|hobart|darwin|gold coast|newcastle|geelong|nsw|vic|qld|wa|sa|act|tas|nt|australia|remote|hybrid)\b`)
)

// SessionSource exposes the stored session to the LinkedIn adapter.
type SessionSource interface {
	Current(ctx context.Context) session.Health
	Cookies(ctx context.Context) ([]browser.Cookie, error)
	Invalidate(ctx context.Context, reason string) session.Health
}

// LinkedInConfig wires a LinkedIn adapter.
type LinkedInConfig struct {
	Driver      browser.Driver
	Session     SessionSource
	Limits      Limits
	ScrollPause time.Duration
	Logger      *zap.Logger
}

// LinkedIn scrapes LinkedIn job search pages in a browser.
type LinkedIn struct {
	driver      browser.Driver
	session     SessionSource
	limits      Limits
	scrollPause time.Duration
	logger      *zap.Logger
}

// NewLinkedIn builds the adapter. Session may be nil for anonymous-only use.
func NewLinkedIn(cfg LinkedInConfig) *LinkedIn {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &LinkedIn{
		driver:      cfg.Driver,
		session:     cfg.Session,
		limits:      cfg.Limits.withDefaults(),
		scrollPause: cfg.ScrollPause,
		logger:      cfg.Logger.With(zap.String("source", linkedInName)),
	}
}

// Name implements Adapter.
func (l *LinkedIn) Name() string { return linkedInName }

// ValidLinkedInURL reports whether raw is a LinkedIn job search URL.
func ValidLinkedInURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host != "www.linkedin.com" && host != "linkedin.com" {
		return false
	}
	return strings.Contains(u.Path, "/jobs/search/")
}

// Scrape implements Adapter.
func (l *LinkedIn) Scrape(ctx context.Context, target Target) []posting.Raw {
	if !ValidLinkedInURL(target.URL) {
		l.logger.Warn("invalid linkedin search url", zap.String("url", target.URL))
		return nil
	}
	page, err := l.driver.NewPage(ctx)
	if err != nil {
		l.logger.Warn("open browser tab", zap.Error(err))
		return nil
	}
	defer page.Close()

	authed := l.loadSession(ctx, page)
	if err := page.Navigate(ctx, target.URL); err != nil {
		l.logger.Warn("navigate search page", zap.Error(err))
		return nil
	}
	if err := page.Click(ctx, consentSelector, 5*time.Second); err == nil {
		l.logger.Debug("accepted cookie consent")
	}

	if authed {
		switch verdict, reason := session.ClassifyPage(ctx, page, session.SearchResultsSelectors); verdict {
		case session.Rejected:
			l.logger.Warn("session rejected mid-scrape; continuing anonymously", zap.String("reason", reason))
			l.session.Invalidate(ctx, "LinkedIn rejected the session during a scrape: "+reason)
			authed = false
		case session.Unverified:
			l.logger.Info("could not confirm session on search page; keeping it", zap.String("reason", reason))
		}
	}
	if !authed {
		if err := page.Click(ctx, "body", 2*time.Second); err != nil {
			l.logger.Debug("login wall dismissal click failed", zap.Error(err))
		}
	}

	if err := page.WaitVisible(ctx, resultsSelector, 20*time.Second); err != nil {
		l.logger.Warn("results container never appeared", zap.Error(err))
		return nil
	}
	l.loadAll(ctx, page)

	html, err := page.HTML(ctx)
	if err != nil {
		l.logger.Warn("read search page", zap.Error(err))
		return nil
	}
	raws := ParseLinkedInCards(html, l.limits.MaxJobs)
	l.logger.Info("parsed linkedin cards",
		zap.Int("count", len(raws)),
		zap.Bool("authenticated", authed),
	)

	for i := 0; i < len(raws) && i < l.limits.MaxDescriptions; i++ {
		if ctx.Err() != nil {
			break
		}
		l.fillDetail(ctx, &raws[i])
	}
	return raws
}

func (l *LinkedIn) loadSession(ctx context.Context, page browser.Page) bool {
	if l.session == nil {
		return false
	}
	h := l.session.Current(ctx)
	if !h.Usable() {
		l.logger.Info("session not usable; scraping anonymously", zap.String("state", string(h.State)))
		return false
	}
	cookies, err := l.session.Cookies(ctx)
	if err != nil {
		l.logger.Info("no session cookies; scraping anonymously", zap.Error(err))
		return false
	}
	if err := page.Navigate(ctx, linkedInHome); err != nil {
		l.logger.Warn("navigate home before cookies", zap.Error(err))
		return false
	}
	if err := page.SetCookies(ctx, cookies); err != nil {
		l.logger.Warn("set session cookies", zap.Error(err))
		return false
	}
	return true
}

// loadAll scrolls until enough cards render or progress stalls.
func (l *LinkedIn) loadAll(ctx context.Context, page browser.Page) {
	prev, _ := page.Count(ctx, cardSelector)
	stale := 0
	for round := 0; round < maxScrollRounds && stale < maxStaleAttempts; round++ {
		if ctx.Err() != nil {
			return
		}
		if err := page.ScrollBottom(ctx); err != nil {
			l.logger.Debug("scroll failed", zap.Error(err))
		}
		pause(ctx, l.scrollPause)

		n, err := page.Count(ctx, cardSelector)
		if err != nil {
			l.logger.Debug("count cards", zap.Error(err))
		}
		if n >= l.limits.MaxJobs {
			return
		}
		if n > prev {
			prev, stale = n, 0
			continue
		}
		if err := page.Click(ctx, seeMoreSelector, 2*time.Second); err == nil {
			stale = 0
			continue
		}
		stale++
	}
}

func (l *LinkedIn) fillDetail(ctx context.Context, raw *posting.Raw) {
	page, err := l.driver.NewPage(ctx)
	if err != nil {
		l.logger.Debug("open detail tab", zap.Error(err))
		return
	}
	defer page.Close()

	if err := page.Navigate(ctx, raw.URL); err != nil {
		l.logger.Debug("navigate detail page", zap.String("url", raw.URL), zap.Error(err))
		return
	}
	if err := page.WaitVisible(ctx, detailSelector, 5*time.Second); err != nil {
		l.logger.Debug("description not found", zap.String("url", raw.URL))
	}
	html, err := page.HTML(ctx)
	if err != nil {
		return
	}
	company, description := ParseLinkedInDetail(html)
	if raw.Company == UnknownCompany && company != "" {
		raw.Company = company
	}
	raw.Description = description
}

// ParseLinkedInCards extracts up to limit postings from a search results page.
func ParseLinkedInCards(html string, limit int) []posting.Raw {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	var out []posting.Raw
	seen := map[string]struct{}{}
	Cards(doc.Selection, linkedInCards...).EachWithBreak(func(_ int, card *goquery.Selection) bool {
		if limit > 0 && len(out) >= limit {
			return false
		}
		link := absoluteLinkedIn(First(card, "", linkedInLink...))
		if link == "" {
			return true
		}
		if _, dup := seen[link]; dup {
			return true
		}
		seen[link] = struct{}{}
		out = append(out, posting.Raw{
			URL:      link,
			Title:    First(card, UnknownTitle, linkedInTitle...),
			Company:  First(card, UnknownCompany, linkedInCompany...),
			Location: First(card, UnknownLocation, linkedInLocation...),
			Posted:   First(card, "", linkedInPosted...),
			Source:   linkedInName,
		})
		return true
	})
	return out
}

// ParseLinkedInDetail returns the company and description HTML of a job page.
func ParseLinkedInDetail(html string) (company, description string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", ""
	}
	company = First(doc.Selection, "", linkedInDetailCompany...)
	for _, sel := range strings.Split(detailSelector, ", ") {
		if node := doc.Find(sel).First(); node.Length() > 0 {
			if inner, err := node.Html(); err == nil && strings.TrimSpace(inner) != "" {
				return company, strings.TrimSpace(inner)
			}
		}
	}
	return company, ""
}

func absoluteLinkedIn(href string) string {
	href = strings.TrimSpace(href)
	switch {
	case href == "":
		return ""
	case strings.HasPrefix(href, "/"):
		return linkedInHome + href
	default:
		return href
	}
}
