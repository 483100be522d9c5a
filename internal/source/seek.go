package source

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobscout/internal/posting"
)

const (
	seekName     = "seek"
	seekBase     = "https://www.seek.com.au"
	seekMaxPages = 10
)

var (
	seekCards = []string{`article[data-testid="job-card"]`, `article[data-automation="normalJob"]`}

	seekLink = []Strategy{
		Attr(`a[data-automation="jobTitle"][href]`, "href"),
		Attr(`a[data-testid="job-card-title"][href]`, "href"),
	}
	seekTitle   = []Strategy{Text(`[data-automation="jobTitle"]`), Text(`[data-testid="job-card-title"]`)}
	seekCompany = []Strategy{Text(`[data-automation="jobCompany"]`)}
	seekPlace   = []Strategy{
		Text(`[data-automation="jobLocation"]`),
		JoinText(`[data-type="location"]`, ", "),
		Text(`[data-automation="jobCardLocation"]`),
	}
	seekSalary   = []Strategy{Text(`[data-automation="jobSalary"]`)}
	seekDate     = []Strategy{Text(`[data-automation="jobListingDate"]`)}
	seekTeaser   = []Strategy{Text(`[data-testid="job-card-teaser"]`), Text(`[data-automation="jobShortDescription"]`)}
	seekWorkType = []Strategy{Text(`[data-automation="jobWorkType"]`)}
	seekClass    = []Strategy{Text(`[data-automation="jobClassification"]`)}
	seekNext     = []Strategy{
		Attr(`nav[aria-label="Pagination of results"] a[rel="next"]`, "href"),
		Attr(`a[data-automation="page-next"]`, "href"),
	}
)

// Seek scrapes seek.com.au search results and job pages.
type Seek struct {
	fetcher PageFetcher
	limits  Limits
	logger  *zap.Logger
}

// NewSeek builds the adapter over fetcher, which may be a browser or a
// static fetcher.
func NewSeek(fetcher PageFetcher, limits Limits, logger *zap.Logger) *Seek {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seek{
		fetcher: fetcher,
		limits:  limits.withDefaults(),
		logger:  logger.With(zap.String("source", seekName)),
	}
}

// Name implements Adapter.
func (s *Seek) Name() string { return seekName }

// ValidSeekURL reports whether raw points at seek.com.au.
func ValidSeekURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == "www.seek.com.au" || host == "seek.com.au"
}

// Scrape implements Adapter.
func (s *Seek) Scrape(ctx context.Context, target Target) []posting.Raw {
	if !ValidSeekURL(target.URL) {
		s.logger.Warn("invalid seek search url", zap.String("url", target.URL))
		return nil
	}
	var out []posting.Raw
	seen := map[string]struct{}{}
	next := target.URL
	for page := 0; page < seekMaxPages && next != "" && len(out) < s.limits.MaxJobs; page++ {
		if ctx.Err() != nil {
			break
		}
		html, err := s.fetcher.Fetch(ctx, next)
		if err != nil {
			s.logger.Warn("fetch results page", zap.String("url", next), zap.Int("page", page+1), zap.Error(err))
			break
		}
		cards, nextURL := ParseSeekPage(html)
		for _, c := range cards {
			if len(out) >= s.limits.MaxJobs {
				break
			}
			if _, dup := seen[c.URL]; dup {
				continue
			}
			seen[c.URL] = struct{}{}
			out = append(out, c)
		}
		s.logger.Debug("parsed seek page", zap.Int("page", page+1), zap.Int("cards", len(cards)))
		next = nextURL
	}

	for i := 0; i < len(out) && i < s.limits.MaxDescriptions; i++ {
		if ctx.Err() != nil {
			break
		}
		html, err := s.fetcher.Fetch(ctx, out[i].URL)
		if err != nil {
			s.logger.Debug("fetch job page", zap.String("url", out[i].URL), zap.Error(err))
			continue
		}
		if desc := ParseSeekDetail(html); desc != "" {
			out[i].Description = desc
		}
	}
	for i := range out {
		if out[i].Description == "" {
			out[i].Description = out[i].Teaser
		}
	}
	s.logger.Info("scraped seek", zap.Int("count", len(out)))
	return out
}

// ParseSeekPage extracts job cards and the next page URL from a results page.
func ParseSeekPage(html string) ([]posting.Raw, string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, ""
	}
	var out []posting.Raw
	Cards(doc.Selection, seekCards...).Each(func(_ int, card *goquery.Selection) {
		link := seekJobURL(First(card, "", seekLink...))
		if link == "" {
			return
		}
		out = append(out, posting.Raw{
			URL:            link,
			Title:          First(card, UnknownTitle, seekTitle...),
			Company:        First(card, UnknownCompany, seekCompany...),
			Location:       First(card, UnknownLocation, seekPlace...),
			Salary:         First(card, "", seekSalary...),
			Posted:         First(card, "", seekDate...),
			Teaser:         First(card, "", seekTeaser...),
			WorkType:       First(card, "", seekWorkType...),
			Classification: First(card, "", seekClass...),
			Source:         seekName,
		})
	})
	next := ""
	if href := First(doc.Selection, "", seekNext...); href != "" {
		next = resolveSeek(href)
	}
	return out, next
}

// ParseSeekDetail returns the job ad body HTML from a job page.
func ParseSeekDetail(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	node := doc.Find(`div[data-automation="jobAdDetails"]`).First()
	if node.Length() == 0 {
		node = doc.Find(`[class*="description"]`).First()
	}
	if node.Length() == 0 {
		return ""
	}
	inner, err := node.Html()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(inner)
}

// seekJobURL strips tracking parts from href and keeps only job pages.
func seekJobURL(href string) string {
	if href == "" {
		return ""
	}
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	abs := resolveSeek(href)
	u, err := url.Parse(abs)
	if err != nil || !strings.Contains(u.Path, "/job/") {
		return ""
	}
	return abs
}

func resolveSeek(href string) string {
	base, _ := url.Parse(seekBase)
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
