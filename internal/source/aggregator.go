package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobscout/internal/posting"
	"github.com/JakeFAU/jobscout/internal/retry"
)

const (
	aggregatorName     = "aggregator"
	aggregatorBaseURL  = "https://api.adzuna.com/v1/api/jobs"
	aggregatorPageSize = 50
	aggregatorMaxPages = 3
)

// AggregatorConfig configures the Adzuna-style search API.
type AggregatorConfig struct {
	BaseURL string
	AppID   string
	AppKey  string
	Default Query
}

// Aggregator pulls postings from a public job search API.
type Aggregator struct {
	cfg    AggregatorConfig
	client *retry.Client
	logger *zap.Logger
}

type aggregatorResponse struct {
	Results []aggregatorResult `json:"results"`
	Count   int                `json:"count"`
}

type aggregatorResult struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	RedirectURL  string  `json:"redirect_url"`
	Created      string  `json:"created"`
	SalaryMin    float64 `json:"salary_min"`
	SalaryMax    float64 `json:"salary_max"`
	ContractTime string  `json:"contract_time"`
	Company      struct {
		DisplayName string `json:"display_name"`
	} `json:"company"`
	Location struct {
		DisplayName string `json:"display_name"`
	} `json:"location"`
	Category struct {
		Label string `json:"label"`
	} `json:"category"`
}

// NewAggregator builds the adapter over a retrying client.
func NewAggregator(cfg AggregatorConfig, client *retry.Client, logger *zap.Logger) *Aggregator {
	if cfg.BaseURL == "" {
		cfg.BaseURL = aggregatorBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{cfg: cfg, client: client, logger: logger.With(zap.String("source", aggregatorName))}
}

// Name implements Adapter.
func (a *Aggregator) Name() string { return aggregatorName }

// Scrape implements Adapter. Missing credentials yield no postings.
func (a *Aggregator) Scrape(ctx context.Context, target Target) []posting.Raw {
	if a.cfg.AppID == "" || a.cfg.AppKey == "" {
		a.logger.Warn("aggregator credentials not set; skipping")
		return nil
	}
	q := a.cfg.Default
	if target.Query != nil {
		q = *target.Query
	}
	if q.Country == "" {
		q.Country = "au"
	}
	wanted := q.ResultsWanted
	if wanted <= 0 {
		wanted = 10
	}

	var out []posting.Raw
	for page := 1; page <= aggregatorMaxPages && len(out) < wanted; page++ {
		batch, err := a.fetchPage(ctx, q, page)
		if err != nil {
			a.logger.Warn("aggregator page failed", zap.Int("page", page), zap.Error(err))
			break
		}
		for _, r := range batch {
			if len(out) >= wanted {
				break
			}
			out = append(out, r)
		}
		if len(batch) < aggregatorPageSize {
			break
		}
	}
	a.logger.Info("scraped aggregator", zap.Int("count", len(out)))
	return out
}

func (a *Aggregator) fetchPage(ctx context.Context, q Query, page int) ([]posting.Raw, error) {
	params := url.Values{}
	params.Set("app_id", a.cfg.AppID)
	params.Set("app_key", a.cfg.AppKey)
	params.Set("results_per_page", strconv.Itoa(aggregatorPageSize))
	params.Set("content-type", "application/json")
	params.Set("sort_by", "date")
	if q.SearchTerm != "" {
		params.Set("what", q.SearchTerm)
	}
	if q.Location != "" {
		params.Set("where", q.Location)
	}
	if q.HoursOld > 0 {
		days := (q.HoursOld + 23) / 24
		params.Set("max_days_old", strconv.Itoa(days))
	}
	endpoint := fmt.Sprintf("%s/%s/search/%d?%s", a.cfg.BaseURL, url.PathEscape(q.Country), page, params.Encode())

	body, err := a.client.Do(ctx, "aggregator search", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var resp aggregatorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode aggregator response: %w", err)
	}
	out := make([]posting.Raw, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.RedirectURL == "" {
			continue
		}
		out = append(out, posting.Raw{
			URL:            r.RedirectURL,
			Title:          orDefault(r.Title, UnknownTitle),
			Company:        orDefault(r.Company.DisplayName, UnknownCompany),
			Location:       orDefault(r.Location.DisplayName, UnknownLocation),
			Description:    r.Description,
			Posted:         r.Created,
			Salary:         salaryRange(r.SalaryMin, r.SalaryMax),
			WorkType:       r.ContractTime,
			Classification: r.Category.Label,
			Source:         aggregatorName,
		})
	}
	return out, nil
}

func salaryRange(lo, hi float64) string {
	switch {
	case lo > 0 && hi > 0 && hi != lo:
		return fmt.Sprintf("$%.0f - $%.0f", lo, hi)
	case lo > 0:
		return fmt.Sprintf("$%.0f", lo)
	case hi > 0:
		return fmt.Sprintf("$%.0f", hi)
	}
	return ""
}

func orDefault(s, fallback string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return fallback
}
