// Package pipeline runs one discovery pass: scrape every source
// concurrently, persist postings not seen before, then score the unscored
// ones and generate artifacts for those that clear the threshold.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobscout/internal/canon"
	"github.com/JakeFAU/jobscout/internal/logging"
	"github.com/JakeFAU/jobscout/internal/metrics"
	"github.com/JakeFAU/jobscout/internal/normalize"
	"github.com/JakeFAU/jobscout/internal/posting"
	"github.com/JakeFAU/jobscout/internal/source"
)

// Progress checkpoints reported by Run.
const (
	ProgressConnecting = 20
	ProgressScraped    = 60
	ProgressMatched    = 95
)

// Store persists postings and match outcomes.
type Store interface {
	ExistingURLs(ctx context.Context) (map[string]struct{}, error)
	Exists(ctx context.Context, url string) (bool, error)
	// CreatePosting returns the new id, or "" when the URL was already stored.
	CreatePosting(ctx context.Context, p posting.Posting) (string, error)
	UpdateMatch(ctx context.Context, url string, result posting.MatchResult, artifactRef string) (bool, error)
	UnscoredPostings(ctx context.Context) ([]posting.Posting, error)
}

// Scorer rates a posting against the candidate profile. It never fails.
type Scorer interface {
	Score(ctx context.Context, p posting.Posting, profile posting.Profile) posting.MatchResult
}

// Generator produces a tailored document for a posting and returns where
// it was stored.
type Generator interface {
	Generate(ctx context.Context, profile posting.Profile, p posting.Posting) (string, error)
}

// ProfileLoader loads the candidate profile.
type ProfileLoader interface {
	Load(ctx context.Context) (posting.Profile, error)
}

// Notifier delivers the run summary. Delivery failures are the notifier's concern.
type Notifier interface {
	Notify(ctx context.Context, msg string)
}

// IDGenerator mints posting ids.
type IDGenerator interface {
	NewID() (string, error)
}

// Source binds an adapter to the targets it scrapes.
type Source struct {
	Name    string
	Adapter source.Adapter
	Targets []source.Target
}

// ProgressFunc receives completion percentages between 0 and 100.
type ProgressFunc func(pct int, msg string)

// Result summarizes a run.
type Result struct {
	NewPostings int
	BySource    map[string]int
	Scored      int
	Matches     []posting.Match
}

// Config wires an Orchestrator. Store, Scorer and Profile are required.
type Config struct {
	Sources    []Source
	Store      Store
	Scorer     Scorer
	Generator  Generator
	Profile    ProfileLoader
	Normalizer normalize.Normalizer
	IDs        IDGenerator
	Threshold  float64
	// Notifier receives the run summary; nil disables it.
	Notifier Notifier
	Now      func() time.Time
	Logger   *zap.Logger
}

// Orchestrator executes pipeline runs.
type Orchestrator struct {
	cfg    Config
	logger *zap.Logger
}

// New validates cfg and builds an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.Store == nil:
		return nil, errors.New("pipeline store is required")
	case cfg.Scorer == nil:
		return nil, errors.New("pipeline scorer is required")
	case cfg.Profile == nil:
		return nil, errors.New("pipeline profile loader is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Orchestrator{
		cfg:    cfg,
		logger: logging.OrNop(cfg.Logger).With(zap.String("component", "pipeline")),
	}, nil
}

// Sources returns the configured source names.
func (o *Orchestrator) Sources() []string {
	names := make([]string, 0, len(o.cfg.Sources))
	for _, s := range o.cfg.Sources {
		names = append(names, s.Name)
	}
	return names
}

// Run executes one pass. Only a profile load failure fails the run; source
// and store failures are logged and skipped.
func (o *Orchestrator) Run(ctx context.Context, progress ProgressFunc) (Result, error) {
	if progress == nil {
		progress = func(int, string) {}
	}
	result := Result{BySource: make(map[string]int, len(o.cfg.Sources))}

	progress(ProgressConnecting, "Connecting to job boards...")
	result.NewPostings = o.scrapeAll(ctx, result.BySource, progress)
	progress(ProgressScraped, "Scraping complete")

	o.logger.Info("scrape phase finished",
		zap.Int("new_postings", result.NewPostings),
		zap.Any("by_source", result.BySource),
	)
	if result.NewPostings == 0 {
		return result, nil
	}

	profile, err := o.cfg.Profile.Load(ctx)
	if err != nil {
		return result, fmt.Errorf("load profile: %w", err)
	}
	if err := o.match(ctx, profile, &result, progress); err != nil {
		return result, err
	}
	progress(ProgressMatched, fmt.Sprintf("Matched %d postings", result.Scored))
	o.notifySummary(ctx, result.Matches)
	return result, nil
}

// scrapeAll runs one goroutine per source and returns the total persisted.
func (o *Orchestrator) scrapeAll(ctx context.Context, bySource map[string]int, progress ProgressFunc) int {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		done    int
		total   int
		claimed = newURLSet()
	)
	n := len(o.cfg.Sources)
	for _, src := range o.cfg.Sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			count := o.scrapeSource(ctx, src, claimed)

			mu.Lock()
			defer mu.Unlock()
			bySource[src.Name] += count
			total += count
			done++
			pct := ProgressConnecting + (ProgressScraped-ProgressConnecting)*done/n
			progress(pct, fmt.Sprintf("Finished %s (%d new)", src.Name, count))
		}(src)
	}
	wg.Wait()
	return total
}

// scrapeSource scrapes every target of src. A panic or failure counts as zero.
func (o *Orchestrator) scrapeSource(ctx context.Context, src Source, claimed *urlSet) (count int) {
	logger := o.logger.With(zap.String("source", src.Name))
	defer func() {
		if r := recover(); r != nil {
			logger.Error("source task panicked", zap.Any("panic", r), zap.Stack("stack"))
			metrics.ObserveSourceFailure(src.Name)
			count = 0
		}
	}()
	if src.Adapter == nil {
		logger.Warn("source has no adapter")
		return 0
	}

	known := make(map[string]struct{})
	existing, err := o.cfg.Store.ExistingURLs(ctx)
	if err != nil {
		logger.Warn("load existing urls failed", zap.Error(err))
	}
	for u := range existing {
		known[canon.URL(u)] = struct{}{}
	}

	for _, target := range src.Targets {
		raws := src.Adapter.Scrape(ctx, target)
		metrics.ObserveScraped(src.Name, len(raws))
		for _, raw := range raws {
			if o.persist(ctx, logger, src.Name, raw, known, claimed) {
				count++
			}
		}
	}
	logger.Info("source finished", zap.Int("new_postings", count))
	return count
}

func (o *Orchestrator) persist(
	ctx context.Context,
	logger *zap.Logger,
	sourceName string,
	raw posting.Raw,
	known map[string]struct{},
	claimed *urlSet,
) bool {
	url := canon.URL(raw.URL)
	if url == "" {
		return false
	}
	if _, ok := known[url]; ok {
		metrics.ObserveDuplicate(sourceName)
		return false
	}
	exists, err := o.cfg.Store.Exists(ctx, url)
	if err != nil {
		logger.Warn("exists check failed", zap.String("url", url), zap.Error(err))
		return false
	}
	if exists {
		known[url] = struct{}{}
		metrics.ObserveDuplicate(sourceName)
		return false
	}
	if !claimed.claim(url) {
		known[url] = struct{}{}
		metrics.ObserveDuplicate(sourceName)
		return false
	}

	p := o.build(sourceName, url, raw)
	id, err := o.cfg.Store.CreatePosting(ctx, p)
	if err != nil {
		claimed.release(url)
		logger.Warn("create posting failed", zap.String("url", url), zap.Error(err))
		return false
	}
	known[url] = struct{}{}
	if id == "" {
		metrics.ObserveDuplicate(sourceName)
		return false
	}
	metrics.ObserveNewPosting(sourceName)
	logger.Debug("posting stored", zap.String("url", url), zap.String("title", p.Title))
	return true
}

func (o *Orchestrator) build(sourceName, url string, raw posting.Raw) posting.Posting {
	now := o.cfg.Now().UTC()
	postedAt, _ := posting.ParseDate(raw.Posted, now)
	description := raw.Description
	if strings.TrimSpace(description) == "" {
		description = raw.Teaser
	}
	p := posting.Posting{
		URL:            url,
		Title:          raw.Title,
		Company:        raw.Company,
		Location:       raw.Location,
		Description:    o.cfg.Normalizer.Clean(description),
		PostedAt:       postedAt,
		PostedRaw:      raw.Posted,
		Salary:         raw.Salary,
		WorkType:       raw.WorkType,
		Classification: raw.Classification,
		Source:         sourceName,
		CreatedAt:      now,
	}
	if raw.Source != "" {
		p.Source = raw.Source
	}
	if o.cfg.IDs != nil {
		if id, err := o.cfg.IDs.NewID(); err == nil {
			p.ID = id
		} else {
			o.logger.Warn("generate posting id failed", zap.Error(err))
		}
	}
	if p.ID == "" {
		p.ID = url
	}
	return p
}

func (o *Orchestrator) match(ctx context.Context, profile posting.Profile, result *Result, progress ProgressFunc) error {
	postings, err := o.cfg.Store.UnscoredPostings(ctx)
	if err != nil {
		o.logger.Warn("load unscored postings failed", zap.Error(err))
		return nil
	}
	for i, p := range postings {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("matching interrupted: %w", err)
		}
		o.matchOne(ctx, profile, p, result)
		pct := ProgressScraped + (ProgressMatched-ProgressScraped)*(i+1)/len(postings)
		progress(pct, fmt.Sprintf("Matched %d of %d postings", i+1, len(postings)))
	}
	return nil
}

func (o *Orchestrator) matchOne(ctx context.Context, profile posting.Profile, p posting.Posting, result *Result) {
	if strings.TrimSpace(p.Description) == "" {
		return
	}
	logger := o.logger.With(zap.String("url", p.URL), zap.String("source", p.Source))
	score := o.cfg.Scorer.Score(ctx, p, profile)
	result.Scored++

	var ref string
	if score.Score >= o.cfg.Threshold && o.cfg.Generator != nil {
		generated, err := o.cfg.Generator.Generate(ctx, profile, p)
		if err != nil {
			logger.Warn("artifact generation failed", zap.Float64("score", score.Score), zap.Error(err))
		} else {
			ref = generated
			result.Matches = append(result.Matches, posting.Match{
				Title:       p.Title,
				Company:     p.Company,
				URL:         p.URL,
				ArtifactRef: ref,
				Score:       score.Score,
				Source:      p.Source,
			})
		}
	}
	if _, err := o.cfg.Store.UpdateMatch(ctx, p.URL, score, ref); err != nil {
		logger.Warn("update match failed", zap.Error(err))
	}
	logger.Debug("posting scored", zap.Float64("score", score.Score), zap.Bool("semantic", score.Semantic))
}

func (o *Orchestrator) notifySummary(ctx context.Context, matches []posting.Match) {
	if o.cfg.Notifier == nil || len(matches) == 0 {
		return
	}
	o.cfg.Notifier.Notify(ctx, Summary(matches))
}

// Summary renders the match list sent after a run, best score first.
func Summary(matches []posting.Match) string {
	sorted := append([]posting.Match(nil), matches...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d matching jobs\n", len(sorted))
	for i, m := range sorted {
		fmt.Fprintf(&b, "\n%d. *%s*", i+1, m.Title)
		if m.Company != "" {
			fmt.Fprintf(&b, " at %s", m.Company)
		}
		fmt.Fprintf(&b, " (%.1f)\n%s\n", m.Score, m.URL)
	}
	return b.String()
}

// urlSet is the run-wide claim set shared by source goroutines.
type urlSet struct {
	mu   sync.Mutex
	urls map[string]struct{}
}

func newURLSet() *urlSet {
	return &urlSet{urls: make(map[string]struct{})}
}

// claim reports whether url was unclaimed and marks it claimed.
func (s *urlSet) claim(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.urls[url]; ok {
		return false
	}
	s.urls[url] = struct{}{}
	return true
}

func (s *urlSet) release(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.urls, url)
}
