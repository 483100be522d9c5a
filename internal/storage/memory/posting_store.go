package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/jobscout/internal/posting"
)

// PostingStore keeps postings keyed by canonical URL.
type PostingStore struct {
	mu      sync.RWMutex
	records map[string]posting.Record
	now     func() time.Time
}

// NewPostingStore constructs an empty store.
func NewPostingStore() *PostingStore {
	return &PostingStore{records: make(map[string]posting.Record), now: time.Now}
}

// ExistingURLs returns every stored URL.
func (s *PostingStore) ExistingURLs(_ context.Context) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]struct{}, len(s.records))
	for url := range s.records {
		out[url] = struct{}{}
	}
	return out, nil
}

// Exists reports whether url is stored.
func (s *PostingStore) Exists(_ context.Context, url string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[url]
	return ok, nil
}

// CreatePosting inserts p. It returns an empty id when the URL is already stored.
func (s *PostingStore) CreatePosting(_ context.Context, p posting.Posting) (string, error) {
	if strings.TrimSpace(p.URL) == "" {
		return "", errors.New("posting url is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[p.URL]; ok {
		return "", nil
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
	}
	s.records[p.URL] = posting.Record{Posting: p}
	return p.ID, nil
}

// UpdateMatch stores the match outcome for url.
func (s *PostingStore) UpdateMatch(_ context.Context, url string, result posting.MatchResult, artifactRef string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[url]
	if !ok {
		return false, nil
	}
	scored := s.now().UTC()
	res := result
	res.Reasons = append([]string(nil), result.Reasons...)
	res.Suggestions = append([]string(nil), result.Suggestions...)
	rec.Match = &res
	rec.ArtifactRef = artifactRef
	rec.ScoredAt = &scored
	s.records[url] = rec
	return true, nil
}

// UnscoredPostings lists postings with a description and no score, oldest first.
func (s *PostingStore) UnscoredPostings(_ context.Context) ([]posting.Posting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []posting.Posting
	for _, rec := range s.records {
		if rec.Match == nil && strings.TrimSpace(rec.Description) != "" {
			out = append(out, rec.Posting)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].URL < out[j].URL
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Get returns the record for url.
func (s *PostingStore) Get(url string) (posting.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[url]
	return rec, ok
}

// Len reports how many postings are stored.
func (s *PostingStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
