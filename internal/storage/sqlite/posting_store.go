// Package sqlite provides a single-file posting store on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/jobscout/internal/posting"
)

const schema = `
CREATE TABLE IF NOT EXISTS postings (
	id                TEXT PRIMARY KEY,
	canonical_url     TEXT NOT NULL UNIQUE,
	title             TEXT NOT NULL,
	company           TEXT NOT NULL,
	location          TEXT NOT NULL,
	description       TEXT NOT NULL,
	posted_at         TEXT NOT NULL,
	posted_raw        TEXT NOT NULL,
	salary            TEXT NOT NULL,
	work_type         TEXT NOT NULL,
	classification    TEXT NOT NULL,
	source            TEXT NOT NULL,
	created_at        TEXT NOT NULL,
	match_score       REAL,
	match_reasons     TEXT,
	match_suggestions TEXT,
	semantic          INTEGER,
	artifact_ref      TEXT,
	scored_at         TEXT
)`

// PostingStore persists postings keyed by canonical URL.
type PostingStore struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at path and ensures the schema exists.
func Open(ctx context.Context, path string) (*PostingStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	for _, stmt := range []string{`PRAGMA journal_mode=WAL`, `PRAGMA busy_timeout=5000`, schema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init sqlite db: %w", err)
		}
	}
	return &PostingStore{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *PostingStore) Close() error {
	return s.db.Close()
}

// ExistingURLs returns every stored canonical URL.
func (s *PostingStore) ExistingURLs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT canonical_url FROM postings`)
	if err != nil {
		return nil, fmt.Errorf("query existing urls: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only
	out := make(map[string]struct{})
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("scan existing url: %w", err)
		}
		out[url] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate existing urls: %w", err)
	}
	return out, nil
}

// Exists reports whether url is stored.
func (s *PostingStore) Exists(ctx context.Context, url string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM postings WHERE canonical_url = ?`, url).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check posting exists: %w", err)
	}
	return true, nil
}

// CreatePosting inserts p and returns its id, or an empty id when the URL
// is already stored.
func (s *PostingStore) CreatePosting(ctx context.Context, p posting.Posting) (string, error) {
	if p.ID == "" || strings.TrimSpace(p.URL) == "" {
		return "", errors.New("posting id and url are required")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO postings (
	id, canonical_url, title, company, location, description, posted_at,
	posted_raw, salary, work_type, classification, source, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (canonical_url) DO NOTHING`,
		p.ID, p.URL, p.Title, p.Company, p.Location, p.Description, formatTime(p.PostedAt),
		p.PostedRaw, p.Salary, p.WorkType, p.Classification, p.Source, formatTime(p.CreatedAt),
	)
	if err != nil {
		return "", fmt.Errorf("insert posting: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("insert posting rows affected: %w", err)
	}
	if n == 0 {
		return "", nil
	}
	return p.ID, nil
}

// UpdateMatch records the match outcome for url.
func (s *PostingStore) UpdateMatch(ctx context.Context, url string, result posting.MatchResult, artifactRef string) (bool, error) {
	reasons, err := marshalList(result.Reasons)
	if err != nil {
		return false, err
	}
	suggestions, err := marshalList(result.Suggestions)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE postings SET
	match_score = ?, match_reasons = ?, match_suggestions = ?, semantic = ?,
	artifact_ref = ?, scored_at = ?
WHERE canonical_url = ?`,
		result.Score, reasons, suggestions, result.Semantic, artifactRef, formatTime(s.now().UTC()), url,
	)
	if err != nil {
		return false, fmt.Errorf("update match: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update match rows affected: %w", err)
	}
	return n > 0, nil
}

// UnscoredPostings lists postings with a description and no match score.
func (s *PostingStore) UnscoredPostings(ctx context.Context) ([]posting.Posting, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, canonical_url, title, company, location, description, posted_at,
	posted_raw, salary, work_type, classification, source, created_at
FROM postings
WHERE match_score IS NULL AND description <> ''
ORDER BY created_at, canonical_url`)
	if err != nil {
		return nil, fmt.Errorf("query unscored postings: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only
	var out []posting.Posting
	for rows.Next() {
		var (
			p               posting.Posting
			posted, created string
		)
		if err := rows.Scan(
			&p.ID, &p.URL, &p.Title, &p.Company, &p.Location, &p.Description, &posted,
			&p.PostedRaw, &p.Salary, &p.WorkType, &p.Classification, &p.Source, &created,
		); err != nil {
			return nil, fmt.Errorf("scan posting: %w", err)
		}
		p.PostedAt = parseTime(posted)
		p.CreatedAt = parseTime(created)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unscored postings: %w", err)
	}
	return out, nil
}

// Get returns the stored record for url.
func (s *PostingStore) Get(ctx context.Context, url string) (posting.Record, error) {
	var (
		rec                          posting.Record
		posted, created              string
		score                        sql.NullFloat64
		reasons, suggestions, artRef sql.NullString
		scoredAt                     sql.NullString
		semantic                     sql.NullBool
	)
	err := s.db.QueryRowContext(ctx, `
SELECT id, canonical_url, title, company, location, description, posted_at,
	posted_raw, salary, work_type, classification, source, created_at,
	match_score, match_reasons, match_suggestions, semantic, artifact_ref, scored_at
FROM postings WHERE canonical_url = ?`, url).Scan(
		&rec.ID, &rec.URL, &rec.Title, &rec.Company, &rec.Location, &rec.Description, &posted,
		&rec.PostedRaw, &rec.Salary, &rec.WorkType, &rec.Classification, &rec.Source, &created,
		&score, &reasons, &suggestions, &semantic, &artRef, &scoredAt,
	)
	if err != nil {
		return posting.Record{}, fmt.Errorf("get posting: %w", err)
	}
	rec.PostedAt = parseTime(posted)
	rec.CreatedAt = parseTime(created)
	if score.Valid {
		m := &posting.MatchResult{Score: score.Float64, Semantic: semantic.Bool}
		if m.Reasons, err = unmarshalList(reasons); err != nil {
			return posting.Record{}, fmt.Errorf("get posting %s reasons: %w", url, err)
		}
		if m.Suggestions, err = unmarshalList(suggestions); err != nil {
			return posting.Record{}, fmt.Errorf("get posting %s suggestions: %w", url, err)
		}
		rec.Match = m
		rec.ArtifactRef = artRef.String
		if t := parseTime(scoredAt.String); !t.IsZero() {
			rec.ScoredAt = &t
		}
	}
	return rec, nil
}

func marshalList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("marshal list: %w", err)
	}
	return string(b), nil
}

func unmarshalList(col sql.NullString) ([]string, error) {
	items := []string{}
	if !col.Valid || col.String == "" {
		return items, nil
	}
	if err := json.Unmarshal([]byte(col.String), &items); err != nil {
		return nil, fmt.Errorf("unmarshal list: %w", err)
	}
	return items, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
