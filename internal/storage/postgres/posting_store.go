// Package postgres provides the Postgres-backed posting store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/jobscout/internal/posting"
)

const defaultQueryTimeout = 10 * time.Second

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for postings.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	QueryTimeout    time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// PostingStore persists postings keyed by canonical URL.
type PostingStore struct {
	pool    pool
	table   string
	timeout time.Duration
	now     func() time.Time
}

// New connects a pgx pool using cfg.
func New(ctx context.Context, cfg Config) (*PostingStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewWithPool(p, cfg.Table, cfg.QueryTimeout)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool builds a store from an existing pool (primarily for testing).
func NewWithPool(p pool, table string, queryTimeout time.Duration) (*PostingStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "postings"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if queryTimeout <= 0 {
		queryTimeout = defaultQueryTimeout
	}
	return &PostingStore{pool: p, table: table, timeout: queryTimeout, now: time.Now}, nil
}

// Close releases the underlying pool resources.
func (s *PostingStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Migrate creates the postings table when it does not exist.
func (s *PostingStore) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id                TEXT PRIMARY KEY,
	canonical_url     TEXT NOT NULL UNIQUE,
	title             TEXT NOT NULL,
	company           TEXT NOT NULL,
	location          TEXT NOT NULL,
	description       TEXT NOT NULL,
	posted_at         TIMESTAMPTZ NOT NULL,
	posted_raw        TEXT NOT NULL,
	salary            TEXT NOT NULL,
	work_type         TEXT NOT NULL,
	classification    TEXT NOT NULL,
	source            TEXT NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL,
	match_score       DOUBLE PRECISION,
	match_reasons     JSONB,
	match_suggestions JSONB,
	semantic          BOOLEAN,
	artifact_ref      TEXT,
	scored_at         TIMESTAMPTZ
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s table: %w", s.table, err)
	}
	return nil
}

// ExistingURLs returns every stored canonical URL.
func (s *PostingStore) ExistingURLs(ctx context.Context) (map[string]struct{}, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT canonical_url FROM %s`, s.table))
	if err != nil {
		return nil, fmt.Errorf("query existing urls: %w", err)
	}
	defer rows.Close()
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
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE canonical_url = $1)`, s.table)
	if err := s.pool.QueryRow(ctx, query, url).Scan(&exists); err != nil {
		return false, fmt.Errorf("check posting exists: %w", err)
	}
	return exists, nil
}

// CreatePosting inserts p and returns its id, or an empty id when another
// writer already stored the URL.
func (s *PostingStore) CreatePosting(ctx context.Context, p posting.Posting) (string, error) {
	if p.ID == "" || strings.TrimSpace(p.URL) == "" {
		return "", fmt.Errorf("posting id and url are required")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	canonical_url,
	title,
	company,
	location,
	description,
	posted_at,
	posted_raw,
	salary,
	work_type,
	classification,
	source,
	created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
)
ON CONFLICT (canonical_url) DO NOTHING
RETURNING id`, s.table)
	args := []any{
		p.ID,
		p.URL,
		p.Title,
		p.Company,
		p.Location,
		p.Description,
		p.PostedAt,
		p.PostedRaw,
		p.Salary,
		p.WorkType,
		p.Classification,
		p.Source,
		p.CreatedAt,
	}
	var id string
	err := s.pool.QueryRow(ctx, query, args...).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("insert posting: %w", err)
	}
	return id, nil
}

// UpdateMatch records the match outcome for url.
func (s *PostingStore) UpdateMatch(ctx context.Context, url string, result posting.MatchResult, artifactRef string) (bool, error) {
	reasons, err := json.Marshal(nonNil(result.Reasons))
	if err != nil {
		return false, fmt.Errorf("marshal reasons: %w", err)
	}
	suggestions, err := json.Marshal(nonNil(result.Suggestions))
	if err != nil {
		return false, fmt.Errorf("marshal suggestions: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	query := fmt.Sprintf(`
UPDATE %s SET
	match_score = $2,
	match_reasons = $3,
	match_suggestions = $4,
	semantic = $5,
	artifact_ref = $6,
	scored_at = $7
WHERE canonical_url = $1`, s.table)
	tag, err := s.pool.Exec(ctx, query, url, result.Score, reasons, suggestions, result.Semantic, artifactRef, s.now().UTC())
	if err != nil {
		return false, fmt.Errorf("update match: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UnscoredPostings lists postings with a description and no match score.
func (s *PostingStore) UnscoredPostings(ctx context.Context) ([]posting.Posting, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	query := fmt.Sprintf(`
SELECT id, canonical_url, title, company, location, description, posted_at,
	posted_raw, salary, work_type, classification, source, created_at
FROM %s
WHERE match_score IS NULL AND description <> ''
ORDER BY created_at`, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query unscored postings: %w", err)
	}
	defer rows.Close()
	var out []posting.Posting
	for rows.Next() {
		var p posting.Posting
		if err := rows.Scan(
			&p.ID, &p.URL, &p.Title, &p.Company, &p.Location, &p.Description, &p.PostedAt,
			&p.PostedRaw, &p.Salary, &p.WorkType, &p.Classification, &p.Source, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan posting: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unscored postings: %w", err)
	}
	return out, nil
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
