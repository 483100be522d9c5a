package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/jobscout/internal/posting"
)

func newMockStore(t *testing.T) (*PostingStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewWithPool(mock, "postings", time.Second)
	require.NoError(t, err)
	store.now = func() time.Time { return time.Unix(1700000000, 0) }
	return store, mock
}

func TestNewWithPoolValidatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, "postings; drop", 0)
	require.Error(t, err)
	_, err = NewWithPool(nil, "", 0)
	require.Error(t, err)
	store, err := NewWithPool(mock, "", 0)
	require.NoError(t, err)
	require.Equal(t, "postings", store.table)
	require.Equal(t, defaultQueryTimeout, store.timeout)
}

func TestCreatePostingInsertsRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	posted := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	p := posting.Posting{
		ID:        "uuid-v7",
		URL:       "https://www.seek.com.au/job/1",
		Title:     "Go Engineer",
		Company:   "Acme",
		Location:  "Melbourne",
		PostedAt:  posted,
		PostedRaw: "2d ago",
		Source:    "seek",
	}

	mock.ExpectQuery("INSERT INTO postings").
		WithArgs(p.ID, p.URL, p.Title, p.Company, p.Location, "", posted, "2d ago", "", "", "", "seek", time.Unix(1700000000, 0).UTC()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("uuid-v7"))

	id, err := store.CreatePosting(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, "uuid-v7", id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePostingConflictReturnsEmptyID(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("INSERT INTO postings").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	id, err := store.CreatePosting(context.Background(), posting.Posting{ID: "x", URL: "https://a/1"})
	require.NoError(t, err)
	require.Empty(t, id)

	_, err = store.CreatePosting(context.Background(), posting.Posting{URL: "https://a/1"})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExistingURLsAndExists(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT canonical_url FROM postings").
		WillReturnRows(pgxmock.NewRows([]string{"canonical_url"}).AddRow("https://a/1").AddRow("https://a/2"))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("https://a/1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("https://a/3").
		WillReturnError(errors.New("connection reset"))

	urls, err := store.ExistingURLs(context.Background())
	require.NoError(t, err)
	require.Len(t, urls, 2)
	require.Contains(t, urls, "https://a/2")

	ok, err := store.Exists(context.Background(), "https://a/1")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = store.Exists(context.Background(), "https://a/3")
	require.ErrorContains(t, err, "check posting exists")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMatch(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE postings SET").
		WithArgs("https://a/1", 8.2, []byte(`["Go"]`), []byte(`[]`), true, "gs://b/a.md", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE postings SET").
		WithArgs("https://a/missing", 1.0, []byte(`[]`), []byte(`[]`), false, "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := store.UpdateMatch(context.Background(), "https://a/1",
		posting.MatchResult{Score: 8.2, Reasons: []string{"Go"}, Semantic: true}, "gs://b/a.md")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.UpdateMatch(context.Background(), "https://a/missing", posting.MatchResult{Score: 1}, "")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnscoredPostings(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	created := time.Unix(1700000000, 0).UTC()
	cols := []string{"id", "canonical_url", "title", "company", "location", "description", "posted_at",
		"posted_raw", "salary", "work_type", "classification", "source", "created_at"}
	mock.ExpectQuery("WHERE match_score IS NULL").
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("p1", "https://a/1", "Go Engineer", "Acme", "Sydney", "Build things", created,
				"", "", "", "", "linkedin", created))

	got, err := store.UnscoredPostings(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Go Engineer", got[0].Title)
	require.Equal(t, "linkedin", got[0].Source)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS postings").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
