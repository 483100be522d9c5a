package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

func newTestStore(t *testing.T, handler http.Handler, cfg Config) *BlobStore {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, cfg)
	require.NoError(t, err)
	return store
}

func TestPutObjectUploadsWithPrefix(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/test-bucket/o")
		assert.Equal(t, "jobs/artifacts/seek/abc.md", r.URL.Query().Get("name"))
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), "# Tailored CV")
		fmt.Fprintln(w, `{"name": "jobs/artifacts/seek/abc.md"}`)
	})
	store := newTestStore(t, handler, Config{Bucket: "test-bucket", Prefix: "/jobs/"})

	uri, err := store.PutObject(context.Background(), "artifacts/seek/abc.md", "text/markdown", bytes.NewReader([]byte("# Tailored CV")))
	require.NoError(t, err)
	require.Equal(t, "gs://test-bucket/jobs/artifacts/seek/abc.md", uri)
}

func TestPutObjectServerError(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	store := newTestStore(t, handler, Config{Bucket: "test-bucket"})

	_, err := store.PutObject(context.Background(), "a.md", "", bytes.NewReader([]byte("x")))
	require.Error(t, err)
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, http.NotFoundHandler(), Config{Bucket: "b"})
	_, err := store.PutObject(context.Background(), " ", "", bytes.NewReader(nil))
	require.Error(t, err)
}

func TestOpenChecksBucket(t *testing.T) {
	t.Parallel()

	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/b/test-bucket")
		fmt.Fprintln(w, `{"name": "test-bucket"}`)
	}))
	defer ok.Close()
	store, err := Open(context.Background(), Config{Bucket: "test-bucket"}, zap.NewNop(),
		option.WithEndpoint(ok.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	missing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer missing.Close()
	_, err = Open(context.Background(), Config{Bucket: "test-bucket"}, nil,
		option.WithEndpoint(missing.URL), option.WithoutAuthentication())
	require.ErrorContains(t, err, "attributes")

	_, err = Open(context.Background(), Config{}, nil)
	require.Error(t, err)
}
