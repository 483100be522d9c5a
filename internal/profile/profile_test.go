package profile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileLoaderPlainText(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cv.txt")
	require.NoError(t, os.WriteFile(path, []byte("  Go engineer\nKubernetes  \n"), 0o600))

	p, err := NewFileLoader(path, 0).Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Go engineer\nKubernetes", p.Text)
	require.Equal(t, path, p.Source)
}

func TestFileLoaderNormalizesHTML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cv.html")
	html := `<html><body><nav>menu</nav><p>Go engineer</p><p>Ten years of backend work</p><script>x()</script></body></html>`
	require.NoError(t, os.WriteFile(path, []byte(html), 0o600))

	p, err := NewFileLoader(path, 0).Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Go engineer\n\nTen years of backend work", p.Text)
}

func TestFileLoaderErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := NewFileLoader(filepath.Join(dir, "missing.txt"), 0).Load(context.Background())
	require.Error(t, err)

	empty := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte(" \n\t"), 0o600))
	_, err = NewFileLoader(empty, 0).Load(context.Background())
	require.ErrorIs(t, err, ErrEmpty)

	_, err = NewFileLoader("", 0).Load(context.Background())
	require.Error(t, err)
}
