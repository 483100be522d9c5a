package filelock

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWriteAndReadAtomic(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "state.json")
	data, err := ReadFile(path)
	require.NoError(t, err)
	require.Nil(t, data)

	require.NoError(t, Exclusive(context.Background(), path, func() error {
		return WriteFileAtomic(path, []byte(`{"a":1}`), 0o600)
	}))
	data, err = ReadFile(path)
	require.NoError(t, err)
	require.JSONEq(t, `{"a":1}`, string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, e := range entries {
		require.NotContains(t, e.Name(), ".tmp-")
	}
}

func TestExclusiveSerializesReadModifyWrite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "counter")
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := Exclusive(context.Background(), path, func() error {
				data, err := ReadFile(path)
				if err != nil {
					return err
				}
				n := 0
				if len(data) > 0 {
					n, _ = strconv.Atoi(string(data))
				}
				return WriteFileAtomic(path, []byte(strconv.Itoa(n+1)), 0o644)
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	data, err := ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "20", string(data))
}

func TestExclusiveHonoursContext(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "busy")
	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = Exclusive(context.Background(), path, func() error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held
	defer close(done)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := Shared(ctx, path, func() error { return nil })
	require.Error(t, err)
}
