package history

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", 0)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func entry(i int) Entry {
	return NewEntry(fmt.Sprintf("/downloads/img%03d.png", i), fmt.Sprintf("https://e.com/%d.jpg", i), time.UnixMilli(int64(1_700_000_000_000+i)))
}

func TestAppendEvictsOldest(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	for i := 1; i <= 101; i++ {
		require.NoError(t, s.Append(ctx, entry(i)))
	}
	got, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 100)
	assert.Equal(t, entry(101), got[0], "most recent first")
	assert.Equal(t, entry(2), got[99], "first entry evicted")
}

func TestListEmpty(t *testing.T) {
	got, err := openMemory(t).List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	require.NoError(t, s.Append(ctx, entry(1)))
	require.NoError(t, s.Clear(ctx))
	got, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestConcurrentAppendsAreNotLost(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"), 10)
	require.NoError(t, err)
	defer s.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Append(ctx, entry(i)))
		}(i)
	}
	wg.Wait()
	got, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 8)
}

func TestNewEntry(t *testing.T) {
	e := NewEntry("/tmp/dl/abc (2).png", "https://e.com/x", time.UnixMilli(42))
	assert.Equal(t, "abc (2).png", e.Filename)
	assert.Equal(t, int64(42), e.TimestampMillis)
	assert.Equal(t, time.UnixMilli(42), e.Time())
}

func TestEntryJSONFields(t *testing.T) {
	raw, err := json.Marshal(NewEntry("/d/a.png", "https://e.com/a", time.UnixMilli(1_700_000_000_123)))
	require.NoError(t, err)
	assert.JSONEq(t, `{"path":"/d/a.png","sourceUrl":"https://e.com/a","timestampMillis":1700000000123,"filename":"a.png"}`, string(raw))
}
