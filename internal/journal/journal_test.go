package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasRecentFindsOrderInWindow(t *testing.T) {
	j, err := New(filepath.Join(t.TempDir(), "journal.jsonl"), time.Minute)
	require.NoError(t, err)

	require.NoError(t, j.WriteOrder(Order{
		OrderID: "o-1", Key: "AAPL", Side: "buy", Quantity: 10,
		Timestamp: time.Now().UTC(), IdempotencyKey: "k1",
	}))

	seen, err := j.HasRecent("k1")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = j.HasRecent("k2")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestHasRecentMissingFile(t *testing.T) {
	j, err := New(filepath.Join(t.TempDir(), "never-written.jsonl"), time.Minute)
	require.NoError(t, err)
	seen, err := j.HasRecent("k1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestHasRecentZeroWindowDisabled(t *testing.T) {
	j, err := New(filepath.Join(t.TempDir(), "journal.jsonl"), 0)
	require.NoError(t, err)
	require.NoError(t, j.WriteOrder(Order{OrderID: "o-1", IdempotencyKey: "k1", Timestamp: time.Now().UTC()}))
	seen, err := j.HasRecent("k1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestFillsDoNotMatchDedupe(t *testing.T) {
	j, err := New(filepath.Join(t.TempDir(), "journal.jsonl"), time.Minute)
	require.NoError(t, err)
	require.NoError(t, j.WriteFill(Fill{OrderID: "o-1", Key: "AAPL", Quantity: 5, Price: 100, Timestamp: time.Now().UTC()}))
	seen, err := j.HasRecent("o-1")
	require.NoError(t, err)
	assert.False(t, seen)
}
