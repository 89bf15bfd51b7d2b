package ledger

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "active_listings.csv"))
}

func TestRecordAndList(t *testing.T) {
	l := newTestLedger(t)

	require.NoError(t, l.Record("110588449674", "Sony WH-1000XM4"))
	require.NoError(t, l.Record("110588449675", "Ceramic mug"))

	records, err := l.List()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "110588449674", records[0].ItemID)
	assert.Equal(t, "Sony WH-1000XM4", records[0].Title)
	assert.False(t, records[0].CreatedAt.IsZero())
	assert.Equal(t, "110588449675", records[1].ItemID)
}

func TestRemove(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.Record("1", "one"))
	require.NoError(t, l.Record("2", "two"))

	found, err := l.Remove("1")
	require.NoError(t, err)
	assert.True(t, found)

	records, err := l.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "2", records[0].ItemID)
}

func TestRemoveMissingLeavesFileUnchanged(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.Record("1", "one"))

	before, err := os.ReadFile(l.path)
	require.NoError(t, err)

	found, err := l.Remove("does-not-exist")
	require.NoError(t, err)
	assert.False(t, found)

	after, err := os.ReadFile(l.path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestListEmptyWhenFileMissing(t *testing.T) {
	l := newTestLedger(t)

	records, err := l.List()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFileFormat(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.Record("42", "A title, with a comma"))

	data, err := os.ReadFile(l.path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "item_id,title,created_at", lines[0])
	assert.Contains(t, lines[1], `"A title, with a comma"`)
}

func TestConcurrentRemoves(t *testing.T) {
	l := newTestLedger(t)
	for _, id := range []string{"1", "2", "3", "4", "5"} {
		require.NoError(t, l.Record(id, "item "+id))
	}

	var wg sync.WaitGroup
	for _, id := range []string{"1", "3", "5"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := l.Remove(id)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	records, err := l.List()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "2", records[0].ItemID)
	assert.Equal(t, "4", records[1].ItemID)
}
