package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)

// testStore opens a store in a fresh temporary directory.
// Returns the store and its path so tests can reopen it.
func testStore(t *testing.T, historyLimit int) (*Store, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "reputation.db")
	store, err := NewStore(StoreConfig{Path: path, HistoryLimit: historyLimit})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store, path
}
