package state

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileTrackerPersistsAcrossRuns(t *testing.T) {
	dir := t.TempDir()

	tracker, err := NewFileTracker(dir)
	require.NoError(t, err)
	assert.False(t, tracker.Seen("h1"))

	require.NoError(t, tracker.MarkSeen("h1", "1"))
	require.NoError(t, tracker.MarkSeen("h1", "1"))
	require.NoError(t, tracker.MarkSeen("", "2"))
	assert.True(t, tracker.Seen("h1"))
	require.NoError(t, tracker.Close())

	reopened, err := NewFileTracker(dir)
	require.NoError(t, err)
	defer reopened.Close()

	assert.True(t, reopened.Seen("h1"))
	assert.False(t, reopened.Seen("h2"))

	data, err := os.ReadFile(reopened.Path())
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "\n"), "duplicate and empty hashes are not journaled")
}

func TestFileTrackerRejectsCorruptJournal(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/"+FileName, []byte("{not json\n"), 0o600))

	_, err := NewFileTracker(dir)
	assert.Error(t, err)
}

func TestNewFileTrackerEmptyDir(t *testing.T) {
	_, err := NewFileTracker("  ")
	assert.Error(t, err)
}

func TestMemoryTracker(t *testing.T) {
	m := NewMemoryTracker()
	assert.False(t, m.Seen(""))
	require.NoError(t, m.MarkSeen("a", "1"))
	assert.True(t, m.Seen("a"))
	assert.False(t, m.Seen("b"))
}
