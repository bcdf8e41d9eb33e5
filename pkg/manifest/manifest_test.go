package manifest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() *Manifest {
	return &Manifest{
		BuildID:   "b-1",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Entry:     "main",
		Chunks: []Chunk{
			{ID: "main", File: "main.ab12cd34.js", Hash: "ab12cd34", Size: 512},
			{ID: "vendor", File: "vendor.99fe01aa.js", Hash: "99fe01aa", Size: 2048, Requires: []string{"main"}},
		},
		Preload: []string{"vendor"},
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := sample()

	require.NoError(t, m.SaveDir(dir))

	loaded, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, m.BuildID, loaded.BuildID)
	assert.Equal(t, m.Entry, loaded.Entry)
	assert.Len(t, loaded.Chunks, 2)
	assert.Equal(t, []string{"vendor"}, loaded.Preload)
}

func TestLoad_MissingFileIsEmptyManifest(t *testing.T) {
	m, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, err, "absent preload source must not be an error")
	assert.Empty(t, m.Chunks)
	assert.Empty(t, m.Preload)
}

func TestLoad_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLookup(t *testing.T) {
	m := sample()

	c, ok := m.Lookup("vendor")
	require.True(t, ok)
	assert.Equal(t, "vendor.99fe01aa.js", c.File)

	_, ok = m.Lookup("missing")
	assert.False(t, ok)
}

func TestIsPreloaded(t *testing.T) {
	m := sample()
	assert.True(t, m.IsPreloaded("vendor"))
	assert.False(t, m.IsPreloaded("main"))
}

func TestIDsAndTotalSize(t *testing.T) {
	m := sample()
	assert.Equal(t, []string{"main", "vendor"}, m.IDs())
	assert.Equal(t, int64(2560), m.TotalSize())
}

func TestSave_Atomic(t *testing.T) {
	dir := t.TempDir()
	m := sample()
	require.NoError(t, m.SaveDir(dir))

	// Overwriting an existing manifest must succeed and leave no temp files.
	m.BuildID = "b-2"
	require.NoError(t, m.SaveDir(dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, FileName, entries[0].Name())

	loaded, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, "b-2", loaded.BuildID)
}
