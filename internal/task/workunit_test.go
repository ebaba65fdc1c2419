package task

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverUnits(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	for _, name := range []string{"chapter_002", "chapter_001", "drafts", "chapter_010"} {
		require.NoError(t, os.Mkdir(filepath.Join(root, name), 0o755))
	}
	// A stray file with the prefix must not be treated as a unit.
	require.NoError(t, os.WriteFile(filepath.Join(root, "chapter_notes.txt"), nil, 0o644))

	units, err := DiscoverUnits(root)
	require.NoError(t, err)
	require.Len(t, units, 3)
	assert.Equal(t, "chapter_001", units[0].Name)
	assert.Equal(t, "chapter_002", units[1].Name)
	assert.Equal(t, "chapter_010", units[2].Name)
	assert.Equal(t, "chapter_001", units[0].Key)
	assert.Equal(t, filepath.Join(root, "chapter_001"), units[0].Dir)
}

func TestDiscoverUnitsMissingRoot(t *testing.T) {
	t.Parallel()

	units, err := DiscoverUnits(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, units)
}

func TestDiscoverUnitsRecursive(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "book_one", "chapter_001"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "book_two", "part_a", "chapter_001"), 0o755))
	// Nested chapter-prefixed dirs inside a unit must not be discovered.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "book_one", "chapter_001", "chapter_extras"), 0o755))

	units, err := DiscoverUnitsRecursive(root)
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, filepath.Join(root, "book_one", "chapter_001"), units[0].Dir)
	assert.Equal(t, filepath.Join(root, "book_two", "part_a", "chapter_001"), units[1].Dir)
	// Keys are root-relative, so same-named chapters in different books
	// stay distinct store units.
	assert.Equal(t, filepath.Join("book_one", "chapter_001"), units[0].Key)
	assert.Equal(t, filepath.Join("book_two", "part_a", "chapter_001"), units[1].Key)
	assert.Equal(t, "chapter_001", units[0].Name)
}

func TestWorkUnitLayout(t *testing.T) {
	t.Parallel()

	unit := WorkUnit{Name: "chapter_001", Dir: filepath.Join(t.TempDir(), "chapter_001")}
	require.NoError(t, unit.EnsureLayout())

	for _, dir := range []string{unit.PendingDir(), unit.DoneDir(), unit.FailedDir(), unit.MediaDir()} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}

	assert.Equal(t,
		filepath.Join(unit.Dir, "media", "chapter_001_image_01.jpeg"),
		unit.ArtifactPath("chapter_001_image_01.jpeg"))
}
