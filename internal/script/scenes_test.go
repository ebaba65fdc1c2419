package script

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenesRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	scenes := []Scene{
		{Index: 2, Prompt: "the gates fall", DurationSeconds: 5},
		{Index: 1, Prompt: "an army gathers", Narration: "They came at dawn."},
	}
	require.NoError(t, WriteScenes(dir, scenes))

	loaded, err := LoadScenes(dir)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	// Loading sorts by index.
	assert.Equal(t, 1, loaded[0].Index)
	assert.Equal(t, "an army gathers", loaded[0].Prompt)
	assert.Equal(t, "They came at dawn.", loaded[0].Narration)
	assert.Equal(t, 5, loaded[1].DurationSeconds)
}

func TestScenesFromNarration(t *testing.T) {
	t.Parallel()

	narration := "They came at dawn.\n\n\n\nThe gates held for an hour.\n\n  "
	scenes := ScenesFromNarration(narration, 5)
	require.Len(t, scenes, 2)
	assert.Equal(t, 1, scenes[0].Index)
	assert.Equal(t, "They came at dawn.", scenes[0].Narration)
	assert.Equal(t, scenes[0].Narration, scenes[0].Prompt)
	assert.Equal(t, 5, scenes[1].DurationSeconds)

	assert.Empty(t, ScenesFromNarration("  \n ", 5))
}

func TestLoadScenesMissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadScenes(t.TempDir())
	assert.Error(t, err)
}

func TestLoadScenesRejectsMalformedJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ScenesFilename), []byte("{oops"), 0o644))

	_, err := LoadScenes(dir)
	assert.Error(t, err)
}
