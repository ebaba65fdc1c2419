package fsstore

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fablereel/fablereel/internal/task"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	return New(root, slog.New(slog.NewTextHandler(io.Discard, nil))), root
}

func testDescriptor(id string) *task.Descriptor {
	return &task.Descriptor{
		TaskID:       id,
		Unit:         "chapter_001",
		Kind:         task.KindImage,
		OutputPath:   "chapter_001/media/out.jpeg",
		Filename:     "out.jpeg",
		Inputs:       task.Inputs{Prompt: "a lighthouse in a storm"},
		Status:       task.StatusSubmitted,
		SubmitTime:   time.Now().UTC().Truncate(time.Second),
		AttemptCount: 1,
	}
}

func TestStoreSaveAndGet(t *testing.T) {
	t.Parallel()

	s, root := newTestStore(t)
	ctx := context.Background()

	d := testDescriptor("task-1")
	require.NoError(t, s.Save(ctx, d))

	// The record file lands in the pending role directory.
	_, err := os.Stat(filepath.Join(root, "chapter_001", "tasks", "pending", "task-1.json"))
	require.NoError(t, err)

	got, err := s.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, d.TaskID, got.TaskID)
	assert.Equal(t, d.Inputs.Prompt, got.Inputs.Prompt)
	assert.Equal(t, d.SubmitTime, got.SubmitTime.Truncate(time.Second))
}

func TestStoreSaveRejectsDuplicates(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, testDescriptor("task-1")))
	assert.ErrorIs(t, s.Save(ctx, testDescriptor("task-1")), task.ErrDuplicateTaskID)
}

func TestStoreSaveRejectsArchivedDuplicate(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ctx := context.Background()

	d := testDescriptor("task-1")
	require.NoError(t, s.Save(ctx, d))
	require.NoError(t, d.MarkFailed("boom", time.Now().UTC()))
	require.NoError(t, s.Archive(ctx, d))

	// The ID is still taken even though the pending file is gone.
	assert.ErrorIs(t, s.Save(ctx, testDescriptor("task-1")), task.ErrDuplicateTaskID)
}

func TestStoreSaveRejectsDuplicateInAnotherUnit(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, testDescriptor("task-1")))

	// Task IDs are store-wide; a second unit cannot claim the same one.
	other := testDescriptor("task-1")
	other.Unit = "chapter_002"
	assert.ErrorIs(t, s.Save(ctx, other), task.ErrDuplicateTaskID)
}

func TestStoreUpdate(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ctx := context.Background()

	d := testDescriptor("task-1")
	require.NoError(t, s.Save(ctx, d))

	require.NoError(t, d.MarkProcessing())
	require.NoError(t, s.Update(ctx, d))

	got, err := s.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, task.StatusProcessing, got.Status)
}

func TestStoreUpdateMissingRecord(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	assert.ErrorIs(t, s.Update(context.Background(), testDescriptor("ghost")), task.ErrTaskNotFound)
}

func TestStoreListPending(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"task-b", "task-a", "task-c"} {
		require.NoError(t, s.Save(ctx, testDescriptor(id)))
	}

	pending, err := s.ListPending(ctx, "chapter_001")
	require.NoError(t, err)
	require.Len(t, pending, 3)
	// Listing order follows the sorted file names.
	assert.Equal(t, "task-a", pending[0].TaskID)
	assert.Equal(t, "task-b", pending[1].TaskID)
	assert.Equal(t, "task-c", pending[2].TaskID)
}

func TestStoreListPendingSkipsCorruptFiles(t *testing.T) {
	t.Parallel()

	s, root := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, testDescriptor("task-ok")))
	corrupt := filepath.Join(root, "chapter_001", "tasks", "pending", "task-bad.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{not json"), 0o644))

	pending, err := s.ListPending(ctx, "chapter_001")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "task-ok", pending[0].TaskID)
}

func TestStoreListPendingMissingUnit(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	pending, err := s.ListPending(context.Background(), "chapter_404")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestStoreArchive(t *testing.T) {
	t.Parallel()

	t.Run("completed record moves to done", func(t *testing.T) {
		t.Parallel()
		s, root := newTestStore(t)
		ctx := context.Background()

		d := testDescriptor("task-1")
		require.NoError(t, s.Save(ctx, d))
		require.NoError(t, d.MarkProcessing())
		require.NoError(t, d.MarkCompleted(time.Now().UTC()))
		require.NoError(t, s.Archive(ctx, d))

		_, err := os.Stat(filepath.Join(root, "chapter_001", "tasks", "done", "task-1.json"))
		require.NoError(t, err)
		_, err = os.Stat(filepath.Join(root, "chapter_001", "tasks", "pending", "task-1.json"))
		assert.True(t, os.IsNotExist(err))

		got, err := s.Get(ctx, "task-1")
		require.NoError(t, err)
		assert.Equal(t, task.StatusCompleted, got.Status)
		assert.NotNil(t, got.CompletedTime)
	})

	t.Run("failed record moves to failed", func(t *testing.T) {
		t.Parallel()
		s, root := newTestStore(t)
		ctx := context.Background()

		d := testDescriptor("task-1")
		require.NoError(t, s.Save(ctx, d))
		require.NoError(t, d.MarkFailed("quota", time.Now().UTC()))
		require.NoError(t, s.Archive(ctx, d))

		_, err := os.Stat(filepath.Join(root, "chapter_001", "tasks", "failed", "task-1.json"))
		require.NoError(t, err)

		got, err := s.Get(ctx, "task-1")
		require.NoError(t, err)
		assert.Equal(t, "quota", got.ErrorMessage)
	})

	t.Run("archiving twice is a no-op", func(t *testing.T) {
		t.Parallel()
		s, _ := newTestStore(t)
		ctx := context.Background()

		d := testDescriptor("task-1")
		require.NoError(t, s.Save(ctx, d))
		require.NoError(t, d.MarkCompleted(time.Now().UTC()))
		require.NoError(t, s.Archive(ctx, d))
		require.NoError(t, s.Archive(ctx, d))
	})

	t.Run("non-terminal record is rejected", func(t *testing.T) {
		t.Parallel()
		s, _ := newTestStore(t)
		ctx := context.Background()

		d := testDescriptor("task-1")
		require.NoError(t, s.Save(ctx, d))
		assert.ErrorIs(t, s.Archive(ctx, d), task.ErrNotTerminal)
	})
}

func TestStoreUnits(t *testing.T) {
	t.Parallel()

	s, root := newTestStore(t)
	ctx := context.Background()

	d1 := testDescriptor("task-1")
	require.NoError(t, s.Save(ctx, d1))
	d2 := testDescriptor("task-2")
	d2.Unit = "chapter_002"
	require.NoError(t, s.Save(ctx, d2))

	// A directory without task records is not a unit.
	require.NoError(t, os.Mkdir(filepath.Join(root, "scratch"), 0o755))

	units, err := s.Units(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"chapter_001", "chapter_002"}, units)
}

func TestStoreNestedUnits(t *testing.T) {
	t.Parallel()

	s, root := newTestStore(t)
	ctx := context.Background()

	// A chapter nested below the root is addressed by its relative path.
	d := testDescriptor("task-nested")
	d.Unit = filepath.Join("book_one", "chapter_001")
	require.NoError(t, s.Save(ctx, d))

	_, err := os.Stat(filepath.Join(root, "book_one", "chapter_001", "tasks", "pending", "task-nested.json"))
	require.NoError(t, err)

	units, err := s.Units(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join("book_one", "chapter_001")}, units)

	// Recursive discovery and the store agree on the unit key, so a sweep
	// over a nested tree sees the pending work.
	discovered, err := task.DiscoverUnitsRecursive(root)
	require.NoError(t, err)
	require.Len(t, discovered, 1)
	assert.Equal(t, d.Unit, discovered[0].Key)

	pending, err := s.ListPending(ctx, discovered[0].Key)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "task-nested", pending[0].TaskID)

	got, err := s.Get(ctx, "task-nested")
	require.NoError(t, err)
	assert.Equal(t, d.Unit, got.Unit)
}

func TestStoreNestedUnitsWithSameName(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ctx := context.Background()

	d1 := testDescriptor("task-1")
	d1.Unit = filepath.Join("book_one", "chapter_001")
	require.NoError(t, s.Save(ctx, d1))
	d2 := testDescriptor("task-2")
	d2.Unit = filepath.Join("book_two", "chapter_001")
	require.NoError(t, s.Save(ctx, d2))

	// Same basename, different books: each listing sees only its own task.
	pending, err := s.ListPending(ctx, d1.Unit)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "task-1", pending[0].TaskID)

	pending, err = s.ListPending(ctx, d2.Unit)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "task-2", pending[0].TaskID)
}
