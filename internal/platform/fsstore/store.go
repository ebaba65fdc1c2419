// Package fsstore persists task descriptors as JSON files in per-unit role
// directories. A record lives at <root>/<unit>/tasks/<role>/<task_id>.json,
// where unit is the unit directory's path relative to the root and may be
// nested. The record moves between role directories by rename, so it
// occupies exactly one role at any observable instant.
package fsstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fablereel/fablereel/internal/task"
)

const (
	rolePending = "pending"
	roleDone    = "done"
	roleFailed  = "failed"
)

var roles = []string{rolePending, roleDone, roleFailed}

// Store is the directory-backed task.Store implementation.
type Store struct {
	root   string
	logger *slog.Logger
}

var _ task.Store = (*Store)(nil)

// New creates a Store rooted at the content directory that holds the unit
// directories.
func New(root string, logger *slog.Logger) *Store {
	return &Store{root: root, logger: logger}
}

func (s *Store) rolePath(unit, role, taskID string) string {
	return filepath.Join(s.root, unit, "tasks", role, taskID+".json")
}

// locate finds which role currently holds taskID within a unit.
func (s *Store) locate(unit, taskID string) (string, bool) {
	for _, role := range roles {
		if _, err := os.Stat(s.rolePath(unit, role, taskID)); err == nil {
			return role, true
		}
	}
	return "", false
}

// Save writes a brand-new pending record. Task IDs are unique across the
// whole store, so every unit's roles are checked before the O_EXCL create
// guards the record's own pending file.
func (s *Store) Save(ctx context.Context, d *task.Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	units, err := s.Units(ctx)
	if err != nil {
		return err
	}
	for _, unit := range units {
		if _, ok := s.locate(unit, d.TaskID); ok {
			return fmt.Errorf("%w: %s", task.ErrDuplicateTaskID, d.TaskID)
		}
	}

	path := s.rolePath(d.Unit, rolePending, d.TaskID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create pending directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: %s", task.ErrDuplicateTaskID, d.TaskID)
		}
		return fmt.Errorf("failed to create record file: %w", err)
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("failed to encode record: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("failed to close record file: %w", err)
	}
	return nil
}

// Update rewrites a pending record in place via a temp file and rename.
func (s *Store) Update(ctx context.Context, d *task.Descriptor) error {
	path := s.rolePath(d.Unit, rolePending, d.TaskID)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", task.ErrTaskNotFound, d.TaskID)
		}
		return fmt.Errorf("failed to stat record file: %w", err)
	}
	return s.writeAtomic(path, d)
}

// Get returns the record for taskID from whichever role holds it, searching
// every unit.
func (s *Store) Get(ctx context.Context, taskID string) (*task.Descriptor, error) {
	units, err := s.Units(ctx)
	if err != nil {
		return nil, err
	}
	for _, unit := range units {
		role, ok := s.locate(unit, taskID)
		if !ok {
			continue
		}
		return s.read(s.rolePath(unit, role, taskID))
	}
	return nil, fmt.Errorf("%w: %s", task.ErrTaskNotFound, taskID)
}

// ListPending returns the unit's pending records sorted by file name.
// Corrupt record files are skipped with a warning rather than failing the
// whole listing.
func (s *Store) ListPending(ctx context.Context, unit string) ([]*task.Descriptor, error) {
	dir := filepath.Join(s.root, unit, "tasks", rolePending)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read pending directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var out []*task.Descriptor
	for _, name := range names {
		d, err := s.read(filepath.Join(dir, name))
		if err != nil {
			s.logger.Warn("skipping unreadable record", "file", name, "error", err)
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// Archive rewrites the record with its terminal state and renames it into
// the done or failed directory. A record already at rest in the right role
// is left alone, so the operation is idempotent.
func (s *Store) Archive(ctx context.Context, d *task.Descriptor) error {
	if !d.Terminal() {
		return fmt.Errorf("%w: %s is %s", task.ErrNotTerminal, d.TaskID, d.Status)
	}
	role := roleDone
	if d.Status == task.StatusFailed {
		role = roleFailed
	}

	dst := s.rolePath(d.Unit, role, d.TaskID)
	if _, err := os.Stat(dst); err == nil {
		return nil
	}

	src := s.rolePath(d.Unit, rolePending, d.TaskID)
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", task.ErrTaskNotFound, d.TaskID)
		}
		return fmt.Errorf("failed to stat pending record: %w", err)
	}

	// Persist the terminal fields before the move so a crash between the
	// two steps leaves a complete record in pending for the next round.
	if err := s.writeAtomic(src, d); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", role, err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("failed to archive record: %w", err)
	}
	return nil
}

// Units lists the root-relative paths of every directory under the root
// that carries a tasks directory, sorted by path. Units nested below the
// root, such as per-book chapter trees, are found at any depth.
func (s *Store) Units(ctx context.Context) ([]string, error) {
	var units []string
	err := filepath.WalkDir(s.root, func(path string, e os.DirEntry, err error) error {
		if err != nil {
			if path == s.root && os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if !e.IsDir() || path == s.root {
			return nil
		}
		if e.Name() != "tasks" {
			return nil
		}
		rel, relErr := filepath.Rel(s.root, filepath.Dir(path))
		if relErr != nil {
			return relErr
		}
		if rel != "." {
			units = append(units, rel)
		}
		// Role directories hold record files only; no units live below.
		return filepath.SkipDir
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan store root: %w", err)
	}
	sort.Strings(units)
	return units, nil
}

func (s *Store) read(path string) (*task.Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read record file: %w", err)
	}
	var d task.Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to decode record file %s: %w", filepath.Base(path), err)
	}
	return &d, nil
}

func (s *Store) writeAtomic(path string, d *task.Descriptor) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write record file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace record file: %w", err)
	}
	return nil
}
