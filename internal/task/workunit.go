package task

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// UnitPrefix is the directory-name prefix that marks a chapter directory as
// a work unit.
const UnitPrefix = "chapter_"

// WorkUnit is one chapter directory under the content root. It owns its task
// records and its finished media.
type WorkUnit struct {
	// Name is the directory basename, e.g. "chapter_001". Used for display
	// and artifact naming.
	Name string

	// Key identifies the unit within a Store: its path relative to the
	// content root. For a nested chapter it differs from Name
	// ("book_one/chapter_001"), which keeps same-named chapters in
	// different books from colliding.
	Key string

	// Dir is the absolute or root-relative path to the unit directory.
	Dir string
}

// TasksDir is the root of the unit's task records.
func (u WorkUnit) TasksDir() string { return filepath.Join(u.Dir, "tasks") }

// PendingDir holds records for tasks still in flight.
func (u WorkUnit) PendingDir() string { return filepath.Join(u.Dir, "tasks", "pending") }

// DoneDir holds records for tasks whose artifacts were materialized.
func (u WorkUnit) DoneDir() string { return filepath.Join(u.Dir, "tasks", "done") }

// FailedDir holds records for tasks the service terminally failed.
func (u WorkUnit) FailedDir() string { return filepath.Join(u.Dir, "tasks", "failed") }

// MediaDir holds the unit's finished artifacts.
func (u WorkUnit) MediaDir() string { return filepath.Join(u.Dir, "media") }

// ArtifactPath returns the output path for a named artifact in this unit.
func (u WorkUnit) ArtifactPath(filename string) string {
	return filepath.Join(u.MediaDir(), filename)
}

// EnsureLayout creates the unit's directory skeleton.
func (u WorkUnit) EnsureLayout() error {
	for _, dir := range []string{u.PendingDir(), u.DoneDir(), u.FailedDir(), u.MediaDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create unit directory %s: %w", dir, err)
		}
	}
	return nil
}

// UnitAt wraps an existing chapter directory as a WorkUnit.
func UnitAt(dir string) WorkUnit {
	name := filepath.Base(dir)
	return WorkUnit{Name: name, Key: name, Dir: dir}
}

// DiscoverUnits lists the chapter directories directly under root, sorted by
// name. A missing root yields an empty list rather than an error so callers
// can sweep a tree that has produced no chapters yet.
func DiscoverUnits(root string) ([]WorkUnit, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read content root %s: %w", root, err)
	}

	var units []WorkUnit
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), UnitPrefix) {
			continue
		}
		units = append(units, WorkUnit{
			Name: e.Name(),
			Key:  e.Name(),
			Dir:  filepath.Join(root, e.Name()),
		})
	}
	sort.Slice(units, func(i, j int) bool { return units[i].Name < units[j].Name })
	return units, nil
}

// DiscoverUnitsRecursive walks the tree under root and collects every
// chapter directory at any depth, sorted by path. Chapter directories are
// not descended into, so nested media never masquerades as a unit.
func DiscoverUnitsRecursive(root string) ([]WorkUnit, error) {
	var units []WorkUnit
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == root && os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), UnitPrefix) {
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				return relErr
			}
			units = append(units, WorkUnit{Name: d.Name(), Key: rel, Dir: path})
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk content root %s: %w", root, err)
	}
	sort.Slice(units, func(i, j int) bool { return units[i].Dir < units[j].Dir })
	return units, nil
}
