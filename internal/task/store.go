package task

import (
	"context"
	"errors"
	"fmt"

	"github.com/fablereel/fablereel/internal/generation"
)

// Store errors shared by all implementations
var (
	// ErrDuplicateTaskID is returned by Save when a record with the same
	// task ID already exists anywhere in the store
	ErrDuplicateTaskID = errors.New("task ID already exists in store")

	// ErrTaskNotFound is returned when no record exists for a task ID
	ErrTaskNotFound = errors.New("task not found in store")

	// ErrNotTerminal is returned by Archive for a descriptor that has not
	// reached an end state
	ErrNotTerminal = errors.New("descriptor is not terminal")
)

// Store persists task descriptors. A record lives in exactly one of three
// roles at any observable instant: pending (non-terminal), done, or failed.
// Implementations: the directory store (one JSON file per task moved
// between role directories) and the Postgres store (status column, atomic
// guarded updates).
//
// The design assumes a single process owns a store; concurrent writers
// against the same content tree are not supported.
type Store interface {
	// Save persists a brand-new pending record. The task ID must be unique
	// across all roles and all units; Save fails with ErrDuplicateTaskID
	// otherwise.
	Save(ctx context.Context, d *Descriptor) error

	// Update rewrites a pending record in place. The record must not be
	// terminal; terminal records are archived, never updated.
	Update(ctx context.Context, d *Descriptor) error

	// Get returns the record for taskID regardless of role.
	Get(ctx context.Context, taskID string) (*Descriptor, error)

	// ListPending returns every non-terminal record for a unit, in the
	// store's natural listing order. unit is the WorkUnit Key, the unit
	// directory's path relative to the content root.
	ListPending(ctx context.Context, unit string) ([]*Descriptor, error)

	// Archive moves a terminal record into its resting role (done or
	// failed). Archiving a record that is already at rest is a no-op, which
	// is what makes reconciliation idempotent.
	Archive(ctx context.Context, d *Descriptor) error

	// Units lists the units known to the store.
	Units(ctx context.Context) ([]string, error)
}

// Services maps a task kind to the generation backend that owns it.
type Services map[Kind]generation.Service

// For returns the service registered for kind.
func (s Services) For(kind Kind) (generation.Service, error) {
	svc, ok := s[kind]
	if !ok {
		return nil, fmt.Errorf("no generation service registered for kind %q", kind)
	}
	return svc, nil
}
