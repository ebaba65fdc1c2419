package task

import (
	"context"
	"sort"
	"sync"
)

// MockStore is an in-memory Store for tests. Behaviour can be overridden
// per method by assigning the corresponding Fn field; the default behaviour
// keeps records in a map and tracks which role each record occupies.
type MockStore struct {
	mu      sync.Mutex
	records map[string]*Descriptor
	roles   map[string]string // task ID -> "pending" | "done" | "failed"

	SaveFn        func(ctx context.Context, d *Descriptor) error
	UpdateFn      func(ctx context.Context, d *Descriptor) error
	GetFn         func(ctx context.Context, taskID string) (*Descriptor, error)
	ListPendingFn func(ctx context.Context, unit string) ([]*Descriptor, error)
	ArchiveFn     func(ctx context.Context, d *Descriptor) error
	UnitsFn       func(ctx context.Context) ([]string, error)
}

var _ Store = (*MockStore)(nil)

// NewMockStore creates an empty MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		records: make(map[string]*Descriptor),
		roles:   make(map[string]string),
	}
}

// Save implements Store.Save.
func (m *MockStore) Save(ctx context.Context, d *Descriptor) error {
	if m.SaveFn != nil {
		return m.SaveFn(ctx, d)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[d.TaskID]; exists {
		return ErrDuplicateTaskID
	}
	cp := *d
	m.records[d.TaskID] = &cp
	m.roles[d.TaskID] = "pending"
	return nil
}

// Update implements Store.Update.
func (m *MockStore) Update(ctx context.Context, d *Descriptor) error {
	if m.UpdateFn != nil {
		return m.UpdateFn(ctx, d)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[d.TaskID]; !exists {
		return ErrTaskNotFound
	}
	cp := *d
	m.records[d.TaskID] = &cp
	return nil
}

// Get implements Store.Get.
func (m *MockStore) Get(ctx context.Context, taskID string) (*Descriptor, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, taskID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, exists := m.records[taskID]
	if !exists {
		return nil, ErrTaskNotFound
	}
	cp := *d
	return &cp, nil
}

// ListPending implements Store.ListPending, returning pending records for
// the unit sorted by task ID for deterministic tests.
func (m *MockStore) ListPending(ctx context.Context, unit string) ([]*Descriptor, error) {
	if m.ListPendingFn != nil {
		return m.ListPendingFn(ctx, unit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Descriptor
	for id, d := range m.records {
		if d.Unit != unit || m.roles[id] != "pending" {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out, nil
}

// Archive implements Store.Archive.
func (m *MockStore) Archive(ctx context.Context, d *Descriptor) error {
	if m.ArchiveFn != nil {
		return m.ArchiveFn(ctx, d)
	}
	if !d.Terminal() {
		return ErrNotTerminal
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[d.TaskID]; !exists {
		return ErrTaskNotFound
	}
	cp := *d
	m.records[d.TaskID] = &cp
	if d.Status == StatusCompleted {
		m.roles[d.TaskID] = "done"
	} else {
		m.roles[d.TaskID] = "failed"
	}
	return nil
}

// Units implements Store.Units.
func (m *MockStore) Units(ctx context.Context) ([]string, error) {
	if m.UnitsFn != nil {
		return m.UnitsFn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	for _, d := range m.records {
		seen[d.Unit] = true
	}
	units := make([]string, 0, len(seen))
	for u := range seen {
		units = append(units, u)
	}
	sort.Strings(units)
	return units, nil
}

// Role reports which role a record currently occupies, for assertions.
func (m *MockStore) Role(taskID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roles[taskID]
}
