// Package testutil provides shared mock implementations of domain interfaces
// for use in tests across the codebase. This follows the Go convention of a
// shared test utility package (like net/http/httptest).
package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"isi-import/internal/domain"
)

// === Job Template Repository Mock ===

// MockJobTemplateRepo implements domain.JobTemplateRepository over an
// in-memory map. Fn fields override the default behavior.
type MockJobTemplateRepo struct {
	GetByIDFn     func(ctx context.Context, id string) (*domain.JobTemplate, error)
	ListByGroupFn func(ctx context.Context, group string) ([]domain.JobTemplate, error)

	mu        sync.Mutex
	templates map[string]domain.JobTemplate
}

// NewMockJobTemplateRepo returns a repository seeded with tpls.
func NewMockJobTemplateRepo(tpls ...domain.JobTemplate) *MockJobTemplateRepo {
	m := &MockJobTemplateRepo{templates: make(map[string]domain.JobTemplate)}
	for _, t := range tpls {
		m.templates[t.ID] = t
	}
	return m
}

// GetByID implements the interface method for testing.
func (m *MockJobTemplateRepo) GetByID(ctx context.Context, id string) (*domain.JobTemplate, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[id]
	if !ok {
		return nil, domain.ErrNotFound("job template %q not found", id)
	}
	t.Process = domain.CloneProcess(t.Process)
	return &t, nil
}

// ListByGroup implements the interface method for testing.
func (m *MockJobTemplateRepo) ListByGroup(ctx context.Context, group string) ([]domain.JobTemplate, error) {
	if m.ListByGroupFn != nil {
		return m.ListByGroupFn(ctx, group)
	}
	all, _ := m.List(ctx)
	var out []domain.JobTemplate
	for _, t := range all {
		if t.Group == group {
			out = append(out, t)
		}
	}
	return out, nil
}

// List implements the interface method for testing.
func (m *MockJobTemplateRepo) List(_ context.Context) ([]domain.JobTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.JobTemplate, 0, len(m.templates))
	for _, t := range m.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Upsert implements the interface method for testing.
func (m *MockJobTemplateRepo) Upsert(_ context.Context, t *domain.JobTemplate) (*domain.JobTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[t.ID] = *t
	out := *t
	return &out, nil
}

// Delete implements the interface method for testing.
func (m *MockJobTemplateRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.templates[id]; !ok {
		return domain.ErrNotFound("job template %q not found", id)
	}
	delete(m.templates, id)
	return nil
}

// === Derived Job Repository Mock ===

// MockDerivedJobRepo implements domain.DerivedJobRepository over an
// in-memory map. Fn fields override the default behavior.
type MockDerivedJobRepo struct {
	UpsertFn      func(ctx context.Context, j *domain.DerivedJob) (*domain.DerivedJob, error)
	DeleteFn      func(ctx context.Context, id string) error
	ListByGroupFn func(ctx context.Context, group string) ([]domain.DerivedJob, error)

	// Now stamps CreatedAt and UpdatedAt. Defaults to a fixed instant.
	Now func() time.Time

	mu   sync.Mutex
	jobs map[string]domain.DerivedJob
}

// NewMockDerivedJobRepo returns an empty repository.
func NewMockDerivedJobRepo() *MockDerivedJobRepo {
	return &MockDerivedJobRepo{jobs: make(map[string]domain.DerivedJob)}
}

func (m *MockDerivedJobRepo) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
}

// GetByID implements the interface method for testing.
func (m *MockDerivedJobRepo) GetByID(_ context.Context, id string) (*domain.DerivedJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound("derived job %q not found", id)
	}
	return &j, nil
}

// ListByGroup implements the interface method for testing.
func (m *MockDerivedJobRepo) ListByGroup(ctx context.Context, group string) ([]domain.DerivedJob, error) {
	if m.ListByGroupFn != nil {
		return m.ListByGroupFn(ctx, group)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.DerivedJob
	for _, j := range m.jobs {
		if j.Group == group {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Upsert implements the interface method for testing.
func (m *MockDerivedJobRepo) Upsert(ctx context.Context, j *domain.DerivedJob) (*domain.DerivedJob, error) {
	if m.UpsertFn != nil {
		return m.UpsertFn(ctx, j)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *j
	if prev, ok := m.jobs[j.ID]; ok {
		stored.CreatedAt = prev.CreatedAt
	} else {
		stored.CreatedAt = m.now()
	}
	stored.UpdatedAt = m.now()
	m.jobs[j.ID] = stored
	return &stored, nil
}

// Delete implements the interface method for testing.
func (m *MockDerivedJobRepo) Delete(ctx context.Context, id string) error {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; !ok {
		return domain.ErrNotFound("derived job %q not found", id)
	}
	delete(m.jobs, id)
	return nil
}

// Len returns the number of stored jobs.
func (m *MockDerivedJobRepo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

// === Import Request Repository Mock ===

// MockImportRequestRepo implements domain.ImportRequestRepository over an
// in-memory map.
type MockImportRequestRepo struct {
	UpdateFn func(ctx context.Context, r *domain.ImportRequest) (*domain.ImportRequest, error)

	mu       sync.Mutex
	requests map[string]domain.ImportRequest
	order    []string
}

// NewMockImportRequestRepo returns an empty repository.
func NewMockImportRequestRepo() *MockImportRequestRepo {
	return &MockImportRequestRepo{requests: make(map[string]domain.ImportRequest)}
}

// Create implements the interface method for testing.
func (m *MockImportRequestRepo) Create(_ context.Context, r *domain.ImportRequest) (*domain.ImportRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[r.ID]; ok {
		return nil, domain.ErrConflict("import request %q already exists", r.ID)
	}
	m.requests[r.ID] = *r
	m.order = append(m.order, r.ID)
	out := *r
	return &out, nil
}

// GetByID implements the interface method for testing.
func (m *MockImportRequestRepo) GetByID(_ context.Context, id string) (*domain.ImportRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, domain.ErrNotFound("import request %q not found", id)
	}
	return &r, nil
}

// List implements the interface method for testing.
func (m *MockImportRequestRepo) List(_ context.Context, filter domain.ImportRequestFilter) ([]domain.ImportRequest, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ImportRequest
	for _, id := range m.order {
		r, ok := m.requests[id]
		if !ok {
			continue
		}
		if filter.Owner != nil && !strings.EqualFold(r.Owner, *filter.Owner) {
			continue
		}
		if filter.Active != nil && r.Active != *filter.Active {
			continue
		}
		out = append(out, r)
	}
	return out, int64(len(out)), nil
}

// Update implements the interface method for testing.
func (m *MockImportRequestRepo) Update(ctx context.Context, r *domain.ImportRequest) (*domain.ImportRequest, error) {
	if m.UpdateFn != nil {
		return m.UpdateFn(ctx, r)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[r.ID]; !ok {
		return nil, domain.ErrNotFound("import request %q not found", r.ID)
	}
	m.requests[r.ID] = *r
	out := *r
	return &out, nil
}

// Delete implements the interface method for testing.
func (m *MockImportRequestRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[id]; !ok {
		return domain.ErrNotFound("import request %q not found", id)
	}
	delete(m.requests, id)
	return nil
}

// === Cache Invalidator Mock ===

// MockCacheInvalidator records every invalidation call.
type MockCacheInvalidator struct {
	mu    sync.Mutex
	Calls [][]string
}

// InvalidateTags implements the interface method for testing.
func (m *MockCacheInvalidator) InvalidateTags(tags ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, append([]string(nil), tags...))
}

// === Schema Introspector Mock ===

// MockSchema maps a destination identity to its property names.
type MockSchema map[string][]string

// DestinationProperties implements the interface method for testing.
func (m MockSchema) DestinationProperties(_ context.Context, destination string) ([]string, error) {
	props, ok := m[destination]
	if !ok {
		return nil, domain.ErrNotFound("destination %q not found", destination)
	}
	return props, nil
}
