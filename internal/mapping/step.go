package mapping

import (
	"fmt"
	"sort"
	"sync"

	"isi-import/internal/domain"
)

// Step is one transformation applied after a pipeline's source value is
// fetched. The compiler never interprets step semantics; it only orders,
// serializes and relocates lookup references.
type Step interface {
	Plugin() string
	StepRecord() domain.StepRecord
}

// StepFactory builds a typed step from its record.
type StepFactory func(rec domain.StepRecord) (Step, error)

// Registry maps plugin identifiers to step factories. Records whose plugin
// has no factory parse as *OpaqueStep.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]StepFactory
}

// NewRegistry returns a registry with the built-in step kinds.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]StepFactory)}
	r.Register(domain.PluginGet, parseGetStep)
	r.Register(domain.PluginDefaultValue, parseDefaultValueStep)
	r.Register(domain.PluginMigrationLookup, parseMigrationLookupStep)
	return r
}

// DefaultRegistry is used by ParseStep and DeserializePipeline.
var DefaultRegistry = NewRegistry()

// Register adds or replaces the factory of a plugin.
func (r *Registry) Register(plugin string, f StepFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[plugin] = f
}

// Plugins lists the registered plugin identifiers in sorted order.
func (r *Registry) Plugins() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for p := range r.factories {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Parse builds the typed step for rec.
func (r *Registry) Parse(rec domain.StepRecord) (Step, error) {
	plugin := rec.Plugin()
	if plugin == "" {
		return nil, domain.ErrValidation("step has no plugin")
	}
	r.mu.RLock()
	f, ok := r.factories[plugin]
	r.mu.RUnlock()
	if !ok {
		return &OpaqueStep{Record: rec.Clone()}, nil
	}
	return f(rec)
}

// ParseStep parses rec with the default registry.
func ParseStep(rec domain.StepRecord) (Step, error) {
	return DefaultRegistry.Parse(rec)
}

// OpaqueStep carries a step of a kind the compiler has no model for.
type OpaqueStep struct {
	Record domain.StepRecord
}

func (s *OpaqueStep) Plugin() string { return s.Record.Plugin() }

func (s *OpaqueStep) StepRecord() domain.StepRecord { return s.Record.Clone() }

// GetStep reads one or more values by name: spreadsheet columns, or
// "@field" outputs of earlier pipelines.
type GetStep struct {
	Sources []string
	// Multiple keeps the array form even for a single source.
	Multiple bool
	extra    domain.StepRecord
}

// NewGetStep returns a get step reading a single name.
func NewGetStep(source string) *GetStep {
	return &GetStep{Sources: []string{source}}
}

func parseGetStep(rec domain.StepRecord) (Step, error) {
	sources, multiple, err := stringOrList(rec["source"])
	if err != nil {
		return nil, domain.ErrValidation("get step: source: %v", err)
	}
	return &GetStep{Sources: sources, Multiple: multiple, extra: extraParams(rec, "source")}, nil
}

func (s *GetStep) Plugin() string { return domain.PluginGet }

func (s *GetStep) StepRecord() domain.StepRecord {
	rec := s.extra.Clone()
	if rec == nil {
		rec = domain.StepRecord{}
	}
	rec["plugin"] = domain.PluginGet
	rec["source"] = listOrString(s.Sources, s.Multiple)
	return rec
}

// DefaultValueStep substitutes a constant for empty values.
type DefaultValueStep struct {
	Value any
	extra domain.StepRecord
}

func parseDefaultValueStep(rec domain.StepRecord) (Step, error) {
	v, ok := rec["default_value"]
	if !ok {
		return nil, domain.ErrValidation("default_value step: default_value is required")
	}
	return &DefaultValueStep{Value: v, extra: extraParams(rec, "default_value")}, nil
}

func (s *DefaultValueStep) Plugin() string { return domain.PluginDefaultValue }

func (s *DefaultValueStep) StepRecord() domain.StepRecord {
	rec := s.extra.Clone()
	if rec == nil {
		rec = domain.StepRecord{}
	}
	rec["plugin"] = domain.PluginDefaultValue
	rec["default_value"] = s.Value
	return rec
}

// MigrationLookupStep resolves a value to the ID produced by other jobs.
// Migrations names the jobs; SourceIDs optionally lists, per job, the source
// names used to build its lookup key.
type MigrationLookupStep struct {
	Migrations      []string
	multiMigrations bool
	Source          []string
	multiSource     bool
	SourceIDs       map[string][]string
	sourceIDOrder   []string
	extra           domain.StepRecord
}

func parseMigrationLookupStep(rec domain.StepRecord) (Step, error) {
	migrations, multi, err := stringOrList(rec["migration"])
	if err != nil {
		return nil, domain.ErrValidation("migration_lookup step: migration: %v", err)
	}
	s := &MigrationLookupStep{
		Migrations:      migrations,
		multiMigrations: multi,
		extra:           extraParams(rec, "migration", "source", "source_ids"),
	}
	if raw, ok := rec["source"]; ok {
		s.Source, s.multiSource, err = stringOrList(raw)
		if err != nil {
			return nil, domain.ErrValidation("migration_lookup step: source: %v", err)
		}
	}
	if raw, ok := rec["source_ids"]; ok {
		m, ok := raw.(map[string]any)
		if !ok {
			if typed, isTyped := raw.(map[string][]string); isTyped {
				m = make(map[string]any, len(typed))
				for k, v := range typed {
					m[k] = v
				}
			} else {
				return nil, domain.ErrValidation("migration_lookup step: source_ids must be a map")
			}
		}
		s.SourceIDs = make(map[string][]string, len(m))
		for k, v := range m {
			ids, _, err := stringOrList(v)
			if err != nil {
				return nil, domain.ErrValidation("migration_lookup step: source_ids[%s]: %v", k, err)
			}
			s.SourceIDs[k] = ids
			s.sourceIDOrder = append(s.sourceIDOrder, k)
		}
		sort.Strings(s.sourceIDOrder)
	}
	return s, nil
}

func (s *MigrationLookupStep) Plugin() string { return domain.PluginMigrationLookup }

// RenameMigration replaces a referenced job ID, moving its source_ids entry
// along with it. It reports whether anything changed.
func (s *MigrationLookupStep) RenameMigration(from, to string) bool {
	changed := false
	for i, m := range s.Migrations {
		if m == from {
			s.Migrations[i] = to
			changed = true
		}
	}
	if ids, ok := s.SourceIDs[from]; ok {
		delete(s.SourceIDs, from)
		s.SourceIDs[to] = ids
		for i, k := range s.sourceIDOrder {
			if k == from {
				s.sourceIDOrder[i] = to
			}
		}
		changed = true
	}
	return changed
}

// SourceNames returns every name the lookup reads: source plus all
// source_ids lists.
func (s *MigrationLookupStep) SourceNames() []string {
	out := append([]string(nil), s.Source...)
	for _, k := range s.sourceIDOrder {
		out = append(out, s.SourceIDs[k]...)
	}
	return out
}

func (s *MigrationLookupStep) StepRecord() domain.StepRecord {
	rec := s.extra.Clone()
	if rec == nil {
		rec = domain.StepRecord{}
	}
	rec["plugin"] = domain.PluginMigrationLookup
	rec["migration"] = listOrString(s.Migrations, s.multiMigrations)
	if s.Source != nil {
		rec["source"] = listOrString(s.Source, s.multiSource)
	}
	if s.SourceIDs != nil {
		ids := make(map[string]any, len(s.SourceIDs))
		for k, v := range s.SourceIDs {
			ids[k] = append([]string(nil), v...)
		}
		rec["source_ids"] = ids
	}
	return rec
}

// stringOrList accepts a string, []string or []any of strings.
func stringOrList(v any) ([]string, bool, error) {
	switch t := v.(type) {
	case string:
		return []string{t}, false, nil
	case []string:
		return append([]string(nil), t...), true, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, false, fmt.Errorf("expected string, got %T", item)
			}
			out = append(out, s)
		}
		return out, true, nil
	case nil:
		return nil, false, fmt.Errorf("value is missing")
	default:
		return nil, false, fmt.Errorf("expected string or list, got %T", v)
	}
}

func listOrString(values []string, multiple bool) any {
	if !multiple && len(values) == 1 {
		return values[0]
	}
	return append([]string(nil), values...)
}

func extraParams(rec domain.StepRecord, known ...string) domain.StepRecord {
	out := domain.StepRecord{}
	skip := map[string]struct{}{"plugin": {}}
	for _, k := range known {
		skip[k] = struct{}{}
	}
	for k, v := range rec.Clone() {
		if _, ok := skip[k]; !ok {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
