package deriver

import (
	"fmt"

	"isi-import/internal/domain"
	"isi-import/internal/mapping"
)

// RewriteLookups returns a copy of process in which every migration_lookup
// reference to a template listed in siblings points at the request-scoped
// job of that template instead. The matching source_ids key is renamed
// along with it. References to other jobs are left untouched.
func RewriteLookups(process []domain.FieldProcess, group string, siblings map[string]struct{}) ([]domain.FieldProcess, error) {
	out := domain.CloneProcess(process)
	for fi, fp := range out {
		for si, rec := range fp.Steps {
			if rec.Plugin() != domain.PluginMigrationLookup {
				continue
			}
			s, err := mapping.ParseStep(rec)
			if err != nil {
				return nil, fmt.Errorf("field %q step %d: %w", fp.Field, si, err)
			}
			lookup, ok := s.(*mapping.MigrationLookupStep)
			if !ok {
				continue
			}
			changed := false
			for _, target := range append([]string(nil), lookup.Migrations...) {
				if _, own := siblings[target]; !own {
					continue
				}
				if lookup.RenameMigration(target, domain.ScopedID(group, target)) {
					changed = true
				}
			}
			if changed {
				out[fi].Steps[si] = lookup.StepRecord()
			}
		}
	}
	return out, nil
}

// RewriteMigrationDependencies scopes every dependency on a sibling template
// to the request's group. Dependencies on other jobs are kept as they are.
func RewriteMigrationDependencies(deps map[string][]string, group string, siblings map[string]struct{}) map[string][]string {
	if deps == nil {
		return nil
	}
	out := make(map[string][]string, len(deps))
	for kind, targets := range deps {
		rewritten := make([]string, 0, len(targets))
		for _, target := range targets {
			if _, own := siblings[target]; own {
				target = domain.ScopedID(group, target)
			}
			rewritten = append(rewritten, target)
		}
		out[kind] = rewritten
	}
	return out
}

// withRequestDependency returns deps plus the enforced dependency on req.
func withRequestDependency(deps domain.Dependencies, req *domain.ImportRequest) domain.Dependencies {
	out := deps.Clone()
	if out.Enforced == nil {
		out.Enforced = make(map[string][]string)
	}
	key, name := req.DependencyKey(), req.DependencyName()
	for _, existing := range out.Enforced[key] {
		if existing == name {
			return out
		}
	}
	out.Enforced[key] = append(out.Enforced[key], name)
	return out
}
