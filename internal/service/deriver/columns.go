package deriver

import (
	"fmt"
	"sort"
	"strings"

	"isi-import/internal/domain"
	"isi-import/internal/mapping"
)

// UsedColumns walks every step of every field and collects the spreadsheet
// columns the process reads: the sources of get steps, plus the source and
// every source_ids list of migration_lookup steps. Names starting with "@"
// refer to other pipelines and are excluded. The result is sorted and free
// of duplicates.
func UsedColumns(process []domain.FieldProcess) ([]string, error) {
	seen := make(map[string]struct{})
	for _, fp := range process {
		for i, rec := range fp.Steps {
			names, err := stepSourceNames(rec)
			if err != nil {
				return nil, fmt.Errorf("field %q step %d: %w", fp.Field, i, err)
			}
			for _, n := range names {
				if n == "" || strings.HasPrefix(n, mapping.ReferencePrefix) {
					continue
				}
				seen[n] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

func stepSourceNames(rec domain.StepRecord) ([]string, error) {
	switch rec.Plugin() {
	case domain.PluginGet, domain.PluginMigrationLookup:
	default:
		return nil, nil
	}
	s, err := mapping.ParseStep(rec)
	if err != nil {
		return nil, err
	}
	switch step := s.(type) {
	case *mapping.GetStep:
		return step.Sources, nil
	case *mapping.MigrationLookupStep:
		return step.SourceNames(), nil
	}
	return nil, nil
}
