package deriver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"isi-import/internal/domain"
)

func job(id string, required ...string) domain.DerivedJob {
	j := domain.DerivedJob{ID: id}
	if required != nil {
		j.MigrationDependencies = map[string][]string{RequiredDependencyKind: required}
	}
	return j
}

func TestResolveExecutionOrder(t *testing.T) {
	tests := []struct {
		name       string
		jobs       []domain.DerivedJob
		wantLevels [][]string
		wantErr    bool
	}{
		{
			name: "empty",
		},
		{
			name:       "single_job_no_deps",
			jobs:       []domain.DerivedJob{job("j1")},
			wantLevels: [][]string{{"j1"}},
		},
		{
			name:       "linear_chain",
			jobs:       []domain.DerivedJob{job("j3", "j2"), job("j2", "j1"), job("j1")},
			wantLevels: [][]string{{"j1"}, {"j2"}, {"j3"}},
		},
		{
			name: "diamond_dependency",
			jobs: []domain.DerivedJob{
				job("load", "left", "right"),
				job("left", "extract"),
				job("right", "extract"),
				job("extract"),
			},
			wantLevels: [][]string{{"extract"}, {"left", "right"}, {"load"}},
		},
		{
			name:       "external_dependency_ignored",
			jobs:       []domain.DerivedJob{job("j1", "users_from_elsewhere")},
			wantLevels: [][]string{{"j1"}},
		},
		{
			name:       "optional_kind_does_not_order",
			jobs:       []domain.DerivedJob{{ID: "j1", MigrationDependencies: map[string][]string{"optional": {"j2"}}}, job("j2")},
			wantLevels: [][]string{{"j1", "j2"}},
		},
		{
			name:       "duplicate_dependency_counted_once",
			jobs:       []domain.DerivedJob{job("j2", "j1", "j1"), job("j1")},
			wantLevels: [][]string{{"j1"}, {"j2"}},
		},
		{
			name:    "self_dependency",
			jobs:    []domain.DerivedJob{job("j1", "j1")},
			wantErr: true,
		},
		{
			name:    "cycle",
			jobs:    []domain.DerivedJob{job("a", "c"), job("b", "a"), job("c", "b")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			levels, err := ResolveExecutionOrder(tt.jobs)
			if tt.wantErr {
				var valErr *domain.ValidationError
				require.ErrorAs(t, err, &valErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLevels, levels)
		})
	}
}

func TestUsedColumns(t *testing.T) {
	tests := []struct {
		name    string
		process []domain.FieldProcess
		want    []string
		wantErr bool
	}{
		{
			name: "pipeline references excluded",
			process: []domain.FieldProcess{
				{Field: "title", Steps: []domain.StepRecord{{"plugin": "get", "source": "@subtitle"}}},
				{Field: "subtitle", Steps: []domain.StepRecord{{"plugin": "get", "source": "Col_A"}}},
			},
			want: []string{"Col_A"},
		},
		{
			name: "array sources and lookups deduplicated",
			process: []domain.FieldProcess{
				{Field: "name", Steps: []domain.StepRecord{
					{"plugin": "get", "source": []any{"Last", "First"}},
					{"plugin": "concat"},
				}},
				{Field: "author", Steps: []domain.StepRecord{{
					"plugin":     "migration_lookup",
					"migration":  []any{"people"},
					"source":     "Author",
					"source_ids": map[string]any{"people": []any{"Last", "@name"}},
				}}},
			},
			want: []string{"Author", "First", "Last"},
		},
		{
			name: "other plugins ignored",
			process: []domain.FieldProcess{
				{Field: "lang", Steps: []domain.StepRecord{{"plugin": "default_value", "default_value": "en"}}},
			},
			want: []string{},
		},
		{
			name: "malformed get",
			process: []domain.FieldProcess{
				{Field: "x", Steps: []domain.StepRecord{{"plugin": "get", "source": 7}}},
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UsedColumns(tt.process)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRewriteLookups_LeavesInputUntouched(t *testing.T) {
	in := []domain.FieldProcess{{Field: "f", Steps: []domain.StepRecord{{
		"plugin":     "migration_lookup",
		"migration":  []any{"a", "outside"},
		"source_ids": map[string]any{"a": []any{"Key"}, "outside": []any{"Other"}},
	}}}}
	siblings := map[string]struct{}{"a": {}}

	out, err := RewriteLookups(in, "g", siblings)
	require.NoError(t, err)

	rec := out[0].Steps[0]
	assert.Equal(t, []string{"g_a", "outside"}, rec["migration"])
	ids := rec["source_ids"].(map[string]any)
	assert.Equal(t, []string{"Key"}, ids["g_a"])
	assert.Equal(t, []string{"Other"}, ids["outside"])

	assert.Equal(t, []any{"a", "outside"}, in[0].Steps[0]["migration"])
}

func TestRewriteMigrationDependencies(t *testing.T) {
	got := RewriteMigrationDependencies(map[string][]string{
		"required": {"a", "external"},
		"optional": {"b"},
	}, "g", map[string]struct{}{"a": {}, "b": {}})
	assert.Equal(t, map[string][]string{
		"required": {"g_a", "external"},
		"optional": {"g_b"},
	}, got)
	assert.Nil(t, RewriteMigrationDependencies(nil, "g", nil))
}
