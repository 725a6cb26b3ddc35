package repository

import (
	"context"
	"testing"

	internaldb "isi-import/internal/db"
	"isi-import/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobTemplateRepo(t *testing.T) {
	repo := NewJobTemplateRepo(internaldb.OpenTestSQLite(t).Write)
	ctx := context.Background()

	tpl := &domain.JobTemplate{
		ID:          "isi_file",
		Group:       "G",
		Label:       "Files",
		Destination: map[string]any{"plugin": "entity:file"},
		Process: []domain.FieldProcess{
			{Field: "uri", Weight: 2, Steps: []domain.StepRecord{{"plugin": "get", "source": "Path"}}},
		},
		Dependencies:          domain.Dependencies{Enforced: map[string][]string{"module": {"file"}}},
		MigrationDependencies: map[string][]string{"required": {"isi_media_image"}},
	}

	created, err := repo.Upsert(ctx, tpl)
	require.NoError(t, err)
	assert.Equal(t, "G", created.Group)
	assert.Equal(t, tpl.Process, created.Process)
	assert.Equal(t, tpl.Dependencies, created.Dependencies)
	assert.Equal(t, tpl.MigrationDependencies, created.MigrationDependencies)
	assert.False(t, created.CreatedAt.IsZero())

	tpl.Label = "Documents"
	updated, err := repo.Upsert(ctx, tpl)
	require.NoError(t, err)
	assert.Equal(t, "Documents", updated.Label)

	_, err = repo.Upsert(ctx, &domain.JobTemplate{ID: "other", Group: "H", Destination: map[string]any{"plugin": "entity:node"}})
	require.NoError(t, err)

	inGroup, err := repo.ListByGroup(ctx, "G")
	require.NoError(t, err)
	require.Len(t, inGroup, 1)
	assert.Equal(t, "isi_file", inGroup[0].ID)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = repo.Upsert(ctx, &domain.JobTemplate{ID: "broken"})
	var valErr *domain.ValidationError
	assert.ErrorAs(t, err, &valErr)

	require.NoError(t, repo.Delete(ctx, "isi_file"))
	_, err = repo.GetByID(ctx, "isi_file")
	var nf *domain.NotFoundError
	assert.ErrorAs(t, err, &nf)
	assert.ErrorAs(t, repo.Delete(ctx, "isi_file"), &nf)
}

func TestDerivedJobRepo(t *testing.T) {
	repo := NewDerivedJobRepo(internaldb.OpenTestSQLite(t).Write)
	ctx := context.Background()

	job := &domain.DerivedJob{
		ID:         "isi_request__r1_isi_file",
		Group:      "isi_request__r1",
		TemplateID: "isi_file",
		RequestID:  "r1",
		Label:      "Import: Files",
		Source: domain.DerivedJobSource{
			Plugin:  domain.SourcePluginSpreadsheet,
			FileRef: "items.csv",
			Columns: []string{"ID", "Title"},
		},
		Process: []domain.FieldProcess{
			{Field: "title", Steps: []domain.StepRecord{{"plugin": "get", "source": "Title"}}},
		},
		Destination:  map[string]any{"plugin": "entity:file"},
		Dependencies: domain.Dependencies{Enforced: map[string][]string{"config": {"isi.request.r1"}}},
	}

	first, err := repo.Upsert(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, job.Source, first.Source)
	assert.Equal(t, job.Process, first.Process)
	assert.Nil(t, first.MigrationDependencies)

	second, err := repo.Upsert(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	first.UpdatedAt, second.UpdatedAt = first.UpdatedAt.UTC(), first.UpdatedAt.UTC()
	assert.Equal(t, first, second, "upserting an unchanged job is idempotent")

	_, err = repo.Upsert(ctx, &domain.DerivedJob{ID: "isi_request__r2_x", Group: "isi_request__r2", TemplateID: "x", RequestID: "r2"})
	require.NoError(t, err)

	jobs, err := repo.ListByGroup(ctx, "isi_request__r1")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, job.ID, jobs[0].ID)

	none, err := repo.ListByGroup(ctx, "isi_request__missing")
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, repo.Delete(ctx, job.ID))
	var nf *domain.NotFoundError
	assert.ErrorAs(t, repo.Delete(ctx, job.ID), &nf)
	_, err = repo.GetByID(ctx, job.ID)
	assert.ErrorAs(t, err, &nf)
}

func TestImportRequestRepo(t *testing.T) {
	repo := NewImportRequestRepo(internaldb.OpenTestSQLite(t).Write)
	ctx := context.Background()

	req := &domain.ImportRequest{
		ID:          "r1",
		Label:       "Spring",
		FileRef:     "items.xlsx",
		Sheet:       "Products",
		HeaderRow:   2,
		Enabled:     true,
		Owner:       "alice",
		TemplateIDs: []string{"isi_file", "isi_media_image"},
	}
	created, err := repo.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, req.TemplateIDs, created.TemplateIDs)
	assert.False(t, created.Active)
	assert.True(t, created.Enabled)
	assert.Equal(t, 2, created.HeaderRow)

	_, err = repo.Create(ctx, req)
	var conflict *domain.ConflictError
	assert.ErrorAs(t, err, &conflict)

	created.Active = true
	created.Mappings = map[string][]domain.FieldProcess{
		"isi_file": {{Field: "title", Steps: []domain.StepRecord{{"plugin": "get", "source": "Title"}}}},
	}
	updated, err := repo.Update(ctx, created)
	require.NoError(t, err)
	assert.True(t, updated.Active)
	assert.Equal(t, created.Mappings, updated.Mappings)

	_, err = repo.Create(ctx, &domain.ImportRequest{ID: "r2", Label: "Other", FileRef: "b.csv", Owner: "bob", Enabled: true})
	require.NoError(t, err)

	tests := []struct {
		name   string
		filter domain.ImportRequestFilter
		want   int64
	}{
		{"all", domain.ImportRequestFilter{}, 2},
		{"owner", domain.ImportRequestFilter{Owner: ptr("bob")}, 1},
		{"active", domain.ImportRequestFilter{Active: ptr(true)}, 1},
		{"inactive alice", domain.ImportRequestFilter{Owner: ptr("alice"), Active: ptr(false)}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, total, err := repo.List(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, total)
			assert.Len(t, got, int(tt.want))
		})
	}

	page, total, err := repo.List(ctx, domain.ImportRequestFilter{Page: domain.PageRequest{Size: 1}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, page, 1)
	assert.Equal(t, "r1", page[0].ID)

	require.NoError(t, repo.Delete(ctx, "r1"))
	var nf *domain.NotFoundError
	_, err = repo.Update(ctx, created)
	assert.ErrorAs(t, err, &nf)
}

func ptr[T any](v T) *T { return &v }
