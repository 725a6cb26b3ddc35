package request

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"isi-import/internal/domain"
	"isi-import/internal/mapping"
	"isi-import/internal/service/deriver"
	"isi-import/internal/testutil"
)

type localFiles struct{ dir string }

func (l localFiles) Resolve(_ context.Context, ref string) (string, error) {
	return filepath.Join(l.dir, ref), nil
}

type fixture struct {
	svc      *Service
	requests *testutil.MockImportRequestRepo
	jobs     *testutil.MockDerivedJobRepo
	cache    *testutil.MockCacheInvalidator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "items.csv"), []byte("ID,Title,Subtitle\n1,a,b\n"), 0o600))

	templates := testutil.NewMockJobTemplateRepo(domain.JobTemplate{
		ID:          "isi_node",
		Group:       "G",
		Label:       "Pages",
		Destination: map[string]any{"plugin": "entity:node"},
		Process: []domain.FieldProcess{
			{Field: "title", Steps: []domain.StepRecord{{"plugin": "get", "source": "Title"}}},
		},
	})
	schema := testutil.MockSchema{"entity:node": {"title", "subtitle", "langcode"}}
	requests := testutil.NewMockImportRequestRepo()
	jobs := testutil.NewMockDerivedJobRepo()
	cache := &testutil.MockCacheInvalidator{}
	logger := slog.New(slog.DiscardHandler)

	d := deriver.NewDeriver(templates, jobs, cache, logger)
	catalog := mapping.NewCatalog(localFiles{dir: dir}, mapping.NewSourceCache())
	return &fixture{
		svc:      NewService(requests, templates, schema, catalog, d, logger),
		requests: requests,
		jobs:     jobs,
		cache:    cache,
	}
}

func (f *fixture) create(ctx context.Context, t *testing.T) *domain.ImportRequest {
	t.Helper()
	req, err := f.svc.Create(ctx, domain.CreateImportRequest{
		Label:       "Pages",
		FileRef:     "items.csv",
		TemplateIDs: []string{"isi_node"},
	})
	require.NoError(t, err)
	return req
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	ctx := domain.WithPrincipal(context.Background(), domain.ContextPrincipal{Name: "alice"})

	req := f.create(ctx, t)
	assert.NotEmpty(t, req.ID)
	assert.False(t, req.Active, "requests are created inert")
	assert.True(t, req.Enabled)
	assert.Equal(t, "alice", req.Owner)
	assert.Equal(t, 0, f.jobs.Len())

	t.Run("unknown template", func(t *testing.T) {
		_, err := f.svc.Create(ctx, domain.CreateImportRequest{Label: "x", FileRef: "items.csv", TemplateIDs: []string{"nope"}})
		var nf *domain.NotFoundError
		assert.ErrorAs(t, err, &nf)
	})

	t.Run("invalid input", func(t *testing.T) {
		_, err := f.svc.Create(ctx, domain.CreateImportRequest{FileRef: "items.csv", TemplateIDs: []string{"isi_node"}})
		var valErr *domain.ValidationError
		assert.ErrorAs(t, err, &valErr)
	})
}

func TestLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.create(ctx, t)

	report, err := f.svc.Activate(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{domain.DerivedJobID(req, "isi_node")}, report.Jobs)
	assert.Equal(t, 1, f.jobs.Len())

	stored, err := f.svc.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, stored.Active)

	_, err = f.svc.Activate(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.jobs.Len(), "re-activation updates in place")

	require.NoError(t, f.svc.Deactivate(ctx, req.ID))
	assert.Equal(t, 0, f.jobs.Len())
	stored, err = f.svc.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active)

	require.NoError(t, f.svc.Delete(ctx, req.ID))
	_, err = f.svc.Get(ctx, req.ID)
	var nf *domain.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestActivate_Disabled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.create(ctx, t)
	req.Enabled = false
	_, err := f.requests.Update(ctx, req)
	require.NoError(t, err)

	_, err = f.svc.Activate(ctx, req.ID)
	var valErr *domain.ValidationError
	assert.ErrorAs(t, err, &valErr)
	assert.Equal(t, 0, f.jobs.Len())
}

func TestUpdateMappings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.create(ctx, t)

	process := []domain.FieldProcess{
		{Field: "subtitle", Steps: []domain.StepRecord{{"plugin": "get", "source": "Subtitle"}}},
		{Field: "title", Steps: []domain.StepRecord{{"plugin": "get", "source": "@subtitle"}}},
	}
	updated, err := f.svc.UpdateMappings(ctx, req.ID, "isi_node", process)
	require.NoError(t, err)
	assert.Equal(t, process, updated.Mappings["isi_node"])
	assert.Equal(t, 0, f.jobs.Len(), "inactive requests are not derived")

	_, err = f.svc.Activate(ctx, req.ID)
	require.NoError(t, err)
	job, err := f.jobs.GetByID(ctx, domain.DerivedJobID(req, "isi_node"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Subtitle"}, job.Source.Columns)

	_, err = f.svc.UpdateMappings(ctx, req.ID, "isi_node", []domain.FieldProcess{
		{Field: "langcode", Steps: []domain.StepRecord{{"plugin": "default_value", "default_value": "en"}}},
	})
	require.NoError(t, err)
	job, err = f.jobs.GetByID(ctx, domain.DerivedJobID(req, "isi_node"))
	require.NoError(t, err)
	assert.Empty(t, job.Source.Columns, "active requests are re-derived")

	t.Run("rejects unknown destination", func(t *testing.T) {
		_, err := f.svc.UpdateMappings(ctx, req.ID, "isi_node", []domain.FieldProcess{
			{Field: "body", Steps: []domain.StepRecord{{"plugin": "get", "source": "Title"}}},
		})
		var unk *domain.UnknownDestinationError
		assert.ErrorAs(t, err, &unk)
	})

	t.Run("rejects template outside the request", func(t *testing.T) {
		_, err := f.svc.UpdateMappings(ctx, req.ID, "other", nil)
		var valErr *domain.ValidationError
		assert.ErrorAs(t, err, &valErr)
	})
}

func TestSources(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.create(ctx, t)

	set, err := f.svc.Sources(ctx, req.ID, "isi_node")
	require.NoError(t, err)
	assert.Equal(t, []string{"ID", "Title", "Subtitle", "@title", mapping.ConstantPlaceholderKey}, set.Names())
}

func TestResync(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	active := f.create(ctx, t)
	f.create(ctx, t)

	_, err := f.svc.Activate(ctx, active.ID)
	require.NoError(t, err)
	require.NoError(t, f.jobs.Delete(ctx, domain.DerivedJobID(active, "isi_node")))

	reports, err := f.svc.Resync(ctx)
	require.NoError(t, err)
	assert.Len(t, reports, 1)
	assert.Contains(t, reports, active.ID)
	assert.Equal(t, 1, f.jobs.Len())
}

func TestDelete_KeepsRequestWhenJobsRemain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.create(ctx, t)
	_, err := f.svc.Activate(ctx, req.ID)
	require.NoError(t, err)

	f.jobs.DeleteFn = func(context.Context, string) error { return errors.New("locked") }
	require.Error(t, f.svc.Delete(ctx, req.ID))

	_, err = f.svc.Get(ctx, req.ID)
	assert.NoError(t, err)
}
