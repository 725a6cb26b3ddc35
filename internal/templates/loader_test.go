package templates

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
	"isi-import/internal/testutil"
)

const nodeYAML = `apiVersion: isi-import/v1
kind: JobTemplate
id: isi_node
group: isi
label: Articles
destination:
  plugin: entity:node
  default_bundle: article
process:
  - field: title
    steps:
      - plugin: get
        source: Title
  - field: field_image
    weight: 1
    steps:
      - plugin: migration_lookup
        migration: isi_media_image
        source: Image
dependencies:
  enforced:
    module: [node]
migration_dependencies:
  required: [isi_media_image]
`

const imageYAML = `apiVersion: isi-import/v1
kind: JobTemplate
id: isi_media_image
group: isi
label: Images
destination:
  plugin: entity:media
`

const schemaYAML = `apiVersion: isi-import/v1
kind: DestinationSchema
destinations: []
`

func writeYAML(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "node.yaml", nodeYAML)
	writeYAML(t, dir, "media/image.yml", imageYAML)
	writeYAML(t, dir, "schema.yaml", schemaYAML)
	writeYAML(t, dir, "README.md", "not yaml")

	tpls, err := LoadDirectory(dir)
	require.NoError(t, err)
	require.Len(t, tpls, 2)
	assert.Equal(t, "isi_media_image", tpls[0].ID)

	node := tpls[1]
	assert.Equal(t, "isi_node", node.ID)
	assert.Equal(t, "isi", node.Group)
	assert.Equal(t, "entity:node", node.DestinationPlugin())
	require.Len(t, node.Process, 2)
	assert.Equal(t, domain.StepRecord{"plugin": "get", "source": "Title"}, node.Process[0].Steps[0])
	assert.Equal(t, 1, node.Process[1].Weight)
	assert.Equal(t, []string{"node"}, node.Dependencies.Enforced["module"])
	assert.Equal(t, []string{"isi_media_image"}, node.MigrationDependencies["required"])
}

func TestLoadDirectory_Errors(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
	}{
		{"unknown field", map[string]string{"a.yaml": imageYAML + "colour: blue\n"}},
		{"bad version", map[string]string{"a.yaml": "apiVersion: v0\nkind: JobTemplate\nid: x\n"}},
		{"invalid template", map[string]string{"a.yaml": "apiVersion: isi-import/v1\nkind: JobTemplate\nid: x\n"}},
		{"duplicate id", map[string]string{"a.yaml": imageYAML, "b/a.yaml": imageYAML}},
		{"malformed", map[string]string{"a.yaml": "id: [unclosed"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for rel, content := range tt.files {
				writeYAML(t, dir, rel, content)
			}
			_, err := LoadDirectory(dir)
			assert.Error(t, err)
		})
	}

	_, err := LoadDirectory(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestLoader_Sync(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "node.yaml", nodeYAML)
	writeYAML(t, dir, "image.yaml", imageYAML)

	repo := testutil.NewMockJobTemplateRepo(domain.JobTemplate{
		ID: "stale", Group: "old", Destination: map[string]any{"plugin": "entity:node"},
	})
	loader := NewLoader(repo, slog.New(slog.DiscardHandler))
	ctx := context.Background()

	res, err := loader.Sync(ctx, dir, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"isi_media_image", "isi_node"}, res.Upserted)
	assert.Empty(t, res.Pruned)
	all, _ := repo.List(ctx)
	assert.Len(t, all, 3)

	res, err = loader.Sync(ctx, dir, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"stale"}, res.Pruned)
	_, err = repo.GetByID(ctx, "stale")
	var nf *domain.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestLoader_SyncWritesNothingOnLoadError(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "node.yaml", nodeYAML)
	writeYAML(t, dir, "bad.yaml", "apiVersion: isi-import/v1\nkind: JobTemplate\nid: bad\n")

	repo := testutil.NewMockJobTemplateRepo()
	_, err := NewLoader(repo, slog.New(slog.DiscardHandler)).Sync(context.Background(), dir, true)
	require.Error(t, err)
	all, _ := repo.List(context.Background())
	assert.Empty(t, all)
}

type failingRepo struct {
	*testutil.MockJobTemplateRepo
}

func (failingRepo) Upsert(context.Context, *domain.JobTemplate) (*domain.JobTemplate, error) {
	return nil, errors.New("disk full")
}

func TestLoader_SyncReportsUpsertFailures(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "node.yaml", nodeYAML)

	repo := failingRepo{testutil.NewMockJobTemplateRepo()}
	res, err := NewLoader(repo, slog.New(slog.DiscardHandler)).Sync(context.Background(), dir, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "isi_node")
	assert.Empty(t, res.Upserted)
}
