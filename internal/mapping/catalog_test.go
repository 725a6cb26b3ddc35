package mapping

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"isi-import/internal/domain"
	"isi-import/internal/tabular"
)

type resolverFunc func(ctx context.Context, ref string) (string, error)

func (f resolverFunc) Resolve(ctx context.Context, ref string) (string, error) { return f(ctx, ref) }

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "items.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestBuildSourceSet(t *testing.T) {
	title, err := NewPipeline("title", &ColumnSource{Column: "Title"})
	require.NoError(t, err)

	set := BuildSourceSet([]string{"ID", "", "Title", "@bad", "ID"}, []*Pipeline{title})

	assert.Equal(t, []string{"ID", "Title", "@title", ConstantPlaceholderKey}, set.Names())
	assert.Equal(t, []string{"@bad"}, set.Rejected)
	assert.Equal(t, 4, set.Len())

	src, ok := set.Get("@title")
	require.True(t, ok)
	assert.Equal(t, CategoryProcessedValue, src.Category())

	src, ok = set.Get(ConstantPlaceholderKey)
	require.True(t, ok)
	assert.Equal(t, CategorySystem, src.Category())
	_, err = src.StepRecord()
	assert.ErrorIs(t, err, domain.ErrEmptyConstant, "the placeholder has no value yet")

	_, ok = set.Get("missing")
	assert.False(t, ok)
}

func TestSourceCache(t *testing.T) {
	c := NewSourceCache()
	calls := 0
	load := func() ([]string, error) {
		calls++
		return []string{"A", "B"}, nil
	}

	cols, err := c.Columns("f.csv", "", 0, load)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, cols)
	cols[0] = "mutated"

	cols, err = c.Columns("f.csv", "", 0, load)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, cols, "callers get a copy")
	assert.Equal(t, 1, calls)

	_, err = c.Columns("f.csv", "", 1, load)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "offset is part of the key")

	c.Invalidate("f.csv")
	_, err = c.Columns("f.csv", "", 0, load)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	c.Purge()
	_, err = c.Columns("f.csv", "", 0, load)
	require.NoError(t, err)
	assert.Equal(t, 4, calls)
}

func TestSourceCache_FailedLoadNotCached(t *testing.T) {
	c := NewSourceCache()
	boom := errors.New("boom")

	_, err := c.Columns("f.csv", "", 0, func() ([]string, error) { return nil, boom })
	require.ErrorIs(t, err, boom)

	cols, err := c.Columns("f.csv", "", 0, func() ([]string, error) { return []string{"A"}, nil })
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, cols)
}

func TestCatalog(t *testing.T) {
	path := writeCSV(t, "ID,Title\n1,First\n2,Second\n3,Third\n")
	resolves := 0
	files := resolverFunc(func(_ context.Context, ref string) (string, error) {
		resolves++
		if ref != "items" {
			return "", &domain.FileNotLocalError{Ref: ref, Reason: "unknown"}
		}
		return path, nil
	})
	cat := NewCatalog(files, NewSourceCache())
	ctx := context.Background()

	sheets, err := cat.Sheets(ctx, "items")
	require.NoError(t, err)
	assert.Empty(t, sheets)

	cols, err := cat.Columns(ctx, "items", "", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"ID", "Title"}, cols)

	before := resolves
	_, err = cat.Columns(ctx, "items", "", 0)
	require.NoError(t, err)
	assert.Equal(t, before, resolves, "columns are served from the cache")

	cat.Invalidate("items")
	_, err = cat.Columns(ctx, "items", "", 0)
	require.NoError(t, err)
	assert.Equal(t, before+1, resolves)

	rows, err := cat.Preview(ctx, "items", "", 0, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "First", rows[0]["Title"])
	assert.Equal(t, "2", rows[1]["ID"])

	_, err = cat.Columns(ctx, "items", "", 9)
	var hdrErr *domain.HeaderNotFoundError
	require.ErrorAs(t, err, &hdrErr)

	_, err = cat.Columns(ctx, "other", "", 0)
	var notLocal *domain.FileNotLocalError
	require.ErrorAs(t, err, &notLocal)
}

func TestCatalog_RereadsAfterInvalidate(t *testing.T) {
	path := writeCSV(t, "ID,Title\n1,a\n")
	cat := NewCatalog(resolverFunc(func(context.Context, string) (string, error) { return path, nil }), NewSourceCache())
	ctx := context.Background()

	cols, err := cat.Columns(ctx, "items", "", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"ID", "Title"}, cols)

	require.NoError(t, os.WriteFile(path, []byte("ID,Name\n"), 0o600))
	cols, err = cat.Columns(ctx, "items", "", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"ID", "Title"}, cols, "served from cache")

	cat.Invalidate("items")
	cols, err = cat.Columns(ctx, "items", "", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"ID", "Name"}, cols)
}

func TestEnumerateSources(t *testing.T) {
	r, err := tabular.Open(writeCSV(t, "ID,Title\n"))
	require.NoError(t, err)
	defer r.Close()

	set, err := EnumerateSources(r, "", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"ID", "Title", ConstantPlaceholderKey}, set.Names())

	_, err = EnumerateSources(r, "", 5, nil)
	var hdrErr *domain.HeaderNotFoundError
	assert.ErrorAs(t, err, &hdrErr)
}

func TestCatalog_WithoutCache(t *testing.T) {
	path := writeCSV(t, "A\n1\n")
	cat := NewCatalog(resolverFunc(func(context.Context, string) (string, error) { return path, nil }), nil)

	cols, err := cat.Columns(context.Background(), "x", "", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, cols)
	cat.Invalidate("x")
}
