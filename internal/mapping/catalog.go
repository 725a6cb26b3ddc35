package mapping

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"isi-import/internal/domain"
	"isi-import/internal/tabular"
)

// ConstantPlaceholderKey is the catalog key of the "new default value"
// source. Column names cannot start with "@", so it never collides.
const ConstantPlaceholderKey = "@@default_value"

// SourceSet is an ordered name → Source mapping.
type SourceSet struct {
	names   []string
	sources map[string]Source
	// Rejected lists header cells that cannot be used as column names.
	Rejected []string
}

func newSourceSet() *SourceSet {
	return &SourceSet{sources: make(map[string]Source)}
}

// put inserts or replaces. A replaced key keeps its first position.
func (s *SourceSet) put(key string, src Source) {
	if _, ok := s.sources[key]; !ok {
		s.names = append(s.names, key)
	}
	s.sources[key] = src
}

// Names returns the keys in catalog order.
func (s *SourceSet) Names() []string { return append([]string(nil), s.names...) }

// Get looks up a source by key.
func (s *SourceSet) Get(key string) (Source, bool) {
	src, ok := s.sources[key]
	return src, ok
}

// Len returns the number of sources.
func (s *SourceSet) Len() int { return len(s.names) }

// BuildSourceSet lists, in order: one ColumnSource per header column, one
// PipelineOutputSource per existing pipeline, and the constant placeholder.
// A repeated header name maps to a single source.
func BuildSourceSet(columns []string, existing []*Pipeline) *SourceSet {
	set := newSourceSet()
	for _, col := range columns {
		if col == "" {
			continue
		}
		src, err := NewColumnSource(col)
		if err != nil {
			set.Rejected = append(set.Rejected, col)
			continue
		}
		set.put(col, src)
	}
	for _, p := range existing {
		set.put(p.Name(), &PipelineOutputSource{Destination: p.Destination})
	}
	set.put(ConstantPlaceholderKey, &ConstantSource{})
	return set
}

// EnumerateSources reads the header of sheet at offset from r and builds the
// source set around the existing pipelines.
func EnumerateSources(r tabular.Reader, sheet string, offset int, existing []*Pipeline) (*SourceSet, error) {
	columns, err := r.Header(sheet, offset)
	if err != nil {
		return nil, err
	}
	return BuildSourceSet(columns, existing), nil
}

// SourceCache memoises header columns by file, sheet and header offset.
// Entries live until invalidated.
type SourceCache struct {
	mu      sync.Mutex
	entries map[string][]string
}

// NewSourceCache returns an empty cache.
func NewSourceCache() *SourceCache {
	return &SourceCache{entries: make(map[string][]string)}
}

func cacheKey(fileRef, sheet string, offset int) string {
	return strconv.Quote(fileRef) + "|" + strconv.Quote(sheet) + "|" + strconv.Itoa(offset)
}

// Columns returns the cached columns or calls load and caches its result.
// Failed loads are not cached.
func (c *SourceCache) Columns(fileRef, sheet string, offset int, load func() ([]string, error)) ([]string, error) {
	key := cacheKey(fileRef, sheet, offset)

	c.mu.Lock()
	cols, ok := c.entries[key]
	c.mu.Unlock()
	if ok {
		return append([]string(nil), cols...), nil
	}

	cols, err := load()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.entries[key] = cols
	c.mu.Unlock()
	return append([]string(nil), cols...), nil
}

// Invalidate drops every entry of fileRef.
func (c *SourceCache) Invalidate(fileRef string) {
	prefix := strconv.Quote(fileRef) + "|"
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
}

// Purge drops every entry.
func (c *SourceCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string][]string)
}

// Catalog discovers sheets and columns of file references. Every call opens
// its own reader and closes it before returning.
type Catalog struct {
	files domain.FileResolver
	cache *SourceCache
	opts  []tabular.Option
}

// NewCatalog creates a Catalog. cache may be nil to disable caching.
func NewCatalog(files domain.FileResolver, cache *SourceCache, opts ...tabular.Option) *Catalog {
	return &Catalog{files: files, cache: cache, opts: opts}
}

func (c *Catalog) open(ctx context.Context, fileRef string) (tabular.Reader, error) {
	path, err := c.files.Resolve(ctx, fileRef)
	if err != nil {
		return nil, err
	}
	return tabular.Open(path, c.opts...)
}

// Sheets lists the sheets of fileRef, or nil for formats without sheets.
func (c *Catalog) Sheets(ctx context.Context, fileRef string) ([]string, error) {
	r, err := c.open(ctx, fileRef)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.Sheets(), nil
}

// Columns returns the header row of sheet at offset.
func (c *Catalog) Columns(ctx context.Context, fileRef, sheet string, offset int) ([]string, error) {
	load := func() ([]string, error) {
		r, err := c.open(ctx, fileRef)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		cols, err := r.Header(sheet, offset)
		if err != nil {
			return nil, fmt.Errorf("read header of %s: %w", fileRef, err)
		}
		return cols, nil
	}
	if c.cache == nil {
		return load()
	}
	return c.cache.Columns(fileRef, sheet, offset, load)
}

// Preview returns up to limit data rows below the header, keyed by column.
func (c *Catalog) Preview(ctx context.Context, fileRef, sheet string, offset, limit int) ([]tabular.Record, error) {
	r, err := c.open(ctx, fileRef)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	it, err := tabular.Records(r, sheet, offset)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []tabular.Record
	for len(out) < limit && it.Next() {
		out = append(out, it.Record())
	}
	return out, it.Err()
}

// Invalidate forgets cached columns of fileRef.
func (c *Catalog) Invalidate(fileRef string) {
	if c.cache != nil {
		c.cache.Invalidate(fileRef)
	}
}
