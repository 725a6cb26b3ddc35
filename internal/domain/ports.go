package domain

import "context"

// SchemaIntrospector returns the known property names of a destination.
// Implemented by schema.YAMLIntrospector.
type SchemaIntrospector interface {
	DestinationProperties(ctx context.Context, destination string) ([]string, error)
}

// CacheInvalidator receives coarse invalidation signals after derived jobs change.
// Implemented by cache.TagCache.
type CacheInvalidator interface {
	InvalidateTags(tags ...string)
}

// FileResolver turns an opaque file reference into a readable local path.
// It fails with *FileNotLocalError when that is not possible.
// Implemented by fileref.Resolver.
type FileResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// CacheTagImportJobs is invalidated whenever the set of derived jobs changes.
const CacheTagImportJobs = "import_jobs"
