// Package app provides application-level wiring and dependency injection
// for the import tooling following hexagonal architecture.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"isi-import/internal/cache"
	"isi-import/internal/config"
	"isi-import/internal/db"
	"isi-import/internal/db/repository"
	"isi-import/internal/domain"
	"isi-import/internal/fileref"
	"isi-import/internal/mapping"
	"isi-import/internal/schema"
	"isi-import/internal/service/deriver"
	"isi-import/internal/service/request"
	"isi-import/internal/templates"
)

// Deps holds the external dependencies that main() must provide.
// Files and Schema are optional; when nil they are built from Cfg.
type Deps struct {
	Cfg    *config.Config
	Store  *db.Metastore
	Files  domain.FileResolver
	Schema domain.SchemaIntrospector
	Logger *slog.Logger
}

// Services groups the services the CLI needs.
type Services struct {
	Requests  *request.Service
	Deriver   *deriver.Deriver
	Templates *templates.Loader
	Catalog   *mapping.Catalog
}

// App holds the fully-wired application: services plus the repositories
// and caches read directly by the CLI.
type App struct {
	Services Services

	TemplateRepo *repository.JobTemplateRepo
	RequestRepo  *repository.ImportRequestRepo
	JobRepo      *repository.DerivedJobRepo
	JobReader    *repository.DerivedJobRepo // read pool
	Cache        *cache.TagCache
	Schema       domain.SchemaIntrospector
}

// New wires all repositories and services from the provided deps. It also
// seeds templates into an empty metastore and rebuilds derived jobs of
// active requests that have none.
func New(ctx context.Context, deps Deps) (*App, error) {
	cfg := deps.Cfg
	logger := deps.Logger

	// === Repositories ===
	templateRepo := repository.NewJobTemplateRepo(deps.Store.Write)
	requestRepo := repository.NewImportRequestRepo(deps.Store.Write)
	jobRepo := repository.NewDerivedJobRepo(deps.Store.Write)
	jobReader := repository.NewDerivedJobRepo(deps.Store.Read)

	// === Ports ===
	files := deps.Files
	if files == nil {
		r, err := fileref.NewFromConfig(ctx, cfg, logger.With("component", "fileref"))
		if err != nil {
			return nil, fmt.Errorf("file resolver: %w", err)
		}
		files = r
	}
	introspector := deps.Schema
	if introspector == nil {
		s, err := loadSchema(cfg.SchemaFile, logger)
		if err != nil {
			return nil, err
		}
		introspector = s
	}
	tagCache := cache.New()

	// === Services ===
	catalog := mapping.NewCatalog(files, mapping.NewSourceCache())
	drv := deriver.NewDeriver(templateRepo, jobRepo, tagCache, logger.With("component", "deriver"))
	requestSvc := request.NewService(
		requestRepo, templateRepo, introspector, catalog, drv,
		logger.With("component", "requests"),
	)
	loader := templates.NewLoader(templateRepo, logger.With("component", "templates"))

	a := &App{
		Services: Services{
			Requests:  requestSvc,
			Deriver:   drv,
			Templates: loader,
			Catalog:   catalog,
		},
		TemplateRepo: templateRepo,
		RequestRepo:  requestRepo,
		JobRepo:      jobRepo,
		JobReader:    jobReader,
		Cache:        tagCache,
		Schema:       introspector,
	}

	if err := seedTemplates(ctx, templateRepo, loader, cfg.TemplateDir); err != nil {
		logger.Warn("seed templates failed", "dir", cfg.TemplateDir, "error", err)
	}
	if err := restoreDerivedJobs(ctx, requestRepo, jobReader, drv, logger); err != nil {
		logger.Warn("restore derived jobs failed", "error", err)
	}
	return a, nil
}

// loadSchema reads the schema file. A missing file yields a schema without
// destinations so read-only commands still work.
func loadSchema(path string, logger *slog.Logger) (domain.SchemaIntrospector, error) {
	s, err := schema.LoadFile(path)
	if err == nil {
		return s, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn("schema file not found; mapping edits will be rejected", "path", path)
		return schema.Empty(), nil
	}
	return nil, fmt.Errorf("load schema: %w", err)
}

// ListJobs returns the derived jobs of group, served from the tag cache
// until the deriver invalidates it.
func (a *App) ListJobs(ctx context.Context, group string) ([]domain.DerivedJob, error) {
	v, err := a.Cache.GetOrLoad("jobs:"+group, func() (any, error) {
		return a.JobReader.ListByGroup(ctx, group)
	}, domain.CacheTagImportJobs)
	if err != nil {
		return nil, err
	}
	// Callers may reorder the result; the cached slice stays untouched.
	return append([]domain.DerivedJob(nil), v.([]domain.DerivedJob)...), nil
}
