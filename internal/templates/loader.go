// Package templates loads job templates from a directory of YAML documents
// into the template repository.
package templates

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"isi-import/internal/domain"
)

// SupportedAPIVersion is the apiVersion accepted in template documents.
const SupportedAPIVersion = "isi-import/v1"

// KindJobTemplate is the document kind of a job template.
const KindJobTemplate = "JobTemplate"

// envelope is parsed first to determine the document kind.
type envelope struct {
	APIVersion string `yaml:"apiVersion"`
	Kind       string `yaml:"kind"`
}

// Document is the on-disk layout of one job template.
type Document struct {
	APIVersion         string `yaml:"apiVersion"`
	Kind               string `yaml:"kind"`
	domain.JobTemplate `yaml:",inline"`
}

// LoadDirectory reads every *.yaml / *.yml document of kind JobTemplate below
// dir, sorted by template ID. Documents of other kinds are skipped.
func LoadDirectory(dir string) ([]domain.JobTemplate, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("template directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("template directory: %s is not a directory", dir)
	}

	var (
		out    []domain.JobTemplate
		origin = make(map[string]string)
	)
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isYAML(d.Name()) {
			return nil
		}
		tpl, ok, err := loadFile(path)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if prev, dup := origin[tpl.ID]; dup {
			return fmt.Errorf("%s: template %q already defined in %s", path, tpl.ID, prev)
		}
		origin[tpl.ID] = path
		out = append(out, *tpl)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func isYAML(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

// loadFile returns (nil, false, nil) for documents of another kind.
func loadFile(path string) (*domain.JobTemplate, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // reading operator-provided template files
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", path, err)
	}

	var env envelope
	if err := yaml.Unmarshal(data, &env); err != nil {
		return nil, false, fmt.Errorf("parse %s: %w", path, err)
	}
	if env.Kind != KindJobTemplate {
		return nil, false, nil
	}
	if env.APIVersion != SupportedAPIVersion {
		return nil, false, fmt.Errorf("%s: unsupported apiVersion %q (expected %q)", path, env.APIVersion, SupportedAPIVersion)
	}

	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, false, fmt.Errorf("parse %s: %w", path, err)
	}
	tpl := doc.JobTemplate
	if err := tpl.Validate(); err != nil {
		return nil, false, fmt.Errorf("%s: %w", path, err)
	}
	return &tpl, true, nil
}

// SyncResult reports what a Sync changed.
type SyncResult struct {
	Upserted []string
	Pruned   []string
}

// Loader writes templates read from disk into the repository.
type Loader struct {
	repo   domain.JobTemplateRepository
	logger *slog.Logger
}

// NewLoader creates a Loader.
func NewLoader(repo domain.JobTemplateRepository, logger *slog.Logger) *Loader {
	return &Loader{repo: repo, logger: logger}
}

// Sync upserts every template found in dir. With prune, templates in the
// repository that no longer exist on disk are deleted. Nothing is written
// when any document fails to load.
func (l *Loader) Sync(ctx context.Context, dir string, prune bool) (*SyncResult, error) {
	tpls, err := LoadDirectory(dir)
	if err != nil {
		return nil, err
	}

	res := &SyncResult{}
	keep := make(map[string]struct{}, len(tpls))
	var errs []error
	for i := range tpls {
		keep[tpls[i].ID] = struct{}{}
		if _, err := l.repo.Upsert(ctx, &tpls[i]); err != nil {
			l.logger.Error("template upsert failed", "template", tpls[i].ID, "error", err)
			errs = append(errs, fmt.Errorf("upsert template %q: %w", tpls[i].ID, err))
			continue
		}
		res.Upserted = append(res.Upserted, tpls[i].ID)
	}

	if prune {
		existing, err := l.repo.List(ctx)
		if err != nil {
			return res, errors.Join(append(errs, fmt.Errorf("list templates: %w", err))...)
		}
		for _, t := range existing {
			if _, ok := keep[t.ID]; ok {
				continue
			}
			if err := l.repo.Delete(ctx, t.ID); err != nil {
				l.logger.Error("template prune failed", "template", t.ID, "error", err)
				errs = append(errs, fmt.Errorf("delete template %q: %w", t.ID, err))
				continue
			}
			res.Pruned = append(res.Pruned, t.ID)
		}
	}

	l.logger.Info("templates synced", "dir", dir, "upserted", len(res.Upserted), "pruned", len(res.Pruned))
	return res, errors.Join(errs...)
}
