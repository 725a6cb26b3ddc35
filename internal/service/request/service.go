// Package request implements the lifecycle of import requests: creation,
// mapping edits, activation and teardown of their derived jobs.
package request

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"isi-import/internal/domain"
	"isi-import/internal/mapping"
	"isi-import/internal/service/deriver"
)

// JobDeriver writes and removes the derived jobs of a request.
// Implemented by deriver.Deriver.
type JobDeriver interface {
	CreateAll(ctx context.Context, req *domain.ImportRequest) (*deriver.DeriveReport, error)
	DeleteAll(ctx context.Context, req *domain.ImportRequest) error
}

// Service provides business logic for import requests.
type Service struct {
	requests  domain.ImportRequestRepository
	templates domain.JobTemplateRepository
	schema    domain.SchemaIntrospector
	catalog   *mapping.Catalog
	deriver   JobDeriver
	logger    *slog.Logger
}

// NewService creates a new Service.
func NewService(
	requests domain.ImportRequestRepository,
	templates domain.JobTemplateRepository,
	schema domain.SchemaIntrospector,
	catalog *mapping.Catalog,
	deriver JobDeriver,
	logger *slog.Logger,
) *Service {
	return &Service{
		requests:  requests,
		templates: templates,
		schema:    schema,
		catalog:   catalog,
		deriver:   deriver,
		logger:    logger,
	}
}

// Create stores a new, inactive request owned by the context principal.
func (s *Service) Create(ctx context.Context, in domain.CreateImportRequest) (*domain.ImportRequest, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	for _, id := range in.TemplateIDs {
		if _, err := s.templates.GetByID(ctx, id); err != nil {
			return nil, fmt.Errorf("template %q: %w", id, err)
		}
	}

	req := &domain.ImportRequest{
		ID:          domain.NewID(),
		Label:       in.Label,
		FileRef:     in.FileRef,
		Sheet:       in.Sheet,
		HeaderRow:   in.HeaderRow,
		Enabled:     true,
		Owner:       domain.PrincipalName(ctx, "system"),
		TemplateIDs: slices.Clone(in.TemplateIDs),
		Mappings:    map[string][]domain.FieldProcess{},
	}
	created, err := s.requests.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	s.logger.Info("import request created", "request", created.ID, "owner", created.Owner)
	return created, nil
}

// Get returns a request by ID.
func (s *Service) Get(ctx context.Context, id string) (*domain.ImportRequest, error) {
	return s.requests.GetByID(ctx, id)
}

// List returns a page of requests matching filter and the total count.
func (s *Service) List(ctx context.Context, filter domain.ImportRequestFilter) ([]domain.ImportRequest, int64, error) {
	return s.requests.List(ctx, filter)
}

// Editor returns a mapping editor for one template of the request, loaded
// with the request's edited process or, when there is none, the
// template's own.
func (s *Service) Editor(ctx context.Context, req *domain.ImportRequest, templateID string) (*mapping.Editor, error) {
	if !slices.Contains(req.TemplateIDs, templateID) {
		return nil, domain.ErrValidation("template %q is not selected by request %q", templateID, req.ID)
	}
	tpl, err := s.templates.GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}
	editor, err := mapping.NewEditor(ctx, tpl, s.schema)
	if err != nil {
		return nil, err
	}
	process, ok := req.Mappings[templateID]
	if !ok {
		process = tpl.Process
	}
	if err := editor.LoadProcess(process); err != nil {
		return nil, fmt.Errorf("load mapping of %q: %w", templateID, err)
	}
	return editor, nil
}

// Sources lists what a new mapping of templateID can read: the request
// file's columns, the template's current pipelines and a constant.
func (s *Service) Sources(ctx context.Context, id, templateID string) (*mapping.SourceSet, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	editor, err := s.Editor(ctx, req, templateID)
	if err != nil {
		return nil, err
	}
	columns, err := s.catalog.Columns(ctx, req.FileRef, req.Sheet, req.HeaderRow)
	if err != nil {
		return nil, err
	}
	return editor.EnumerateSources(columns), nil
}

// UpdateMappings replaces the edited process of one template after checking
// it against the destination schema. An active request is re-derived.
func (s *Service) UpdateMappings(ctx context.Context, id, templateID string, process []domain.FieldProcess) (*domain.ImportRequest, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	editor, err := s.Editor(ctx, req, templateID)
	if err != nil {
		return nil, err
	}
	if err := editor.LoadProcess(process); err != nil {
		return nil, err
	}
	normalized, err := editor.Process()
	if err != nil {
		return nil, err
	}

	if req.Mappings == nil {
		req.Mappings = map[string][]domain.FieldProcess{}
	}
	req.Mappings[templateID] = normalized
	updated, err := s.requests.Update(ctx, req)
	if err != nil {
		return nil, err
	}
	s.logger.Info("import request mapping updated", "request", id, "template", templateID, "fields", len(normalized))

	if updated.Active {
		if _, err := s.deriver.CreateAll(ctx, updated); err != nil {
			return updated, fmt.Errorf("re-derive jobs: %w", err)
		}
	}
	return updated, nil
}

// Activate marks the request active and derives its jobs.
func (s *Service) Activate(ctx context.Context, id string) (*deriver.DeriveReport, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !req.Enabled {
		return nil, domain.ErrValidation("import request %q is disabled", id)
	}
	if !req.Active {
		req.Active = true
		if req, err = s.requests.Update(ctx, req); err != nil {
			return nil, err
		}
	}
	s.logger.Info("import request activated", "request", id)
	return s.deriver.CreateAll(ctx, req)
}

// Deactivate marks the request inactive and removes its jobs.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if req.Active {
		req.Active = false
		if req, err = s.requests.Update(ctx, req); err != nil {
			return err
		}
	}
	s.logger.Info("import request deactivated", "request", id)
	return s.deriver.DeleteAll(ctx, req)
}

// Delete removes the request's jobs, then the request itself. The request
// is kept when its jobs could not all be removed.
func (s *Service) Delete(ctx context.Context, id string) error {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.deriver.DeleteAll(ctx, req); err != nil {
		return fmt.Errorf("delete jobs of %q: %w", id, err)
	}
	if err := s.requests.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("import request deleted", "request", id)
	return nil
}

// Resync re-derives the jobs of every active request, for example after
// job templates were reloaded. A failing request does not stop the others.
func (s *Service) Resync(ctx context.Context) (map[string]*deriver.DeriveReport, error) {
	active := true
	filter := domain.ImportRequestFilter{Active: &active, Page: domain.PageRequest{Size: domain.MaxPageSize}}

	reports := make(map[string]*deriver.DeriveReport)
	var errs []error
	for {
		page, total, err := s.requests.List(ctx, filter)
		if err != nil {
			return reports, err
		}
		for i := range page {
			req := &page[i]
			report, err := s.deriver.CreateAll(ctx, req)
			reports[req.ID] = report
			if err != nil {
				errs = append(errs, fmt.Errorf("request %q: %w", req.ID, err))
			}
		}
		offset := filter.Page.Offset()
		next := domain.NextPageToken(offset, filter.Page.Limit(), total)
		if next == "" || len(page) == 0 {
			break
		}
		filter.Page.Token = next
	}
	s.logger.Info("import requests resynced", "requests", len(reports), "failures", len(errs))
	return reports, errors.Join(errs...)
}
