// Package deriver compiles import requests into request-scoped derived jobs.
package deriver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"isi-import/internal/domain"
)

// TemplateFailure records why one template of a request was not derived.
type TemplateFailure struct {
	TemplateID string
	Err        error
}

// DeriveReport summarises one CreateAll run.
type DeriveReport struct {
	Group string
	// Skipped is set when the request was inactive or disabled.
	Skipped bool
	// Jobs lists the IDs of the derived jobs written, in template order.
	Jobs     []string
	Failures []TemplateFailure
	// Order holds the execution levels of the derived jobs.
	Order [][]string
}

// Err joins the per-template failures, or returns nil.
func (r *DeriveReport) Err() error {
	if r == nil || len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, fmt.Errorf("template %q: %w", f.TemplateID, f.Err))
	}
	return errors.Join(errs...)
}

// Deriver writes and removes the derived jobs of import requests.
// Calls for the same request must not overlap; callers provide that
// exclusion.
type Deriver struct {
	templates domain.JobTemplateRepository
	jobs      domain.DerivedJobRepository
	cache     domain.CacheInvalidator
	logger    *slog.Logger
}

// NewDeriver creates a new Deriver.
func NewDeriver(
	templates domain.JobTemplateRepository,
	jobs domain.DerivedJobRepository,
	cache domain.CacheInvalidator,
	logger *slog.Logger,
) *Deriver {
	return &Deriver{
		templates: templates,
		jobs:      jobs,
		cache:     cache,
		logger:    logger,
	}
}

// CreateAll derives one job per template selected by req and upserts it by
// its deterministic ID. A failing template is recorded in the report and
// does not stop its siblings. The returned error joins the template
// failures and any dependency cycle among the derived jobs.
func (d *Deriver) CreateAll(ctx context.Context, req *domain.ImportRequest) (*DeriveReport, error) {
	group := domain.GroupName(req)
	report := &DeriveReport{Group: group}

	if !req.Active || !req.Enabled {
		d.logger.Info("skipping job derivation for inactive request",
			"request", req.ID, "active", req.Active, "enabled", req.Enabled)
		report.Skipped = true
		return report, nil
	}

	siblingsByGroup := make(map[string]map[string]struct{})
	var derived []domain.DerivedJob
	for _, tplID := range req.TemplateIDs {
		job, err := d.deriveOne(ctx, req, group, tplID, siblingsByGroup)
		if err != nil {
			d.logger.Error("deriving job failed",
				"request", req.ID, "template", tplID, "error", err)
			report.Failures = append(report.Failures, TemplateFailure{TemplateID: tplID, Err: err})
			continue
		}
		report.Jobs = append(report.Jobs, job.ID)
		derived = append(derived, *job)
	}

	d.cache.InvalidateTags(domain.CacheTagImportJobs)

	errs := []error{report.Err()}
	order, err := ResolveExecutionOrder(derived)
	if err != nil {
		d.logger.Error("derived jobs are not orderable", "group", group, "error", err)
		errs = append(errs, err)
	}
	report.Order = order

	d.logger.Info("derived jobs written",
		"request", req.ID, "group", group, "jobs", len(report.Jobs), "failures", len(report.Failures))
	return report, errors.Join(errs...)
}

func (d *Deriver) deriveOne(
	ctx context.Context,
	req *domain.ImportRequest,
	group, tplID string,
	siblingsByGroup map[string]map[string]struct{},
) (*domain.DerivedJob, error) {
	tpl, err := d.templates.GetByID(ctx, tplID)
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}

	siblings, ok := siblingsByGroup[tpl.Group]
	if !ok {
		siblings, err = d.groupMembers(ctx, tpl.Group)
		if err != nil {
			return nil, err
		}
		siblingsByGroup[tpl.Group] = siblings
	}

	process, edited := req.Mappings[tplID]
	if !edited {
		process = tpl.Process
	}

	columns, err := UsedColumns(process)
	if err != nil {
		return nil, fmt.Errorf("collect columns: %w", err)
	}
	process, err = RewriteLookups(process, group, siblings)
	if err != nil {
		return nil, fmt.Errorf("rewrite lookups: %w", err)
	}

	id := domain.DerivedJobID(req, tplID)
	job, err := d.jobs.GetByID(ctx, id)
	if err != nil {
		var notFound *domain.NotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("load derived job: %w", err)
		}
		job = &domain.DerivedJob{ID: id}
	}

	job.Group = group
	job.TemplateID = tpl.ID
	job.RequestID = req.ID
	job.Label = derivedLabel(req, tpl)
	job.Source = domain.DerivedJobSource{
		Plugin:    domain.SourcePluginSpreadsheet,
		FileRef:   req.FileRef,
		Sheet:     req.Sheet,
		HeaderRow: req.HeaderRow,
		Columns:   columns,
	}
	job.Process = process
	job.Destination = cloneMap(tpl.Destination)
	job.Dependencies = withRequestDependency(tpl.Dependencies, req)
	job.MigrationDependencies = RewriteMigrationDependencies(tpl.MigrationDependencies, group, siblings)

	saved, err := d.jobs.Upsert(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("save derived job: %w", err)
	}
	return saved, nil
}

// groupMembers returns the IDs of every template in the original group.
func (d *Deriver) groupMembers(ctx context.Context, group string) (map[string]struct{}, error) {
	members := make(map[string]struct{})
	if group == "" {
		return members, nil
	}
	tpls, err := d.templates.ListByGroup(ctx, group)
	if err != nil {
		return nil, fmt.Errorf("list templates of group %q: %w", group, err)
	}
	for _, t := range tpls {
		members[t.ID] = struct{}{}
	}
	return members, nil
}

// DeleteAll removes every derived job of req's group. Zero matches is not an
// error. A failing delete is logged and the rest of the batch continues; the
// cache is invalidated in every case.
func (d *Deriver) DeleteAll(ctx context.Context, req *domain.ImportRequest) error {
	group := domain.GroupName(req)
	defer d.cache.InvalidateTags(domain.CacheTagImportJobs)

	jobs, err := d.jobs.ListByGroup(ctx, group)
	if err != nil {
		d.logger.Error("listing derived jobs failed", "group", group, "error", err)
		return fmt.Errorf("list derived jobs of %q: %w", group, err)
	}

	var errs []error
	for _, j := range jobs {
		if err := d.jobs.Delete(ctx, j.ID); err != nil {
			d.logger.Error("deleting derived job failed", "job", j.ID, "error", err)
			errs = append(errs, fmt.Errorf("delete %q: %w", j.ID, err))
		}
	}

	d.logger.Info("derived jobs deleted",
		"request", req.ID, "group", group, "deleted", len(jobs)-len(errs), "failures", len(errs))
	return errors.Join(errs...)
}

func derivedLabel(req *domain.ImportRequest, tpl *domain.JobTemplate) string {
	label := tpl.Label
	if label == "" {
		label = tpl.ID
	}
	return req.Label + ": " + label
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	return map[string]any(domain.StepRecord(in).Clone())
}
