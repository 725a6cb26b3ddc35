package repository

import (
	"context"
	"database/sql"
	"fmt"

	"isi-import/internal/domain"
)

var _ domain.JobTemplateRepository = (*JobTemplateRepo)(nil)

const jobTemplateColumns = `id, group_name, label, destination, process, dependencies,
	migration_dependencies, created_at, updated_at`

// JobTemplateRepo implements domain.JobTemplateRepository.
type JobTemplateRepo struct {
	db *sql.DB
}

// NewJobTemplateRepo creates a new JobTemplateRepo.
func NewJobTemplateRepo(db *sql.DB) *JobTemplateRepo {
	return &JobTemplateRepo{db: db}
}

// GetByID returns a template by ID.
func (r *JobTemplateRepo) GetByID(ctx context.Context, id string) (*domain.JobTemplate, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobTemplateColumns+` FROM job_templates WHERE id = ?`, id)
	t, err := scanJobTemplate(row)
	if err != nil {
		return nil, mapDBError(err, fmt.Sprintf("job template %q", id))
	}
	return t, nil
}

// ListByGroup returns the templates of one original group ordered by ID.
func (r *JobTemplateRepo) ListByGroup(ctx context.Context, group string) ([]domain.JobTemplate, error) {
	return r.query(ctx, `SELECT `+jobTemplateColumns+` FROM job_templates WHERE group_name = ? ORDER BY id`, group)
}

// List returns every template ordered by group and ID.
func (r *JobTemplateRepo) List(ctx context.Context) ([]domain.JobTemplate, error) {
	return r.query(ctx, `SELECT `+jobTemplateColumns+` FROM job_templates ORDER BY group_name, id`)
}

func (r *JobTemplateRepo) query(ctx context.Context, q string, args ...any) ([]domain.JobTemplate, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.JobTemplate
	for rows.Next() {
		t, err := scanJobTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// Upsert validates and stores a template, replacing any template with the
// same ID.
func (r *JobTemplateRepo) Upsert(ctx context.Context, t *domain.JobTemplate) (*domain.JobTemplate, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	destination, err := toJSON(t.Destination, "{}")
	if err != nil {
		return nil, err
	}
	process, err := toJSON(t.Process, "[]")
	if err != nil {
		return nil, err
	}
	deps, err := toJSON(t.Dependencies, "{}")
	if err != nil {
		return nil, err
	}
	migDeps, err := toJSON(t.MigrationDependencies, "{}")
	if err != nil {
		return nil, err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO job_templates (id, group_name, label, destination, process, dependencies, migration_dependencies)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			group_name = excluded.group_name,
			label = excluded.label,
			destination = excluded.destination,
			process = excluded.process,
			dependencies = excluded.dependencies,
			migration_dependencies = excluded.migration_dependencies,
			updated_at = datetime('now')`,
		t.ID, t.Group, t.Label, destination, process, deps, migDeps)
	if err != nil {
		return nil, mapDBError(err, fmt.Sprintf("job template %q", t.ID))
	}
	return r.GetByID(ctx, t.ID)
}

// Delete removes a template by ID.
func (r *JobTemplateRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM job_templates WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return domain.ErrNotFound("job template %q not found", id)
	}
	return nil
}

func scanJobTemplate(s rowScanner) (*domain.JobTemplate, error) {
	var (
		t                                   domain.JobTemplate
		destination, process, deps, migDeps string
		createdAt, updatedAt                string
	)
	if err := s.Scan(&t.ID, &t.Group, &t.Label, &destination, &process, &deps, &migDeps,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := fromJSON("destination", destination, &t.Destination); err != nil {
		return nil, err
	}
	if err := fromJSON("process", process, &t.Process); err != nil {
		return nil, err
	}
	if err := fromJSON("dependencies", deps, &t.Dependencies); err != nil {
		return nil, err
	}
	if err := fromJSON("migration_dependencies", migDeps, &t.MigrationDependencies); err != nil {
		return nil, err
	}
	if len(t.MigrationDependencies) == 0 {
		t.MigrationDependencies = nil
	}
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return &t, nil
}
