package repository

import (
	"context"
	"database/sql"
	"fmt"

	"isi-import/internal/domain"
)

var _ domain.DerivedJobRepository = (*DerivedJobRepo)(nil)

const derivedJobColumns = `id, group_name, template_id, request_id, label, source, process,
	destination, dependencies, migration_dependencies, created_at, updated_at`

// DerivedJobRepo implements domain.DerivedJobRepository. Structured fields
// are stored as JSON text columns.
type DerivedJobRepo struct {
	db *sql.DB
}

// NewDerivedJobRepo creates a new DerivedJobRepo.
func NewDerivedJobRepo(db *sql.DB) *DerivedJobRepo {
	return &DerivedJobRepo{db: db}
}

// GetByID returns a derived job by its exact ID.
func (r *DerivedJobRepo) GetByID(ctx context.Context, id string) (*domain.DerivedJob, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+derivedJobColumns+` FROM derived_jobs WHERE id = ?`, id)
	j, err := scanDerivedJob(row)
	if err != nil {
		return nil, mapDBError(err, fmt.Sprintf("derived job %q", id))
	}
	return j, nil
}

// ListByGroup returns every job of group ordered by ID.
func (r *DerivedJobRepo) ListByGroup(ctx context.Context, group string) ([]domain.DerivedJob, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+derivedJobColumns+` FROM derived_jobs WHERE group_name = ? ORDER BY id`, group)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DerivedJob
	for rows.Next() {
		j, err := scanDerivedJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

// Upsert inserts the job or replaces every field of the job with the same
// ID. CreatedAt of an existing job is kept.
func (r *DerivedJobRepo) Upsert(ctx context.Context, j *domain.DerivedJob) (*domain.DerivedJob, error) {
	source, err := toJSON(j.Source, "{}")
	if err != nil {
		return nil, err
	}
	process, err := toJSON(j.Process, "[]")
	if err != nil {
		return nil, err
	}
	destination, err := toJSON(j.Destination, "{}")
	if err != nil {
		return nil, err
	}
	deps, err := toJSON(j.Dependencies, "{}")
	if err != nil {
		return nil, err
	}
	migDeps, err := toJSON(j.MigrationDependencies, "{}")
	if err != nil {
		return nil, err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO derived_jobs (id, group_name, template_id, request_id, label, source, process,
			destination, dependencies, migration_dependencies)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			group_name = excluded.group_name,
			template_id = excluded.template_id,
			request_id = excluded.request_id,
			label = excluded.label,
			source = excluded.source,
			process = excluded.process,
			destination = excluded.destination,
			dependencies = excluded.dependencies,
			migration_dependencies = excluded.migration_dependencies,
			updated_at = datetime('now')`,
		j.ID, j.Group, j.TemplateID, j.RequestID, j.Label, source, process,
		destination, deps, migDeps)
	if err != nil {
		return nil, mapDBError(err, fmt.Sprintf("derived job %q", j.ID))
	}
	return r.GetByID(ctx, j.ID)
}

// Delete removes a derived job by ID.
func (r *DerivedJobRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM derived_jobs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound("derived job %q not found", id)
	}
	return nil
}

func scanDerivedJob(s rowScanner) (*domain.DerivedJob, error) {
	var (
		j                                           domain.DerivedJob
		source, process, destination, deps, migDeps string
		createdAt, updatedAt                        string
	)
	if err := s.Scan(&j.ID, &j.Group, &j.TemplateID, &j.RequestID, &j.Label,
		&source, &process, &destination, &deps, &migDeps, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := fromJSON("source", source, &j.Source); err != nil {
		return nil, err
	}
	if err := fromJSON("process", process, &j.Process); err != nil {
		return nil, err
	}
	if err := fromJSON("destination", destination, &j.Destination); err != nil {
		return nil, err
	}
	if err := fromJSON("dependencies", deps, &j.Dependencies); err != nil {
		return nil, err
	}
	if err := fromJSON("migration_dependencies", migDeps, &j.MigrationDependencies); err != nil {
		return nil, err
	}
	if len(j.MigrationDependencies) == 0 {
		j.MigrationDependencies = nil
	}
	j.CreatedAt = parseTime(createdAt)
	j.UpdatedAt = parseTime(updatedAt)
	return &j, nil
}
