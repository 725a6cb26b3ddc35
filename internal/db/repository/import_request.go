package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"isi-import/internal/domain"
)

var _ domain.ImportRequestRepository = (*ImportRequestRepo)(nil)

const importRequestColumns = `id, label, file_ref, sheet, header_row, active, enabled, owner,
	template_ids, mappings, created_at, updated_at`

// ImportRequestRepo implements domain.ImportRequestRepository.
type ImportRequestRepo struct {
	db *sql.DB
}

// NewImportRequestRepo creates a new ImportRequestRepo.
func NewImportRequestRepo(db *sql.DB) *ImportRequestRepo {
	return &ImportRequestRepo{db: db}
}

// Create inserts a new request. An empty ID is replaced by a fresh one.
func (r *ImportRequestRepo) Create(ctx context.Context, req *domain.ImportRequest) (*domain.ImportRequest, error) {
	id := req.ID
	if id == "" {
		id = domain.NewID()
	}
	templateIDs, mappings, err := encodeRequest(req)
	if err != nil {
		return nil, err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO import_requests (id, label, file_ref, sheet, header_row, active, enabled, owner, template_ids, mappings)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, req.Label, req.FileRef, req.Sheet, req.HeaderRow, boolToInt(req.Active), boolToInt(req.Enabled),
		req.Owner, templateIDs, mappings)
	if err != nil {
		return nil, mapDBError(err, fmt.Sprintf("import request %q", id))
	}
	return r.GetByID(ctx, id)
}

// GetByID returns a request by ID.
func (r *ImportRequestRepo) GetByID(ctx context.Context, id string) (*domain.ImportRequest, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+importRequestColumns+` FROM import_requests WHERE id = ?`, id)
	req, err := scanImportRequest(row)
	if err != nil {
		return nil, mapDBError(err, fmt.Sprintf("import request %q", id))
	}
	return req, nil
}

// List returns a page of requests matching filter, oldest first, and the
// total number of matches.
func (r *ImportRequestRepo) List(ctx context.Context, filter domain.ImportRequestFilter) ([]domain.ImportRequest, int64, error) {
	var (
		where []string
		args  []any
	)
	if filter.Owner != nil {
		where = append(where, "owner = ?")
		args = append(args, *filter.Owner)
	}
	if filter.Active != nil {
		where = append(where, "active = ?")
		args = append(args, boolToInt(*filter.Active))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM import_requests`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	pageArgs := append(append([]any(nil), args...), filter.Page.Limit(), filter.Page.Offset())
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+importRequestColumns+` FROM import_requests`+clause+` ORDER BY created_at, id LIMIT ? OFFSET ?`,
		pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []domain.ImportRequest
	for rows.Next() {
		req, err := scanImportRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *req)
	}
	return out, total, rows.Err()
}

// Update stores every mutable field of req.
func (r *ImportRequestRepo) Update(ctx context.Context, req *domain.ImportRequest) (*domain.ImportRequest, error) {
	templateIDs, mappings, err := encodeRequest(req)
	if err != nil {
		return nil, err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE import_requests SET
			label = ?, file_ref = ?, sheet = ?, header_row = ?, active = ?, enabled = ?,
			owner = ?, template_ids = ?, mappings = ?, updated_at = datetime('now')
		WHERE id = ?`,
		req.Label, req.FileRef, req.Sheet, req.HeaderRow, boolToInt(req.Active), boolToInt(req.Enabled),
		req.Owner, templateIDs, mappings, req.ID)
	if err != nil {
		return nil, mapDBError(err, fmt.Sprintf("import request %q", req.ID))
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, domain.ErrNotFound("import request %q not found", req.ID)
	}
	return r.GetByID(ctx, req.ID)
}

// Delete removes a request by ID.
func (r *ImportRequestRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM import_requests WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return domain.ErrNotFound("import request %q not found", id)
	}
	return nil
}

func encodeRequest(req *domain.ImportRequest) (templateIDs, mappings string, err error) {
	if templateIDs, err = toJSON(req.TemplateIDs, "[]"); err != nil {
		return "", "", err
	}
	if mappings, err = toJSON(req.Mappings, "{}"); err != nil {
		return "", "", err
	}
	return templateIDs, mappings, nil
}

func scanImportRequest(s rowScanner) (*domain.ImportRequest, error) {
	var (
		req                   domain.ImportRequest
		active, enabled       int64
		templateIDs, mappings string
		createdAt, updatedAt  string
	)
	if err := s.Scan(&req.ID, &req.Label, &req.FileRef, &req.Sheet, &req.HeaderRow, &active, &enabled,
		&req.Owner, &templateIDs, &mappings, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	req.Active = active != 0
	req.Enabled = enabled != 0
	if err := fromJSON("template_ids", templateIDs, &req.TemplateIDs); err != nil {
		return nil, err
	}
	if err := fromJSON("mappings", mappings, &req.Mappings); err != nil {
		return nil, err
	}
	req.CreatedAt = parseTime(createdAt)
	req.UpdatedAt = parseTime(updatedAt)
	return &req, nil
}
