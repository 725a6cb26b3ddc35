package domain

import "context"

// ImportRequestRepository provides CRUD operations for import requests.
type ImportRequestRepository interface {
	Create(ctx context.Context, r *ImportRequest) (*ImportRequest, error)
	GetByID(ctx context.Context, id string) (*ImportRequest, error)
	List(ctx context.Context, filter ImportRequestFilter) ([]ImportRequest, int64, error)
	Update(ctx context.Context, r *ImportRequest) (*ImportRequest, error)
	Delete(ctx context.Context, id string) error
}

// JobTemplateRepository provides access to job templates.
type JobTemplateRepository interface {
	GetByID(ctx context.Context, id string) (*JobTemplate, error)
	ListByGroup(ctx context.Context, group string) ([]JobTemplate, error)
	List(ctx context.Context) ([]JobTemplate, error)
	Upsert(ctx context.Context, t *JobTemplate) (*JobTemplate, error)
	Delete(ctx context.Context, id string) error
}

// DerivedJobRepository stores compiled jobs. GetByID is an exact match;
// ListByGroup returns every job tagged with the group.
type DerivedJobRepository interface {
	GetByID(ctx context.Context, id string) (*DerivedJob, error)
	ListByGroup(ctx context.Context, group string) ([]DerivedJob, error)
	Upsert(ctx context.Context, j *DerivedJob) (*DerivedJob, error)
	Delete(ctx context.Context, id string) error
}
