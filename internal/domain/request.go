package domain

import (
	"strings"
	"time"
)

// ImportRequest is the object an operator edits: a tabular resource, the
// chosen job templates and the per-template mappings.
type ImportRequest struct {
	ID          string   `json:"id"`
	Label       string   `json:"label"`
	FileRef     string   `json:"file"`
	Sheet       string   `json:"sheet,omitempty"`
	HeaderRow   int      `json:"header_row"`
	Active      bool     `json:"active"`
	Enabled     bool     `json:"enabled"`
	Owner       string   `json:"owner"`
	TemplateIDs []string `json:"template_ids"`
	// Mappings holds the edited process per template ID. A template without
	// an entry compiles with its own process unchanged.
	Mappings  map[string][]FieldProcess `json:"mappings,omitempty"`
	CreatedAt time.Time                 `json:"created_at"`
	UpdatedAt time.Time                 `json:"updated_at"`
}

// DependencyKey is the dependency kind under which derived jobs depend on
// their request.
func (r *ImportRequest) DependencyKey() string { return "config" }

// DependencyName is the dependency name under which derived jobs depend on
// their request.
func (r *ImportRequest) DependencyName() string { return "isi.request." + r.ID }

// CreateImportRequest holds parameters for creating a request.
type CreateImportRequest struct {
	Label       string
	FileRef     string
	Sheet       string
	HeaderRow   int
	TemplateIDs []string
}

// Validate checks that the request is well-formed.
func (r *CreateImportRequest) Validate() error {
	if strings.TrimSpace(r.Label) == "" {
		return ErrValidation("label is required")
	}
	if r.FileRef == "" {
		return ErrValidation("file is required")
	}
	if r.HeaderRow < 0 {
		return ErrValidation("header_row must be non-negative")
	}
	if len(r.TemplateIDs) == 0 {
		return ErrValidation("at least one template is required")
	}
	seen := make(map[string]struct{}, len(r.TemplateIDs))
	for _, id := range r.TemplateIDs {
		if _, dup := seen[id]; dup {
			return ErrValidation("template %q selected twice", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// ImportRequestFilter holds filter parameters for listing requests.
type ImportRequestFilter struct {
	Owner  *string
	Active *bool
	Page   PageRequest
}
