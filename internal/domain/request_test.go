package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateImportRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateImportRequest
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid",
			req: CreateImportRequest{
				Label:       "Spring catalogue",
				FileRef:     "uploads/spring.xlsx",
				Sheet:       "Items",
				TemplateIDs: []string{"isi_file", "isi_media_image"},
			},
		},
		{
			name:    "missing label",
			req:     CreateImportRequest{FileRef: "a.csv", TemplateIDs: []string{"t"}},
			wantErr: true,
			errMsg:  "label is required",
		},
		{
			name:    "blank label",
			req:     CreateImportRequest{Label: "  ", FileRef: "a.csv", TemplateIDs: []string{"t"}},
			wantErr: true,
			errMsg:  "label is required",
		},
		{
			name:    "missing file",
			req:     CreateImportRequest{Label: "x", TemplateIDs: []string{"t"}},
			wantErr: true,
			errMsg:  "file is required",
		},
		{
			name:    "negative header row",
			req:     CreateImportRequest{Label: "x", FileRef: "a.csv", HeaderRow: -1, TemplateIDs: []string{"t"}},
			wantErr: true,
			errMsg:  "header_row must be non-negative",
		},
		{
			name:    "no templates",
			req:     CreateImportRequest{Label: "x", FileRef: "a.csv"},
			wantErr: true,
			errMsg:  "at least one template is required",
		},
		{
			name:    "duplicate template",
			req:     CreateImportRequest{Label: "x", FileRef: "a.csv", TemplateIDs: []string{"t", "t"}},
			wantErr: true,
			errMsg:  `template "t" selected twice`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				require.Error(t, err)
				var valErr *ValidationError
				require.ErrorAs(t, err, &valErr)
				assert.Contains(t, valErr.Message, tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestGroupName(t *testing.T) {
	req := &ImportRequest{ID: "42"}

	first := GroupName(req)
	req.Label = "changed"
	req.Active = true
	second := GroupName(req)

	assert.Equal(t, "isi_request__42", first)
	assert.Equal(t, first, second)
	assert.Equal(t, "isi_request__42_isi_file", DerivedJobID(req, "isi_file"))
	assert.NotEqual(t, GroupName(&ImportRequest{ID: "4"}), GroupName(&ImportRequest{ID: "42"}))
}

func TestImportRequest_Dependency(t *testing.T) {
	req := &ImportRequest{ID: "7"}
	assert.Equal(t, "config", req.DependencyKey())
	assert.Equal(t, "isi.request.7", req.DependencyName())
}
