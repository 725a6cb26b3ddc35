// Package mapping models the binding of destination fields to pipelines:
// a source value followed by ordered transformation steps.
package mapping

import (
	"strconv"
	"strings"

	"isi-import/internal/domain"
)

// Source categories group sources for display only.
const (
	CategorySpreadsheet    = "spreadsheet"
	CategorySystem         = "system"
	CategoryProcessedValue = "processed value"
)

// ReferencePrefix marks a source name as the output of another pipeline.
const ReferencePrefix = "@"

// Source is anything a pipeline can read its initial value from.
type Source interface {
	Name() string
	Category() string
	// StepRecord serializes the source as the pipeline's first step.
	StepRecord() (domain.StepRecord, error)
}

// ColumnSource reads a spreadsheet column.
type ColumnSource struct {
	Column string
}

// NewColumnSource validates a column name. Names starting with "@" are
// reserved for pipeline references.
func NewColumnSource(column string) (*ColumnSource, error) {
	if column == "" {
		return nil, domain.ErrValidation("column name is required")
	}
	if strings.HasPrefix(column, ReferencePrefix) {
		return nil, domain.ErrValidation("column name %q must not start with %q", column, ReferencePrefix)
	}
	return &ColumnSource{Column: column}, nil
}

func (s *ColumnSource) Name() string { return s.Column }

func (s *ColumnSource) Category() string { return CategorySpreadsheet }

func (s *ColumnSource) StepRecord() (domain.StepRecord, error) {
	return domain.StepRecord{"plugin": domain.PluginGet, "source": s.Column}, nil
}

// ConstantSource provides a fixed value. A nil Value is the "new default
// value" placeholder and cannot be serialized.
type ConstantSource struct {
	Value *string
}

// NewConstantSource returns a constant source holding value.
func NewConstantSource(value string) *ConstantSource {
	return &ConstantSource{Value: &value}
}

func (s *ConstantSource) Name() string {
	if s.Value == nil {
		return "(new default value)"
	}
	return strconv.Quote(*s.Value)
}

func (s *ConstantSource) Category() string { return CategorySystem }

func (s *ConstantSource) StepRecord() (domain.StepRecord, error) {
	if s.Value == nil {
		return nil, domain.ErrEmptyConstant
	}
	return domain.StepRecord{"plugin": domain.PluginDefaultValue, "default_value": *s.Value}, nil
}

// PipelineOutputSource reads the output of the pipeline bound to Destination.
type PipelineOutputSource struct {
	Destination string
}

func (s *PipelineOutputSource) Name() string { return ReferencePrefix + s.Destination }

func (s *PipelineOutputSource) Category() string { return CategoryProcessedValue }

func (s *PipelineOutputSource) StepRecord() (domain.StepRecord, error) {
	return domain.StepRecord{"plugin": domain.PluginGet, "source": s.Name()}, nil
}

// OpaqueStepSource is a first step that is not one of the known source
// forms. It is re-emitted verbatim.
type OpaqueStepSource struct {
	Record domain.StepRecord
}

func (s *OpaqueStepSource) Name() string { return s.Record.Plugin() }

func (s *OpaqueStepSource) Category() string { return CategorySystem }

func (s *OpaqueStepSource) StepRecord() (domain.StepRecord, error) {
	return s.Record.Clone(), nil
}

// referencedDestination reports which pipeline, if any, src reads from.
func referencedDestination(src Source) (string, bool) {
	switch s := src.(type) {
	case *Pipeline:
		return s.Destination, true
	case *PipelineOutputSource:
		return s.Destination, true
	default:
		return "", false
	}
}

// sourceFromRecord recognises the source forms of a first step.
func sourceFromRecord(rec domain.StepRecord) Source {
	switch rec.Plugin() {
	case domain.PluginGet:
		name, ok := rec["source"].(string)
		if !ok || len(rec) != 2 {
			break
		}
		if strings.HasPrefix(name, ReferencePrefix) {
			return &PipelineOutputSource{Destination: strings.TrimPrefix(name, ReferencePrefix)}
		}
		if name != "" {
			return &ColumnSource{Column: name}
		}
	case domain.PluginDefaultValue:
		v, ok := rec["default_value"].(string)
		if ok && len(rec) == 2 {
			return NewConstantSource(v)
		}
	}
	return &OpaqueStepSource{Record: rec.Clone()}
}
