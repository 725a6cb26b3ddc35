package domain

import (
	"encoding/json"
	"reflect"
	"time"
)

// Well-known step plugin identifiers.
const (
	PluginGet             = "get"
	PluginDefaultValue    = "default_value"
	PluginMigrationLookup = "migration_lookup"
)

// SourcePluginSpreadsheet is the source plugin of every derived job.
const SourcePluginSpreadsheet = "spreadsheet"

// StepRecord is the canonical serialization of one pipeline step:
// a "plugin" key plus plugin-specific parameters.
type StepRecord map[string]any

// Plugin returns the step's plugin identifier, or "" if missing.
func (r StepRecord) Plugin() string {
	p, _ := r["plugin"].(string)
	return p
}

// String returns the string value stored under key, or "".
func (r StepRecord) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Equal reports whether two records are structurally identical.
func (r StepRecord) Equal(other StepRecord) bool {
	return reflect.DeepEqual(normalize(r), normalize(other))
}

// Clone returns a deep copy of the record.
func (r StepRecord) Clone() StepRecord {
	if r == nil {
		return nil
	}
	out, _ := deepCopy(map[string]any(r)).(map[string]any)
	return StepRecord(out)
}

// normalize round-trips through JSON so that []string and []any compare equal.
func normalize(r StepRecord) any {
	b, err := json.Marshal(r)
	if err != nil {
		return r
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return r
	}
	return v
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = deepCopy(val)
		}
		return m
	case StepRecord:
		return StepRecord(deepCopy(map[string]any(t)).(map[string]any))
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = deepCopy(val)
		}
		return s
	case []string:
		return append([]string(nil), t...)
	case map[string][]string:
		m := make(map[string][]string, len(t))
		for k, val := range t {
			m[k] = append([]string(nil), val...)
		}
		return m
	default:
		return v
	}
}

// FieldProcess binds one destination field to its serialized pipeline.
type FieldProcess struct {
	Field  string       `json:"field" yaml:"field"`
	Weight int          `json:"weight" yaml:"weight"`
	Steps  []StepRecord `json:"steps" yaml:"steps"`
}

// CloneProcess deep-copies an ordered process list.
func CloneProcess(in []FieldProcess) []FieldProcess {
	if in == nil {
		return nil
	}
	out := make([]FieldProcess, len(in))
	for i, fp := range in {
		steps := make([]StepRecord, len(fp.Steps))
		for j, s := range fp.Steps {
			steps[j] = s.Clone()
		}
		out[i] = FieldProcess{Field: fp.Field, Weight: fp.Weight, Steps: steps}
	}
	return out
}

// Dependencies holds declared and enforced dependencies of a job.
// Keys of Enforced are dependency kinds such as "config" or "module".
type Dependencies struct {
	Enforced map[string][]string `json:"enforced,omitempty" yaml:"enforced,omitempty"`
	Module   []string            `json:"module,omitempty" yaml:"module,omitempty"`
	Config   []string            `json:"config,omitempty" yaml:"config,omitempty"`
}

// Clone returns a deep copy.
func (d Dependencies) Clone() Dependencies {
	out := Dependencies{
		Module: append([]string(nil), d.Module...),
		Config: append([]string(nil), d.Config...),
	}
	if d.Enforced != nil {
		out.Enforced = deepCopy(d.Enforced).(map[string][]string)
	}
	return out
}

// JobTemplate is a predefined, schema-bound set of destination-field
// pipelines awaiting a concrete tabular source.
type JobTemplate struct {
	ID                    string              `json:"id" yaml:"id"`
	Group                 string              `json:"group" yaml:"group"`
	Label                 string              `json:"label" yaml:"label"`
	Destination           map[string]any      `json:"destination" yaml:"destination"`
	Process               []FieldProcess      `json:"process" yaml:"process"`
	Dependencies          Dependencies        `json:"dependencies" yaml:"dependencies"`
	MigrationDependencies map[string][]string `json:"migration_dependencies,omitempty" yaml:"migration_dependencies,omitempty"`
	CreatedAt             time.Time           `json:"created_at" yaml:"-"`
	UpdatedAt             time.Time           `json:"updated_at" yaml:"-"`
}

// DestinationPlugin returns the destination identity used for schema lookup.
func (t *JobTemplate) DestinationPlugin() string {
	p, _ := t.Destination["plugin"].(string)
	return p
}

// Validate checks that the template is well-formed.
func (t *JobTemplate) Validate() error {
	if t.ID == "" {
		return ErrValidation("template id is required")
	}
	if t.Group == "" {
		return ErrValidation("template %q: group is required", t.ID)
	}
	if t.DestinationPlugin() == "" {
		return ErrValidation("template %q: destination plugin is required", t.ID)
	}
	seen := make(map[string]struct{}, len(t.Process))
	for _, fp := range t.Process {
		if fp.Field == "" {
			return ErrValidation("template %q: process field name is required", t.ID)
		}
		if _, dup := seen[fp.Field]; dup {
			return ErrValidation("template %q: field %q mapped twice", t.ID, fp.Field)
		}
		seen[fp.Field] = struct{}{}
	}
	return nil
}

// DerivedJobSource is the source section of a derived job.
type DerivedJobSource struct {
	Plugin    string   `json:"plugin"`
	FileRef   string   `json:"file"`
	Sheet     string   `json:"worksheet,omitempty"`
	HeaderRow int      `json:"header_row"`
	Columns   []string `json:"columns"`
}

// DerivedJob is the request-scoped, executable compilation of a job template.
type DerivedJob struct {
	ID                    string              `json:"id"`
	Group                 string              `json:"group"`
	TemplateID            string              `json:"template_id"`
	RequestID             string              `json:"request_id"`
	Label                 string              `json:"label"`
	Source                DerivedJobSource    `json:"source"`
	Process               []FieldProcess      `json:"process"`
	Destination           map[string]any      `json:"destination"`
	Dependencies          Dependencies        `json:"dependencies"`
	MigrationDependencies map[string][]string `json:"migration_dependencies,omitempty"`
	CreatedAt             time.Time           `json:"created_at"`
	UpdatedAt             time.Time           `json:"updated_at"`
}

// ProcessMap returns the process keyed by destination field.
func (j *DerivedJob) ProcessMap() map[string][]StepRecord {
	out := make(map[string][]StepRecord, len(j.Process))
	for _, fp := range j.Process {
		out[fp.Field] = fp.Steps
	}
	return out
}
