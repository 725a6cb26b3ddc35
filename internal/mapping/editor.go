package mapping

import (
	"context"
	"fmt"

	"isi-import/internal/domain"
)

// Editor holds the ordered pipelines of one job template while an operator
// edits them. Every operation either applies completely or leaves the
// collection unchanged.
type Editor struct {
	known     map[string]struct{}
	pipelines []*Pipeline
}

// NewEditor returns an editor whose destinations are validated against the
// properties the schema reports for tpl's destination.
func NewEditor(ctx context.Context, tpl *domain.JobTemplate, schema domain.SchemaIntrospector) (*Editor, error) {
	props, err := schema.DestinationProperties(ctx, tpl.DestinationPlugin())
	if err != nil {
		return nil, fmt.Errorf("destination properties of %q: %w", tpl.ID, err)
	}
	return NewEditorWithProperties(props), nil
}

// NewEditorWithProperties returns an empty editor accepting the given
// destination properties.
func NewEditorWithProperties(properties []string) *Editor {
	known := make(map[string]struct{}, len(properties))
	for _, p := range properties {
		known[p] = struct{}{}
	}
	return &Editor{known: known}
}

// Pipelines returns the pipelines in order.
func (e *Editor) Pipelines() []*Pipeline {
	return append([]*Pipeline(nil), e.pipelines...)
}

// Pipeline looks up the pipeline bound to destination.
func (e *Editor) Pipeline(destination string) (*Pipeline, bool) {
	i := e.indexOf(destination)
	if i < 0 {
		return nil, false
	}
	return e.pipelines[i], true
}

func (e *Editor) indexOf(destination string) int {
	for i, p := range e.pipelines {
		if p.Destination == destination {
			return i
		}
	}
	return -1
}

// EnumerateSources builds the source catalog for the given header columns
// and the pipelines defined so far.
func (e *Editor) EnumerateSources(columns []string) *SourceSet {
	return BuildSourceSet(columns, e.pipelines)
}

// AddMapping binds a new pipeline reading src to destination and appends it.
func (e *Editor) AddMapping(src Source, destination string) (*Pipeline, error) {
	if e.indexOf(destination) >= 0 {
		return nil, &domain.DuplicateDestinationError{Destination: destination}
	}
	if _, ok := e.known[destination]; !ok {
		return nil, &domain.UnknownDestinationError{Destination: destination}
	}
	p, err := NewPipeline(destination, src)
	if err != nil {
		return nil, err
	}
	if ref, ok := p.References(); ok && e.indexOf(ref) < 0 {
		return nil, &domain.DanglingReferenceError{Dependent: destination, DependsOn: ref}
	}
	e.pipelines = append(e.pipelines, p)
	return p, nil
}

// AppendStep adds a step to the pipeline bound to destination.
func (e *Editor) AppendStep(destination string, s Step) error {
	p, ok := e.Pipeline(destination)
	if !ok {
		return domain.ErrNotFound("mapping %q not found", destination)
	}
	p.AppendStep(s)
	return nil
}

// RemoveMappings removes the named pipelines. It fails without removing
// anything when a remaining pipeline reads from a removed one; removing a
// whole dependent chain in one call is allowed.
func (e *Editor) RemoveMappings(destinations ...string) error {
	drop := make(map[string]struct{}, len(destinations))
	for _, d := range destinations {
		if e.indexOf(d) < 0 {
			return domain.ErrNotFound("mapping %q not found", d)
		}
		drop[d] = struct{}{}
	}

	remaining := make([]*Pipeline, 0, len(e.pipelines))
	kept := make(map[string]struct{}, len(e.pipelines))
	for _, p := range e.pipelines {
		if _, ok := drop[p.Destination]; !ok {
			remaining = append(remaining, p)
			kept[p.Destination] = struct{}{}
		}
	}
	for _, p := range remaining {
		ref, ok := p.References()
		if !ok {
			continue
		}
		if _, ok := kept[ref]; !ok {
			return &domain.DanglingReferenceError{Dependent: p.Destination, DependsOn: ref}
		}
	}

	e.pipelines = remaining
	return nil
}

// Move places the pipeline bound to destination at index. A pipeline may
// not be moved before a pipeline it reads from, nor after one reading it.
func (e *Editor) Move(destination string, index int) error {
	from := e.indexOf(destination)
	if from < 0 {
		return domain.ErrNotFound("mapping %q not found", destination)
	}
	if index < 0 || index >= len(e.pipelines) {
		return domain.ErrValidation("position %d out of range", index)
	}

	next := make([]*Pipeline, 0, len(e.pipelines))
	moved := e.pipelines[from]
	for i, p := range e.pipelines {
		if i != from {
			next = append(next, p)
		}
	}
	next = append(next[:index], append([]*Pipeline{moved}, next[index:]...)...)

	if err := checkOrder(next); err != nil {
		return err
	}
	e.pipelines = next
	return nil
}

// Process serializes every pipeline in order.
func (e *Editor) Process() ([]domain.FieldProcess, error) {
	out := make([]domain.FieldProcess, 0, len(e.pipelines))
	for _, p := range e.pipelines {
		fp, err := p.FieldProcess()
		if err != nil {
			return nil, err
		}
		out = append(out, fp)
	}
	return out, nil
}

// LoadProcess replaces the collection with the deserialized process. The
// same integrity rules as AddMapping apply to every entry.
func (e *Editor) LoadProcess(process []domain.FieldProcess) error {
	loaded := make([]*Pipeline, 0, len(process))
	seen := make(map[string]struct{}, len(process))
	for _, fp := range process {
		if _, dup := seen[fp.Field]; dup {
			return &domain.DuplicateDestinationError{Destination: fp.Field}
		}
		if _, ok := e.known[fp.Field]; !ok {
			return &domain.UnknownDestinationError{Destination: fp.Field}
		}
		p, err := DeserializePipeline(fp.Field, fp.Steps)
		if err != nil {
			return err
		}
		p.Weight = fp.Weight
		seen[fp.Field] = struct{}{}
		loaded = append(loaded, p)
	}
	if err := checkOrder(loaded); err != nil {
		return err
	}
	e.pipelines = loaded
	return nil
}

// checkOrder verifies every pipeline reads only from pipelines placed
// before it, which also rules out cycles.
func checkOrder(pipelines []*Pipeline) error {
	pos := make(map[string]int, len(pipelines))
	for i, p := range pipelines {
		pos[p.Destination] = i
	}
	for i, p := range pipelines {
		ref, ok := p.References()
		if !ok {
			continue
		}
		j, exists := pos[ref]
		if !exists {
			return &domain.DanglingReferenceError{Dependent: p.Destination, DependsOn: ref}
		}
		if j > i {
			return domain.ErrValidation("mapping %q reads %q, which is mapped after it", p.Destination, ref)
		}
	}
	return nil
}
