package mapping

import (
	"fmt"

	"isi-import/internal/domain"
)

// Pipeline is one source plus ordered steps, bound to a destination field.
// A Pipeline is itself a Source named "@" + Destination, so later pipelines
// can read its output.
type Pipeline struct {
	Destination string
	Weight      int
	Source      Source
	Steps       []Step
}

// NewPipeline binds src to destination.
func NewPipeline(destination string, src Source) (*Pipeline, error) {
	if destination == "" {
		return nil, domain.ErrValidation("destination is required")
	}
	if src == nil {
		return nil, domain.ErrValidation("mapping %q: source is required", destination)
	}
	if ref, ok := referencedDestination(src); ok && ref == destination {
		return nil, &domain.SelfReferenceError{Destination: destination}
	}
	return &Pipeline{Destination: destination, Source: src}, nil
}

func (p *Pipeline) Name() string { return ReferencePrefix + p.Destination }

func (p *Pipeline) Category() string { return CategoryProcessedValue }

// StepRecord reads this pipeline's output from another pipeline.
func (p *Pipeline) StepRecord() (domain.StepRecord, error) {
	return (&PipelineOutputSource{Destination: p.Destination}).StepRecord()
}

// AppendStep adds a step after the existing ones.
func (p *Pipeline) AppendStep(s Step) {
	p.Steps = append(p.Steps, s)
}

// References returns the destination this pipeline's source reads from.
func (p *Pipeline) References() (string, bool) {
	return referencedDestination(p.Source)
}

// Serialize returns [source record, step records...]. A step whose record is
// identical to the source record is skipped.
func (p *Pipeline) Serialize() ([]domain.StepRecord, error) {
	first, err := p.Source.StepRecord()
	if err != nil {
		return nil, fmt.Errorf("mapping %q: %w", p.Destination, err)
	}
	out := make([]domain.StepRecord, 0, len(p.Steps)+1)
	out = append(out, first)
	for _, s := range p.Steps {
		rec := s.StepRecord()
		if rec.Equal(first) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// FieldProcess serializes the pipeline with its destination and weight.
func (p *Pipeline) FieldProcess() (domain.FieldProcess, error) {
	steps, err := p.Serialize()
	if err != nil {
		return domain.FieldProcess{}, err
	}
	return domain.FieldProcess{Field: p.Destination, Weight: p.Weight, Steps: steps}, nil
}

// DeserializePipeline rebuilds a pipeline from its serialized steps using
// the default registry.
func DeserializePipeline(destination string, records []domain.StepRecord) (*Pipeline, error) {
	return DeserializePipelineWith(DefaultRegistry, destination, records)
}

// DeserializePipelineWith rebuilds a pipeline using reg to type the steps.
func DeserializePipelineWith(reg *Registry, destination string, records []domain.StepRecord) (*Pipeline, error) {
	if len(records) == 0 {
		return nil, domain.ErrValidation("mapping %q has no steps", destination)
	}
	if records[0].Plugin() == "" {
		return nil, domain.ErrValidation("mapping %q: step 0 has no plugin", destination)
	}
	p, err := NewPipeline(destination, sourceFromRecord(records[0]))
	if err != nil {
		return nil, err
	}
	for i, rec := range records[1:] {
		s, err := reg.Parse(rec)
		if err != nil {
			return nil, fmt.Errorf("mapping %q: step %d: %w", destination, i+1, err)
		}
		p.AppendStep(s)
	}
	return p, nil
}
