// Package schema reads the destination schema file that lists the
// properties each destination plugin accepts.
package schema

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"isi-import/internal/domain"
)

// SupportedAPIVersion is the apiVersion accepted in schema documents.
const SupportedAPIVersion = "isi-import/v1"

// KindDestinationSchema is the document kind of a schema file.
const KindDestinationSchema = "DestinationSchema"

var _ domain.SchemaIntrospector = (*YAMLIntrospector)(nil)

// Document is the on-disk layout of a schema file.
type Document struct {
	APIVersion   string        `yaml:"apiVersion"`
	Kind         string        `yaml:"kind"`
	Destinations []Destination `yaml:"destinations"`
}

// Destination lists the properties of one destination plugin.
type Destination struct {
	Plugin     string   `yaml:"plugin"`
	Properties []string `yaml:"properties"`
}

// YAMLIntrospector implements domain.SchemaIntrospector from a schema document.
type YAMLIntrospector struct {
	properties map[string][]string
}

// LoadFile reads and parses the schema file at path.
func LoadFile(path string) (*YAMLIntrospector, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes a schema document. Unknown fields are rejected.
func Parse(data []byte) (*YAMLIntrospector, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	if doc.APIVersion != SupportedAPIVersion {
		return nil, fmt.Errorf("unsupported apiVersion %q (expected %q)", doc.APIVersion, SupportedAPIVersion)
	}
	if doc.Kind != KindDestinationSchema {
		return nil, fmt.Errorf("unexpected kind %q (expected %q)", doc.Kind, KindDestinationSchema)
	}

	props := make(map[string][]string, len(doc.Destinations))
	for i, d := range doc.Destinations {
		if d.Plugin == "" {
			return nil, fmt.Errorf("destinations[%d]: plugin is required", i)
		}
		if _, dup := props[d.Plugin]; dup {
			return nil, fmt.Errorf("destination %q declared twice", d.Plugin)
		}
		seen := make(map[string]struct{}, len(d.Properties))
		list := make([]string, 0, len(d.Properties))
		for _, p := range d.Properties {
			if p == "" {
				return nil, fmt.Errorf("destination %q: empty property name", d.Plugin)
			}
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			list = append(list, p)
		}
		sort.Strings(list)
		props[d.Plugin] = list
	}
	return &YAMLIntrospector{properties: props}, nil
}

// DestinationProperties returns the sorted property names of destination.
func (s *YAMLIntrospector) DestinationProperties(_ context.Context, destination string) ([]string, error) {
	props, ok := s.properties[destination]
	if !ok {
		return nil, domain.ErrNotFound("destination %q not found in schema", destination)
	}
	return append([]string(nil), props...), nil
}

// Destinations returns the known destination plugins, sorted.
func (s *YAMLIntrospector) Destinations() []string {
	out := make([]string, 0, len(s.properties))
	for d := range s.properties {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Empty returns an introspector that knows no destinations.
func Empty() *YAMLIntrospector {
	return &YAMLIntrospector{properties: map[string][]string{}}
}
