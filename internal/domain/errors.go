// Package domain defines core types, interfaces, and errors for the import compiler.
package domain

import (
	"errors"
	"fmt"
)

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates a conflict (e.g., duplicate resource).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// === Tabular input errors ===

// UnsupportedFormatError is returned when a file extension has no reader.
type UnsupportedFormatError struct {
	Path      string
	Extension string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported file format %q: %s", e.Extension, e.Path)
}

// HeaderNotFoundError is returned when a sheet has fewer than offset+1 rows.
type HeaderNotFoundError struct {
	Sheet  string
	Offset int
}

func (e *HeaderNotFoundError) Error() string {
	if e.Sheet == "" {
		return fmt.Sprintf("header row %d not found", e.Offset)
	}
	return fmt.Sprintf("header row %d not found in sheet %q", e.Offset, e.Sheet)
}

// SheetNotFoundError is returned when a sheet lookup by name finds nothing.
type SheetNotFoundError struct {
	Sheet string
}

func (e *SheetNotFoundError) Error() string {
	return fmt.Sprintf("sheet %q not found", e.Sheet)
}

// FileNotLocalError is returned when a file reference cannot be turned into
// a readable local path.
type FileNotLocalError struct {
	Ref    string
	Reason string
}

func (e *FileNotLocalError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("file %q is not available locally", e.Ref)
	}
	return fmt.Sprintf("file %q is not available locally: %s", e.Ref, e.Reason)
}

// === Mapping integrity errors ===

// DuplicateDestinationError is returned when a destination field is already bound.
type DuplicateDestinationError struct {
	Destination string
}

func (e *DuplicateDestinationError) Error() string {
	return fmt.Sprintf("destination %q is already mapped", e.Destination)
}

// UnknownDestinationError is returned when a destination field is not a
// property of the template's destination.
type UnknownDestinationError struct {
	Destination string
}

func (e *UnknownDestinationError) Error() string {
	return fmt.Sprintf("destination %q is not a known property", e.Destination)
}

// DanglingReferenceError is returned when removing a mapping would leave
// another mapping reading from it.
type DanglingReferenceError struct {
	Dependent string
	DependsOn string
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("mapping %q uses the output of %q; remove it as well", e.Dependent, e.DependsOn)
}

// SelfReferenceError is returned when a pipeline would read its own output.
type SelfReferenceError struct {
	Destination string
}

func (e *SelfReferenceError) Error() string {
	return fmt.Sprintf("mapping %q cannot use its own output as source", e.Destination)
}

// ErrEmptyConstant is returned when a constant source without a value is serialized.
var ErrEmptyConstant = errors.New("constant source has no value")
