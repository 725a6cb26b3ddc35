// Package tabular presents spreadsheets and delimited files as sheets of
// string rows that are read lazily, one row at a time.
package tabular

import (
	"path/filepath"
	"strings"

	"isi-import/internal/domain"
)

// Reader is an open tabular resource. A Reader owns one file handle and is
// not safe for concurrent use; open a second Reader instead of sharing one.
type Reader interface {
	// Sheets lists the sheet names, or nil when the format has no sheets.
	Sheets() []string
	// Header returns the row at offset of the given sheet.
	Header(sheet string, offset int) ([]string, error)
	// Rows starts a single-pass iteration over the sheet. Only one
	// iteration per Reader may be in flight.
	Rows(sheet string) (RowIterator, error)
	// Close releases the underlying file.
	Close() error
}

// RowIterator is a lazy, finite, single-pass sequence of rows.
//
//	it, err := r.Rows(sheet)
//	...
//	defer it.Close()
//	for it.Next() {
//		row := it.Row()
//	}
//	if err := it.Err(); err != nil { ... }
type RowIterator interface {
	Next() bool
	// Row returns the current row. The slice is owned by the caller.
	Row() []string
	// Index returns the 0-based ordinal of the current row in its sheet.
	Index() int
	Err() error
	Close() error
}

// Format identifies a reader implementation.
type Format string

const (
	FormatDelimited Format = "delimited"
	FormatXLSX      Format = "xlsx"
)

var formatsByExt = map[string]Format{
	".csv":  FormatDelimited,
	".tsv":  FormatDelimited,
	".txt":  FormatDelimited,
	".xlsx": FormatXLSX,
	".xlsm": FormatXLSX,
	".xltx": FormatXLSX,
	".xltm": FormatXLSX,
}

// Options tune how files are parsed.
type Options struct {
	// Delimiter overrides delimiter sniffing for delimited files.
	Delimiter rune
	// LazyQuotes allows stray quotes in delimited files.
	LazyQuotes bool
}

// Option mutates Options.
type Option func(*Options)

// WithDelimiter fixes the delimiter of delimited files.
func WithDelimiter(r rune) Option {
	return func(o *Options) { o.Delimiter = r }
}

// WithLazyQuotes relaxes quote handling of delimited files.
func WithLazyQuotes() Option {
	return func(o *Options) { o.LazyQuotes = true }
}

// DetectFormat maps a file name to its format by extension.
func DetectFormat(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	f, ok := formatsByExt[ext]
	if !ok {
		return "", &domain.UnsupportedFormatError{Path: path, Extension: ext}
	}
	return f, nil
}

// Open opens the file at path with the reader matching its extension.
func Open(path string, opts ...Option) (Reader, error) {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}

	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	if format == FormatXLSX {
		r, err := openXLSX(path)
		if err != nil {
			return nil, err
		}
		return r, nil
	}

	if o.Delimiter == 0 && strings.EqualFold(filepath.Ext(path), ".tsv") {
		o.Delimiter = '\t'
	}
	r, err := openDelimited(path, o)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// readHeader pulls rows until offset and returns that row.
func readHeader(r Reader, sheet string, offset int) ([]string, error) {
	if offset < 0 {
		return nil, domain.ErrValidation("header offset must be non-negative")
	}
	it, err := r.Rows(sheet)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	for it.Next() {
		if it.Index() == offset {
			return cleanHeader(trimRow(it.Row())), nil
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return nil, &domain.HeaderNotFoundError{Sheet: sheet, Offset: offset}
}

func cleanHeader(row []string) []string {
	out := make([]string, len(row))
	for i, h := range row {
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		out[i] = strings.TrimSpace(h)
	}
	return out
}

// Window returns at most limit rows starting at row index start. Rows past
// the window are never read.
func Window(r Reader, sheet string, start, limit int) ([][]string, error) {
	if start < 0 || limit < 0 {
		return nil, domain.ErrValidation("window bounds must be non-negative")
	}
	it, err := r.Rows(sheet)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	out := make([][]string, 0, limit)
	for len(out) < limit && it.Next() {
		if it.Index() < start {
			continue
		}
		out = append(out, it.Row())
	}
	return out, it.Err()
}
