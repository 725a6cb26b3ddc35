package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"isi-import/internal/domain"
)

// sniffCandidates are the delimiters tried when none is configured, in
// tie-break order.
var sniffCandidates = []rune{',', ';', '\t', '|'}

// sniffLimit bounds the bytes read while sniffing.
const sniffLimit = 64 << 10

// errIterationInFlight is returned when Rows is called while a previous
// iteration of the same reader is still open.
var errIterationInFlight = errors.New("tabular: a row iteration is already in progress")

// delimitedReader reads CSV-like files. Delimited files have exactly one
// implicit sheet, addressed by the empty name.
type delimitedReader struct {
	path   string
	file   *os.File
	opts   Options
	comma  rune
	active *delimitedRows
	closed bool
}

func openDelimited(path string, o Options) (*delimitedReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	r := &delimitedReader{path: path, file: f, opts: o, comma: o.Delimiter}
	if r.comma == 0 {
		comma, err := r.sniff()
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		r.comma = comma
	}
	return r, nil
}

// decoded rewinds the file and returns a UTF-8 stream. A UTF-8 or UTF-16
// byte order mark selects the encoding and is stripped.
func (r *delimitedReader) decoded() (io.Reader, error) {
	if _, err := r.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind %s: %w", r.path, err)
	}
	return transform.NewReader(r.file, unicode.BOMOverride(unicode.UTF8.NewDecoder())), nil
}

// sniff parses the first record with every candidate delimiter and picks
// the one yielding the most fields. Parsing, rather than counting characters
// on the first line, keeps quoted cells that span lines intact.
func (r *delimitedReader) sniff() (rune, error) {
	best, bestFields := sniffCandidates[0], 0
	for _, c := range sniffCandidates {
		src, err := r.decoded()
		if err != nil {
			return 0, err
		}
		cr := csv.NewReader(io.LimitReader(src, sniffLimit))
		cr.Comma = c
		cr.LazyQuotes = true
		cr.FieldsPerRecord = -1
		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return best, nil
			}
			continue
		}
		if len(rec) > bestFields {
			best, bestFields = c, len(rec)
		}
	}
	return best, nil
}

// Sheets returns nil: delimited files have no sheets.
func (r *delimitedReader) Sheets() []string { return nil }

func (r *delimitedReader) Header(sheet string, offset int) ([]string, error) {
	return readHeader(r, sheet, offset)
}

func (r *delimitedReader) Rows(sheet string) (RowIterator, error) {
	if r.closed {
		return nil, os.ErrClosed
	}
	if sheet != "" {
		return nil, &domain.SheetNotFoundError{Sheet: sheet}
	}
	if r.active != nil {
		return nil, errIterationInFlight
	}
	src, err := r.decoded()
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(src)
	cr.Comma = r.comma
	cr.LazyQuotes = r.opts.LazyQuotes
	cr.FieldsPerRecord = -1

	it := &delimitedRows{owner: r, cr: cr, index: -1}
	r.active = it
	return it, nil
}

func (r *delimitedReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.active = nil
	return r.file.Close()
}

type delimitedRows struct {
	owner *delimitedReader
	cr    *csv.Reader
	row   []string
	index int
	err   error
	done  bool
}

func (it *delimitedRows) Next() bool {
	if it.done {
		return false
	}
	rec, err := it.cr.Read()
	if err != nil {
		it.done = true
		if !errors.Is(err, io.EOF) {
			it.err = fmt.Errorf("read %s: %w", it.owner.path, err)
		}
		it.row = nil
		return false
	}
	it.index++
	it.row = rec
	return true
}

func (it *delimitedRows) Row() []string { return it.row }

func (it *delimitedRows) Index() int { return it.index }

func (it *delimitedRows) Err() error { return it.err }

func (it *delimitedRows) Close() error {
	it.done = true
	if it.owner.active == it {
		it.owner.active = nil
	}
	return nil
}

// trimRow drops trailing empty cells.
func trimRow(row []string) []string {
	n := len(row)
	for n > 0 && strings.TrimSpace(row[n-1]) == "" {
		n--
	}
	return row[:n]
}
