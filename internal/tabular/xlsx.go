package tabular

import (
	"fmt"
	"os"

	"github.com/xuri/excelize/v2"

	"isi-import/internal/domain"
)

// xlsxReader streams worksheets of an Office Open XML workbook.
type xlsxReader struct {
	path   string
	book   *excelize.File
	sheets []string
	active *xlsxRows
	closed bool
}

func openXLSX(path string) (*xlsxReader, error) {
	book, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &xlsxReader{path: path, book: book, sheets: book.GetSheetList()}, nil
}

func (r *xlsxReader) Sheets() []string {
	return append([]string(nil), r.sheets...)
}

func (r *xlsxReader) Header(sheet string, offset int) ([]string, error) {
	return readHeader(r, sheet, offset)
}

// Rows iterates the named sheet. An empty name selects the first sheet.
func (r *xlsxReader) Rows(sheet string) (RowIterator, error) {
	if r.closed {
		return nil, os.ErrClosed
	}
	if r.active != nil {
		return nil, errIterationInFlight
	}
	name, err := r.resolveSheet(sheet)
	if err != nil {
		return nil, err
	}
	rows, err := r.book.Rows(name)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q of %s: %w", name, r.path, err)
	}
	it := &xlsxRows{owner: r, rows: rows, index: -1}
	r.active = it
	return it, nil
}

func (r *xlsxReader) resolveSheet(sheet string) (string, error) {
	if sheet == "" {
		if len(r.sheets) == 0 {
			return "", &domain.SheetNotFoundError{Sheet: sheet}
		}
		return r.sheets[0], nil
	}
	for _, s := range r.sheets {
		if s == sheet {
			return s, nil
		}
	}
	return "", &domain.SheetNotFoundError{Sheet: sheet}
}

func (r *xlsxReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.active != nil {
		_ = r.active.Close()
	}
	return r.book.Close()
}

// xlsxRows yields blank worksheet rows as empty rows, so Index always equals
// the worksheet row number minus one.
type xlsxRows struct {
	owner  *xlsxReader
	rows   *excelize.Rows
	row    []string
	index  int
	err    error
	done   bool
	closed bool
}

func (it *xlsxRows) Next() bool {
	if it.done {
		return false
	}
	if !it.rows.Next() {
		it.done = true
		it.row = nil
		if err := it.rows.Error(); err != nil {
			it.err = fmt.Errorf("read %s: %w", it.owner.path, err)
		}
		return false
	}
	cols, err := it.rows.Columns()
	if err != nil {
		it.done = true
		it.err = fmt.Errorf("read %s: %w", it.owner.path, err)
		return false
	}
	it.index++
	it.row = cols
	return true
}

func (it *xlsxRows) Row() []string { return it.row }

func (it *xlsxRows) Index() int { return it.index }

func (it *xlsxRows) Err() error { return it.err }

func (it *xlsxRows) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	it.done = true
	if it.owner.active == it {
		it.owner.active = nil
	}
	return it.rows.Close()
}
