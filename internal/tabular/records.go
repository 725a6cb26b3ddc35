package tabular

// Record is one data row keyed by header column name.
type Record map[string]string

// RecordIterator frames the rows below a header row by its column names.
// Short rows yield "" for missing cells and cells beyond the header are
// dropped. When the header repeats a name, the last such column wins.
type RecordIterator struct {
	rows    RowIterator
	columns []string
	index   map[string]int
	offset  int
	rec     Record
}

// Records reads the header at offset and returns an iterator over the rows
// that follow it. The caller must Close the iterator.
func Records(r Reader, sheet string, offset int) (*RecordIterator, error) {
	header, err := r.Header(sheet, offset)
	if err != nil {
		return nil, err
	}
	it, err := r.Rows(sheet)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		if name == "" {
			continue
		}
		index[name] = i
	}
	return &RecordIterator{rows: it, columns: header, index: index, offset: offset}, nil
}

// Columns returns the header row the records are framed by.
func (it *RecordIterator) Columns() []string {
	return append([]string(nil), it.columns...)
}

// Next advances to the next data row.
func (it *RecordIterator) Next() bool {
	for it.rows.Next() {
		if it.rows.Index() <= it.offset {
			continue
		}
		row := it.rows.Row()
		rec := make(Record, len(it.index))
		for name, i := range it.index {
			if i < len(row) {
				rec[name] = row[i]
			} else {
				rec[name] = ""
			}
		}
		it.rec = rec
		return true
	}
	it.rec = nil
	return false
}

// Record returns the current record.
func (it *RecordIterator) Record() Record { return it.rec }

// Index returns the 0-based row index of the current record in its sheet.
func (it *RecordIterator) Index() int { return it.rows.Index() }

func (it *RecordIterator) Err() error { return it.rows.Err() }

func (it *RecordIterator) Close() error { return it.rows.Close() }
