// Package frame implements the small column-ordered table the pipeline is
// built on. Geography and label columns hold strings; every other column is
// float64 with NaN marking a missing value.
package frame

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// Frame is one in-memory table. Column order is significant: it determines
// output column order and diagnostic ordering.
type Frame struct {
	nrows int
	order []string
	str   map[string][]string
	num   map[string][]float64
}

// New creates an empty frame with a fixed row count.
func New(nrows int) *Frame {
	return &Frame{
		nrows: nrows,
		str:   make(map[string][]string),
		num:   make(map[string][]float64),
	}
}

// FromRows builds a frame of string columns from a header row and data rows.
func FromRows(header []string, rows [][]string) (*Frame, error) {
	f := New(len(rows))
	for i, name := range header {
		if name == "" {
			return nil, fmt.Errorf("empty name for column %d", i)
		}
		if f.Has(name) {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		col := make([]string, len(rows))
		for r, row := range rows {
			if len(row) != len(header) {
				return nil, fmt.Errorf("row %d has %d cells, header has %d", r, len(row), len(header))
			}
			col[r] = row[i]
		}
		f.order = append(f.order, name)
		f.str[name] = col
	}
	return f, nil
}

// NumRows returns the fixed row count.
func (f *Frame) NumRows() int { return f.nrows }

// Columns returns the column names in order.
func (f *Frame) Columns() []string {
	return slices.Clone(f.order)
}

// Has reports whether a column exists.
func (f *Frame) Has(name string) bool {
	_, s := f.str[name]
	_, n := f.num[name]
	return s || n
}

// Strings returns a string column. The slice is shared, not copied.
func (f *Frame) Strings(name string) ([]string, bool) {
	col, ok := f.str[name]
	return col, ok
}

// Floats returns a numeric column. The slice is shared, not copied.
func (f *Frame) Floats(name string) ([]float64, bool) {
	col, ok := f.num[name]
	return col, ok
}

// SetStrings adds or replaces a string column.
func (f *Frame) SetStrings(name string, vals []string) error {
	if len(vals) != f.nrows {
		return fmt.Errorf("column %q has %d values, frame has %d rows", name, len(vals), f.nrows)
	}
	if !f.Has(name) {
		f.order = append(f.order, name)
	}
	delete(f.num, name)
	f.str[name] = vals
	return nil
}

// SetFloats adds or replaces a numeric column.
func (f *Frame) SetFloats(name string, vals []float64) error {
	if len(vals) != f.nrows {
		return fmt.Errorf("column %q has %d values, frame has %d rows", name, len(vals), f.nrows)
	}
	if !f.Has(name) {
		f.order = append(f.order, name)
	}
	delete(f.str, name)
	f.num[name] = vals
	return nil
}

// Copy returns a deep copy.
func (f *Frame) Copy() *Frame {
	out := New(f.nrows)
	out.order = slices.Clone(f.order)
	for name, col := range f.str {
		out.str[name] = slices.Clone(col)
	}
	for name, col := range f.num {
		out.num[name] = slices.Clone(col)
	}
	return out
}

// Reorder moves the listed columns to the front in the given order. Columns
// not present in the frame are skipped; all other columns keep their
// relative order.
func (f *Frame) Reorder(first []string) {
	front := make([]string, 0, len(first))
	lead := make(map[string]bool, len(first))
	for _, name := range first {
		if f.Has(name) && !lead[name] {
			front = append(front, name)
			lead[name] = true
		}
	}
	rest := make([]string, 0, len(f.order))
	for _, name := range f.order {
		if !lead[name] {
			rest = append(rest, name)
		}
	}
	f.order = append(front, rest...)
}

// keyAt joins the key column values of one row into a single comparable
// string. Key columns must be string columns.
func (f *Frame) keyAt(keys []string, row int) (string, error) {
	parts := make([]string, len(keys))
	for i, name := range keys {
		col, ok := f.str[name]
		if !ok {
			return "", fmt.Errorf("geography key column %q not found", name)
		}
		parts[i] = col[row]
	}
	return strings.Join(parts, "\x1f"), nil
}

// missing returns an all-NaN column.
func missing(n int) []float64 {
	col := make([]float64, n)
	for i := range col {
		col[i] = math.NaN()
	}
	return col
}
