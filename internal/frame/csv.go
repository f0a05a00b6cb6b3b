package frame

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
)

// WriteCSV writes the frame with a header row. Missing numeric values are
// written as empty cells so they round-trip through ReadCSV plus
// CoerceNumeric.
func (f *Frame) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(f.order); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	record := make([]string, len(f.order))
	for r := 0; r < f.nrows; r++ {
		for i, name := range f.order {
			if col, ok := f.str[name]; ok {
				record[i] = col[r]
				continue
			}
			v := f.num[name][r]
			if math.IsNaN(v) {
				record[i] = ""
			} else {
				record[i] = strconv.FormatFloat(v, 'g', -1, 64)
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", r, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV reads a header row plus data rows into a frame of string columns.
// Callers apply CoerceNumeric with the same keep set used on live data.
func ReadCSV(r io.Reader) (*Frame, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv has no header row")
	}
	return FromRows(records[0], records[1:])
}
