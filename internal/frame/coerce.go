package frame

import (
	"math"
	"strconv"
	"strings"
)

// The remote source reports "no data" as large-magnitude negative integers.
// Both map to missing on ingestion, live or cached.
var sentinels = map[float64]struct{}{
	-666666666: {},
	-999999999: {},
}

// CoerceNumeric converts every string column not listed in keep to a numeric
// column. Unparseable cells and no-data sentinels become missing; coercion
// never fails on a malformed value.
func (f *Frame) CoerceNumeric(keep []string) {
	kept := make(map[string]bool, len(keep))
	for _, name := range keep {
		kept[name] = true
	}
	for _, name := range f.order {
		if kept[name] {
			continue
		}
		src, ok := f.str[name]
		if !ok {
			continue
		}
		col := make([]float64, len(src))
		for i, s := range src {
			col[i] = parseCell(s)
		}
		delete(f.str, name)
		f.num[name] = col
	}
}

func parseCell(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	if _, noData := sentinels[v]; noData {
		return math.NaN()
	}
	return v
}
