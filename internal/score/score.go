// Package score derives the SPL_ score and RPL_ percentile-rank columns for
// every alias indicator, plus the composite index.
package score

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/tractworks/hazidx/internal/frame"
)

const (
	// ScorePrefix marks the raw-score copy of an alias, reserved for future
	// weighting or capping transforms.
	ScorePrefix = "SPL_"
	// RankPrefix marks the percentile rank of a score column.
	RankPrefix = "RPL_"
	// CompositeColumn is the row-wise mean of the per-alias rank columns.
	CompositeColumn = "RPL_THEMES"
)

// Population-total aliases are denominators for other indicators and never
// receive score or rank columns. Matched case-insensitively.
var denominators = map[string]bool{
	"E_TOTPOP": true,
	"TOT_POP":  true,
	"TOTPOP":   true,
}

// Options control composite behavior.
type Options struct {
	// MinCompositeRanks is the minimum number of present rank values a row
	// needs for its composite to be defined. Values below 1 mean 1.
	MinCompositeRanks int
}

// Apply adds SPL_ and RPL_ columns for every non-denominator alias, in the
// given alias order, then the composite index over the rank columns. Rows
// with a missing score get a missing rank and do not disturb the ranks of
// other rows.
func Apply(f *frame.Frame, aliases []string, opts Options) error {
	var rankCols []string
	for _, alias := range aliases {
		if denominators[strings.ToUpper(alias)] {
			continue
		}
		src, ok := f.Floats(alias)
		if !ok {
			return fmt.Errorf("alias column %q not found", alias)
		}
		spl := make([]float64, len(src))
		copy(spl, src)
		if err := f.SetFloats(ScorePrefix+alias, spl); err != nil {
			return err
		}
		if err := f.SetFloats(RankPrefix+alias, percentileRanks(spl)); err != nil {
			return err
		}
		rankCols = append(rankCols, RankPrefix+alias)
	}

	if len(rankCols) == 0 {
		return nil
	}
	return f.SetFloats(CompositeColumn, composite(f, rankCols, opts))
}

// percentileRanks maps each non-missing value to its percentile position in
// [0,1]: meanPosition/(n-1) over the n non-missing rows, where tied values
// share the mean of the positions they occupy. Results are rounded to four
// decimal places. A lone non-missing value ranks 0.
func percentileRanks(vals []float64) []float64 {
	type indexed struct {
		row int
		v   float64
	}
	present := make([]indexed, 0, len(vals))
	for i, v := range vals {
		if !math.IsNaN(v) {
			present = append(present, indexed{row: i, v: v})
		}
	}

	out := make([]float64, len(vals))
	for i := range out {
		out[i] = math.NaN()
	}

	n := len(present)
	switch n {
	case 0:
		return out
	case 1:
		out[present[0].row] = 0
		return out
	}

	sort.SliceStable(present, func(a, b int) bool { return present[a].v < present[b].v })

	for i := 0; i < n; {
		j := i
		for j+1 < n && present[j+1].v == present[i].v {
			j++
		}
		rank := round4(float64(i+j) / 2 / float64(n-1))
		for k := i; k <= j; k++ {
			out[present[k].row] = rank
		}
		i = j + 1
	}
	return out
}

// composite computes the row-wise mean over the rank values present in each
// row. A row with fewer present ranks than the minimum is itself missing.
func composite(f *frame.Frame, rankCols []string, opts Options) []float64 {
	minPresent := opts.MinCompositeRanks
	if minPresent < 1 {
		minPresent = 1
	}

	cols := make([][]float64, len(rankCols))
	for i, name := range rankCols {
		cols[i], _ = f.Floats(name)
	}

	out := make([]float64, f.NumRows())
	buf := make([]float64, 0, len(cols))
	for r := range out {
		buf = buf[:0]
		for _, col := range cols {
			if !math.IsNaN(col[r]) {
				buf = append(buf, col[r])
			}
		}
		if len(buf) < minPresent {
			out[r] = math.NaN()
			continue
		}
		out[r] = round4(stat.Mean(buf, nil))
	}
	return out
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
