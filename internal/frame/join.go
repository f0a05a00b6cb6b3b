package frame

import (
	"fmt"
	"math"
	"strings"

	"github.com/tractworks/hazidx/internal/domain"
)

// CheckUniqueKeys reports a JoinError when two rows of f share a key tuple.
// Key tuples identify rows, so a duplicate anywhere is a data-integrity
// failure, not just on the right side of a join.
func CheckUniqueKeys(f *Frame, keys []string) error {
	seen := make(map[string]bool, f.nrows)
	for r := 0; r < f.nrows; r++ {
		k, err := f.keyAt(keys, r)
		if err != nil {
			return err
		}
		if seen[k] {
			return &domain.JoinError{Key: strings.ReplaceAll(k, "\x1f", "/")}
		}
		seen[k] = true
	}
	return nil
}

// LeftJoin merges right into left on the key columns. The left frame defines
// the row set; right rows without a match contribute missing values. A
// duplicate key tuple on the right side would fan out rows and is reported
// as a JoinError instead. Non-key columns already present on the left (NAME
// repeats in every dataset) are kept from the left and the right copy is
// dropped.
func LeftJoin(left, right *Frame, keys []string) (*Frame, error) {
	index := make(map[string]int, right.nrows)
	for r := 0; r < right.nrows; r++ {
		k, err := right.keyAt(keys, r)
		if err != nil {
			return nil, err
		}
		if _, dup := index[k]; dup {
			return nil, &domain.JoinError{Key: strings.ReplaceAll(k, "\x1f", "/")}
		}
		index[k] = r
	}

	// Row r of left maps to row match[r] of right, or -1.
	match := make([]int, left.nrows)
	for r := 0; r < left.nrows; r++ {
		k, err := left.keyAt(keys, r)
		if err != nil {
			return nil, err
		}
		if j, ok := index[k]; ok {
			match[r] = j
		} else {
			match[r] = -1
		}
	}

	out := left.Copy()
	for _, name := range right.order {
		if out.Has(name) {
			continue
		}
		if src, ok := right.str[name]; ok {
			col := make([]string, left.nrows)
			for r, j := range match {
				if j >= 0 {
					col[r] = src[j]
				}
			}
			if err := out.SetStrings(name, col); err != nil {
				return nil, fmt.Errorf("join column %q: %w", name, err)
			}
			continue
		}
		src := right.num[name]
		col := make([]float64, left.nrows)
		for r, j := range match {
			if j >= 0 {
				col[r] = src[j]
			} else {
				col[r] = math.NaN()
			}
		}
		if err := out.SetFloats(name, col); err != nil {
			return nil, fmt.Errorf("join column %q: %w", name, err)
		}
	}
	return out, nil
}
