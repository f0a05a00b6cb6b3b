package domain

import (
	"fmt"
	"strings"
)

// SnapshotKey identifies one cached dataset pull. Runs that share all four
// parts may reuse each other's snapshots.
type SnapshotKey struct {
	Year      int
	State     string
	Geography string
	Dataset   string
}

// String renders the key in a filesystem-safe form. Dataset slugs contain
// path separators (e.g. "acs/acs5"), which are flattened.
func (k SnapshotKey) String() string {
	return fmt.Sprintf("%d_%s_%s_%s",
		k.Year, k.State, k.Geography, strings.ReplaceAll(k.Dataset, "/", "-"))
}
