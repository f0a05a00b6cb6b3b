package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Geography selects the geographic level and parent scope for one run.
type Geography struct {
	Level string // API geography keyword: tract, county, place, ...
	State string // state or territory FIPS code
}

// Validate checks that the selection is usable in a query.
func (g Geography) Validate() error {
	if strings.TrimSpace(g.Level) == "" {
		return errors.New("geography level is required")
	}
	if strings.TrimSpace(g.State) == "" {
		return errors.New("state FIPS code is required")
	}
	return nil
}

// Keys returns the columns that together uniquely identify one row at this
// geography level. The remote source echoes these back on every request.
func (g Geography) Keys() []string {
	switch g.Level {
	case "tract":
		return []string{"state", "county", "tract"}
	case "county":
		return []string{"state", "county"}
	default:
		return []string{"state", g.Level}
	}
}

// ForClause is the "for" query parameter selecting all units at this level.
func (g Geography) ForClause() string {
	return g.Level + ":*"
}

// InClause is the "in" query parameter scoping the query to the parent
// geography. Tract queries need the county wildcard in the parent scope.
func (g Geography) InClause() string {
	if g.Level == "tract" {
		return fmt.Sprintf("state:%s county:*", g.State)
	}
	return "state:" + g.State
}
