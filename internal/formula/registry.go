// Package formula loads the variables table that defines alias indicators
// and discovers which raw source fields each dataset must provide.
package formula

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/tractworks/hazidx/internal/domain"
)

// Spec is one alias definition row from the variables table.
type Spec struct {
	Alias      string
	Dataset    string
	Expression string
}

var requiredColumns = []string{"alias", "dataset", "expression"}

// Load parses the variables table. Headers must include alias, dataset, and
// expression. An alias redefined with a different dataset or expression is
// rejected; a byte-identical duplicate row is tolerated. Specs come back in
// file order.
func Load(r io.Reader) ([]Spec, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &domain.ConfigError{Reason: "variables table is empty"}
	}
	if err != nil {
		return nil, &domain.ConfigError{Reason: fmt.Sprintf("read header: %v", err)}
	}

	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, want := range requiredColumns {
		if _, ok := col[want]; !ok {
			return nil, &domain.ConfigError{Reason: fmt.Sprintf("missing required column %q", want)}
		}
	}

	seen := make(map[string]Spec)
	var specs []Spec
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &domain.ConfigError{Reason: fmt.Sprintf("line %d: %v", line, err)}
		}
		s := Spec{
			Alias:      strings.TrimSpace(record[col["alias"]]),
			Dataset:    strings.TrimSpace(record[col["dataset"]]),
			Expression: collapseWhitespace(record[col["expression"]]),
		}
		switch {
		case s.Alias == "":
			return nil, &domain.ConfigError{Reason: fmt.Sprintf("line %d: empty alias", line)}
		case s.Dataset == "":
			return nil, &domain.ConfigError{Reason: fmt.Sprintf("line %d: alias %q has empty dataset", line, s.Alias)}
		case s.Expression == "":
			return nil, &domain.ConfigError{Reason: fmt.Sprintf("line %d: alias %q has empty expression", line, s.Alias)}
		}
		if prev, dup := seen[s.Alias]; dup {
			if prev == s {
				continue
			}
			return nil, &domain.ConfigError{
				Reason: fmt.Sprintf("alias %q redefined with a different dataset or expression", s.Alias),
			}
		}
		seen[s.Alias] = s
		specs = append(specs, s)
	}
	if len(specs) == 0 {
		return nil, &domain.ConfigError{Reason: "variables table has no rows"}
	}
	return specs, nil
}

// collapseWhitespace folds newlines and runs of spaces inside an expression
// into single spaces. Config files wrap long formulas across lines.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
