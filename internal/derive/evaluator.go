// Package derive turns alias definitions into numeric columns on the wide
// table. Aliases may reference raw fields or other aliases, so evaluation
// runs in explicit dependency order and a definition cycle is detected as a
// graph property before anything is computed.
package derive

import (
	"fmt"
	"log/slog"
	"math"
	"regexp"

	"github.com/tractworks/hazidx/internal/domain"
	"github.com/tractworks/hazidx/internal/expr"
	"github.com/tractworks/hazidx/internal/formula"
	"github.com/tractworks/hazidx/internal/frame"
)

var identRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Evaluator adds one column per alias definition to a frame.
type Evaluator struct {
	logger *slog.Logger
}

// New creates an Evaluator.
func New(logger *slog.Logger) *Evaluator {
	return &Evaluator{logger: logger}
}

// Report describes what one Apply pass did.
type Report struct {
	// Order is the evaluation order actually used.
	Order []string
	// Degraded maps each alias that failed to evaluate to the reason. A
	// degraded alias becomes an all-missing column; it never aborts the run.
	Degraded map[string]string
}

// Apply evaluates every alias against the frame in dependency order. An
// alias already present as a column is left untouched, which makes Apply
// idempotent. The only fatal outcome is a cycle among alias definitions.
func (e *Evaluator) Apply(f *frame.Frame, specs []formula.Spec) (*Report, error) {
	order, err := sortByDependency(specs)
	if err != nil {
		return nil, err
	}

	report := &Report{Degraded: make(map[string]string)}
	byAlias := make(map[string]formula.Spec, len(specs))
	for _, s := range specs {
		byAlias[s.Alias] = s
	}

	for _, alias := range order {
		report.Order = append(report.Order, alias)
		if f.Has(alias) {
			e.logger.Debug("alias already present, skipping", "alias", alias)
			continue
		}
		vals, reason := compute(f, byAlias[alias])
		if reason != "" {
			vals = allMissing(f.NumRows())
			report.Degraded[alias] = reason
			e.logger.Warn("alias degraded to missing", "alias", alias, "reason", reason)
		}
		if err := f.SetFloats(alias, vals); err != nil {
			return nil, fmt.Errorf("alias %q: %w", alias, err)
		}
	}
	return report, nil
}

// compute resolves one alias. A trivial expression (a bare identifier) is a
// column copy; anything else is parsed and evaluated element-wise. The
// returned reason is non-empty when the alias must degrade.
func compute(f *frame.Frame, s formula.Spec) ([]float64, string) {
	if identRE.MatchString(s.Expression) {
		src, ok := f.Floats(s.Expression)
		if !ok {
			if _, isText := f.Strings(s.Expression); isText {
				return nil, fmt.Sprintf("column %q is not numeric", s.Expression)
			}
			return nil, fmt.Sprintf("column %q not found", s.Expression)
		}
		vals := make([]float64, len(src))
		copy(vals, src)
		return vals, ""
	}

	node, err := expr.Parse(s.Expression)
	if err != nil {
		return nil, fmt.Sprintf("parse: %v", err)
	}
	vals, err := expr.Eval(node, func(name string) ([]float64, bool) {
		return f.Floats(name)
	}, f.NumRows())
	if err != nil {
		return nil, err.Error()
	}
	return vals, ""
}

// sortByDependency orders aliases so every alias referenced by an expression
// is computed first. Ties keep config order. A cycle is fatal.
func sortByDependency(specs []formula.Spec) ([]string, error) {
	isAlias := make(map[string]bool, len(specs))
	for _, s := range specs {
		isAlias[s.Alias] = true
	}

	// deps[alias] holds the aliases its expression references. References a
	// parser cannot make sense of are ignored here; the alias will degrade
	// during evaluation instead.
	deps := make(map[string][]string, len(specs))
	for _, s := range specs {
		for _, name := range references(s.Expression) {
			if isAlias[name] && name != s.Alias {
				deps[s.Alias] = append(deps[s.Alias], name)
			}
		}
	}

	done := make(map[string]bool, len(specs))
	var order []string
	for len(order) < len(specs) {
		progressed := false
		for _, s := range specs {
			if done[s.Alias] {
				continue
			}
			ready := true
			for _, d := range deps[s.Alias] {
				if !done[d] {
					ready = false
					break
				}
			}
			if ready {
				done[s.Alias] = true
				order = append(order, s.Alias)
				progressed = true
			}
		}
		if !progressed {
			var stuck []string
			for _, s := range specs {
				if !done[s.Alias] {
					stuck = append(stuck, s.Alias)
				}
			}
			return nil, &domain.CyclicDefinitionError{Aliases: stuck}
		}
	}
	return order, nil
}

// references extracts every identifier an expression mentions.
func references(expression string) []string {
	if identRE.MatchString(expression) {
		return []string{expression}
	}
	node, err := expr.Parse(expression)
	if err != nil {
		return nil
	}
	return expr.Vars(node)
}

func allMissing(n int) []float64 {
	col := make([]float64, n)
	for i := range col {
		col[i] = math.NaN()
	}
	return col
}
