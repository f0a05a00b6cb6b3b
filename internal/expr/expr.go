// Package expr implements the arithmetic expression language alias formulas
// are written in: identifiers naming columns, float literals, the four
// arithmetic operators, unary minus, and parentheses. Expressions evaluate
// element-wise over named columns and have no access to anything beyond the
// lookup function they are handed.
package expr

import (
	"fmt"
	"math"
)

// Env resolves an identifier to a numeric column.
type Env func(name string) ([]float64, bool)

// Node is one node of a parsed expression.
type Node interface {
	eval(env Env, rows int) ([]float64, error)
	collectVars(seen map[string]bool, out *[]string)
}

// Eval computes the expression over rows-length columns. The result is
// always a fresh slice. Division by zero yields a missing value at that row,
// never an error.
func Eval(n Node, env Env, rows int) ([]float64, error) {
	return n.eval(env, rows)
}

// Vars returns every identifier referenced by the expression, deduplicated
// in order of first appearance.
func Vars(n Node) []string {
	var out []string
	n.collectVars(make(map[string]bool), &out)
	return out
}

type literal struct {
	value float64
}

func (l literal) eval(_ Env, rows int) ([]float64, error) {
	col := make([]float64, rows)
	for i := range col {
		col[i] = l.value
	}
	return col, nil
}

func (l literal) collectVars(map[string]bool, *[]string) {}

type ref struct {
	name string
}

func (r ref) eval(env Env, rows int) ([]float64, error) {
	src, ok := env(r.name)
	if !ok {
		return nil, fmt.Errorf("unknown column %q", r.name)
	}
	if len(src) != rows {
		return nil, fmt.Errorf("column %q has %d values, want %d", r.name, len(src), rows)
	}
	col := make([]float64, rows)
	copy(col, src)
	return col, nil
}

func (r ref) collectVars(seen map[string]bool, out *[]string) {
	if !seen[r.name] {
		seen[r.name] = true
		*out = append(*out, r.name)
	}
}

type negate struct {
	operand Node
}

func (n negate) eval(env Env, rows int) ([]float64, error) {
	col, err := n.operand.eval(env, rows)
	if err != nil {
		return nil, err
	}
	for i := range col {
		col[i] = -col[i]
	}
	return col, nil
}

func (n negate) collectVars(seen map[string]bool, out *[]string) {
	n.operand.collectVars(seen, out)
}

type binary struct {
	op    byte
	left  Node
	right Node
}

func (b binary) eval(env Env, rows int) ([]float64, error) {
	lv, err := b.left.eval(env, rows)
	if err != nil {
		return nil, err
	}
	rv, err := b.right.eval(env, rows)
	if err != nil {
		return nil, err
	}
	for i := range lv {
		switch b.op {
		case '+':
			lv[i] += rv[i]
		case '-':
			lv[i] -= rv[i]
		case '*':
			lv[i] *= rv[i]
		case '/':
			if rv[i] == 0 {
				lv[i] = math.NaN()
			} else {
				lv[i] /= rv[i]
			}
		}
	}
	return lv, nil
}

func (b binary) collectVars(seen map[string]bool, out *[]string) {
	b.left.collectVars(seen, out)
	b.right.collectVars(seen, out)
}
