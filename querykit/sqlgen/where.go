package sqlgen

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/krew-solutions/querykit-go/querykit/predicate"
	"github.com/krew-solutions/querykit-go/querykit/predicate/operators"
)

// Boolean operator precedence, after the PostgreSQL precedence table.
// Parentheses are emitted only when an inner node binds looser than its
// surrounding context, so and(a, b) inside an OR renders "(a AND b) OR c".
const (
	precComparison = 80
	precNot        = 60
	precAnd        = 50
	precOr         = 40
)

// whereVisitor renders a predicate tree to SQL. Field paths resolve to
// alias-qualified columns through the resolve callback; operand values are
// collected out-of-band in params and referenced by positional
// placeholders, never interpolated into the statement text.
type whereVisitor struct {
	style      PlaceholderStyle
	resolve    func(string) (string, error)
	sql        strings.Builder
	params     []any
	precedence int
}

func newWhereVisitor(style PlaceholderStyle, resolve func(string) (string, error)) *whereVisitor {
	return &whereVisitor{style: style, resolve: resolve}
}

func (v *whereVisitor) Render(p predicate.Predicate) (string, []any, error) {
	if err := p.Accept(v); err != nil {
		return "", nil, err
	}
	return v.sql.String(), v.params, nil
}

func (v *whereVisitor) placeholder(value any) string {
	v.params = append(v.params, value)
	return v.style.placeholder(len(v.params))
}

// visit runs callable with the given precedence, parenthesizing when the
// node binds looser than its context.
func (v *whereVisitor) visit(prec int, callable func() error) error {
	outer := v.precedence
	v.precedence = prec
	if prec < outer {
		v.sql.WriteString("(")
	}
	if err := callable(); err != nil {
		return err
	}
	if prec < outer {
		v.sql.WriteString(")")
	}
	v.precedence = outer
	return nil
}

func (v *whereVisitor) VisitLeaf(l predicate.Leaf) error {
	return v.visit(precComparison, func() error {
		column, err := v.resolve(l.FieldPath())
		if err != nil {
			return err
		}
		v.sql.WriteString(column)
		op := l.Operator()
		switch {
		case op == operators.OperatorIn:
			values := l.Operand().([]any)
			marks := make([]string, len(values))
			for i, value := range values {
				marks[i] = v.placeholder(value)
			}
			v.sql.WriteString(" IN (" + strings.Join(marks, ", ") + ")")
		case op == operators.OperatorLike:
			v.sql.WriteString(" LIKE " + v.placeholder(l.Operand()) + ` ESCAPE '\'`)
		case operators.Postfix(op):
			v.sql.WriteString(" " + string(op))
		case operators.Comparable(op):
			v.sql.WriteString(" " + string(op) + " " + v.placeholder(l.Operand()))
		default:
			return errors.Errorf("sqlgen: operator %q has no rendering", op)
		}
		return nil
	})
}

func (v *whereVisitor) VisitJunction(j predicate.Junction) error {
	prec := precAnd
	if j.Kind() == predicate.JunctionOr {
		prec = precOr
	}
	return v.visit(prec, func() error {
		for i, child := range j.Children() {
			if i > 0 {
				v.sql.WriteString(" " + string(j.Kind()) + " ")
			}
			if err := child.Accept(v); err != nil {
				return err
			}
		}
		return nil
	})
}

// VisitNot always parenthesizes its operand. NOT x = 1 would parse the way
// we mean it, but the explicit grouping keeps negated sub-trees readable in
// logs and matches what callers expect from rendered exclusions.
func (v *whereVisitor) VisitNot(n predicate.Not) error {
	return v.visit(precNot, func() error {
		v.sql.WriteString("NOT (")
		inner := v.precedence
		v.precedence = 0
		err := n.Child().Accept(v)
		v.precedence = inner
		v.sql.WriteString(")")
		return err
	})
}
