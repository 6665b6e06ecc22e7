// Package predicate implements the boolean filter trees accepted by
// querysets. Trees are immutable: combinators build new nodes and never
// mutate their operands, so a predicate can be shared between querysets.
package predicate

import (
	"reflect"
	"strings"

	"github.com/pkg/errors"

	"github.com/krew-solutions/querykit-go/querykit/predicate/operators"
)

// ErrInvalidPredicate reports a leaf whose operand is incompatible with its
// operator. It is returned at construction time, before any SQL is rendered.
var ErrInvalidPredicate = errors.New("invalid predicate")

type JunctionKind string

const (
	JunctionAnd JunctionKind = "AND"
	JunctionOr  JunctionKind = "OR"
)

type Visitor interface {
	VisitLeaf(Leaf) error
	VisitJunction(Junction) error
	VisitNot(Not) error
}

type Predicate interface {
	Accept(Visitor) error
}

// Leaf is a single comparison against a field. FieldPath may traverse
// foreign keys using the double-underscore separator, e.g.
// "publisher__location__name".
type Leaf struct {
	fieldPath string
	operator  operators.Operator
	operand   any
}

func (l Leaf) FieldPath() string { return l.fieldPath }
func (l Leaf) Operator() operators.Operator { return l.operator }
func (l Leaf) Operand() any { return l.operand }
func (l Leaf) Accept(v Visitor) error { return v.VisitLeaf(l) }

// Junction is an n-ary AND or OR over two or more sub-predicates. Nested
// junctions of the same kind are flattened at construction.
type Junction struct {
	kind     JunctionKind
	children []Predicate
}

func (j Junction) Kind() JunctionKind { return j.kind }
func (j Junction) Children() []Predicate { return j.children }
func (j Junction) Accept(v Visitor) error { return v.VisitJunction(j) }

// Not negates a single sub-predicate.
type Not struct {
	child Predicate
}

func (n Not) Child() Predicate { return n.child }
func (n Not) Accept(v Visitor) error { return v.VisitNot(n) }

// NewLeaf validates the operator/operand pair and builds a comparison leaf.
func NewLeaf(fieldPath string, op operators.Operator, operand any) (Predicate, error) {
	if strings.TrimSpace(fieldPath) == "" {
		return nil, errors.Wrap(ErrInvalidPredicate, "empty field path")
	}
	if err := operators.Validate(op, operand); err != nil {
		return nil, errors.Wrapf(ErrInvalidPredicate, "%s %s: %v", fieldPath, op, err)
	}
	if op == operators.OperatorIn {
		operand = normalizeSequence(operand)
	}
	return Leaf{fieldPath: fieldPath, operator: op, operand: operand}, nil
}

func Eq(fieldPath string, operand any) (Predicate, error) {
	return NewLeaf(fieldPath, operators.OperatorEq, operand)
}

func Ne(fieldPath string, operand any) (Predicate, error) {
	return NewLeaf(fieldPath, operators.OperatorNe, operand)
}

func Gt(fieldPath string, operand any) (Predicate, error) {
	return NewLeaf(fieldPath, operators.OperatorGt, operand)
}

func Lt(fieldPath string, operand any) (Predicate, error) {
	return NewLeaf(fieldPath, operators.OperatorLt, operand)
}

func Gte(fieldPath string, operand any) (Predicate, error) {
	return NewLeaf(fieldPath, operators.OperatorGte, operand)
}

func Lte(fieldPath string, operand any) (Predicate, error) {
	return NewLeaf(fieldPath, operators.OperatorLte, operand)
}

func In(fieldPath string, operand any) (Predicate, error) {
	return NewLeaf(fieldPath, operators.OperatorIn, operand)
}

// StartsWith matches values beginning with prefix. LIKE wildcards inside
// prefix are escaped, the argument is matched literally.
func StartsWith(fieldPath, prefix string) (Predicate, error) {
	return NewLeaf(fieldPath, operators.OperatorLike, escapeLike(prefix)+"%")
}

// EndsWith matches values ending with suffix.
func EndsWith(fieldPath, suffix string) (Predicate, error) {
	return NewLeaf(fieldPath, operators.OperatorLike, "%"+escapeLike(suffix))
}

// Contains matches values containing substr anywhere.
func Contains(fieldPath, substr string) (Predicate, error) {
	return NewLeaf(fieldPath, operators.OperatorLike, "%"+escapeLike(substr)+"%")
}

func Null(fieldPath string) (Predicate, error) {
	return NewLeaf(fieldPath, operators.OperatorIsNull, nil)
}

func NotNull(fieldPath string) (Predicate, error) {
	return NewLeaf(fieldPath, operators.OperatorIsNotNull, nil)
}

// Must panics on a construction error. Intended for statically known
// predicates, in the manner of template.Must.
func Must(p Predicate, err error) Predicate {
	if err != nil {
		panic(err)
	}
	return p
}

// And conjoins the given predicates. Operands that are themselves AND
// junctions are flattened into one n-ary node; rendering preserves boolean
// precedence regardless of nesting.
func And(first Predicate, rest ...Predicate) Predicate {
	return newJunction(JunctionAnd, first, rest)
}

// Or disjoins the given predicates.
func Or(first Predicate, rest ...Predicate) Predicate {
	return newJunction(JunctionOr, first, rest)
}

// Negate wraps p in a NOT node. Negate(Negate(p)) is logically, though not
// textually, equivalent to p.
func Negate(p Predicate) Predicate {
	return Not{child: p}
}

func newJunction(kind JunctionKind, first Predicate, rest []Predicate) Predicate {
	if len(rest) == 0 {
		return first
	}
	children := make([]Predicate, 0, len(rest)+1)
	for _, p := range append([]Predicate{first}, rest...) {
		if j, ok := p.(Junction); ok && j.kind == kind {
			children = append(children, j.children...)
			continue
		}
		children = append(children, p)
	}
	return Junction{kind: kind, children: children}
}

// FieldPaths collects the field path of every leaf in p, in visiting order.
// The translator uses this to make sure filtering through a relation is
// covered by a join even when the relation is not eagerly fetched.
func FieldPaths(p Predicate) []string {
	c := &pathCollector{}
	_ = p.Accept(c)
	return c.paths
}

type pathCollector struct {
	paths []string
}

func (c *pathCollector) VisitLeaf(l Leaf) error {
	c.paths = append(c.paths, l.fieldPath)
	return nil
}

func (c *pathCollector) VisitJunction(j Junction) error {
	for _, child := range j.children {
		if err := child.Accept(c); err != nil {
			return err
		}
	}
	return nil
}

func (c *pathCollector) VisitNot(n Not) error {
	return n.child.Accept(c)
}

func normalizeSequence(operand any) []any {
	v := reflect.ValueOf(operand)
	out := make([]any, v.Len())
	for i := 0; i < v.Len(); i++ {
		out[i] = v.Index(i).Interface()
	}
	return out
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
