// Package sqlgen renders join plans and predicate trees into parameterized
// SQL. Statement text and parameter values travel separately; the
// placeholder style is negotiated once, at translator construction, to
// match what the executing driver understands.
package sqlgen

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/krew-solutions/querykit-go/querykit/metadata"
	"github.com/krew-solutions/querykit-go/querykit/predicate"
	"github.com/krew-solutions/querykit-go/querykit/relation"
)

// ErrUnresolvedFieldPath reports a field path that no join in the plan can
// cover.
var ErrUnresolvedFieldPath = errors.New("unresolved field path")

// PlaceholderStyle selects how positional parameters appear in statement
// text.
type PlaceholderStyle int

const (
	// Dollar renders $1, $2, ... (PostgreSQL wire placeholders).
	Dollar PlaceholderStyle = iota
	// Question renders ?, the database/sql convention.
	Question
)

func (s PlaceholderStyle) placeholder(n int) string {
	if s == Question {
		return "?"
	}
	return "$" + strconv.Itoa(n)
}

// Limit is a pagination window. Count == 0 means no explicit limit; the
// offset still applies.
type Limit struct {
	Offset int
	Count  int
}

// Projection selects the output columns of a SELECT.
type Projection struct {
	all    bool
	fields []string
}

// ProjectionAll selects every field of the root model and of each
// eagerly-fetched related model, in hydration order.
func ProjectionAll() Projection { return Projection{all: true} }

// ProjectionFields selects exactly the named fields, in caller order.
// Fields may traverse relations with the path separator.
func ProjectionFields(fields ...string) Projection { return Projection{fields: fields} }

type Translator struct {
	style PlaceholderStyle
}

func NewTranslator(style PlaceholderStyle) *Translator {
	return &Translator{style: style}
}

// Select renders a full query against the join plan. The plan must already
// cover every relation path referenced by the predicate, the ordering and
// the projection.
func (t *Translator) Select(
	plan *relation.JoinPlan,
	where predicate.Predicate,
	orderBy []string,
	limit *Limit,
	proj Projection,
) (string, []any, error) {
	columns, err := t.projectionColumns(plan, proj)
	if err != nil {
		return "", nil, err
	}
	var b strings.Builder
	b.WriteString("SELECT " + strings.Join(columns, ", "))
	b.WriteString(" FROM " + t.fromClause(plan))

	params, err := t.appendWhere(&b, where, t.planResolver(plan))
	if err != nil {
		return "", nil, err
	}
	if err := t.appendOrderBy(&b, plan, orderBy); err != nil {
		return "", nil, err
	}
	t.appendLimit(&b, limit)
	return b.String(), params, nil
}

// Count renders SELECT COUNT(*); no projection or hydration joins beyond
// what the predicate itself requires.
func (t *Translator) Count(plan *relation.JoinPlan, where predicate.Predicate) (string, []any, error) {
	var b strings.Builder
	b.WriteString("SELECT COUNT(*) FROM " + t.fromClause(plan))
	params, err := t.appendWhere(&b, where, t.planResolver(plan))
	if err != nil {
		return "", nil, err
	}
	return b.String(), params, nil
}

// Delete renders a DELETE for the plan's root model. Deleting fetches no
// data: when the predicate stays on the root table the statement is a plain
// DELETE with bare columns; when it traverses relations the row set is
// selected by primary key in a subquery carrying the joins.
func (t *Translator) Delete(plan *relation.JoinPlan, where predicate.Predicate) (string, []any, error) {
	meta := plan.Meta
	if len(plan.Joins()) == 0 {
		var b strings.Builder
		b.WriteString("DELETE FROM " + meta.Table)
		params, err := t.appendWhere(&b, where, t.bareResolver(meta))
		if err != nil {
			return "", nil, err
		}
		return b.String(), params, nil
	}

	pk := plan.Alias + "." + meta.PKColumn()
	var b strings.Builder
	b.WriteString("DELETE FROM " + meta.Table + " WHERE " + meta.PKColumn() + " IN (")
	b.WriteString("SELECT " + pk + " FROM " + t.fromClause(plan))
	params, err := t.appendWhere(&b, where, t.planResolver(plan))
	if err != nil {
		return "", nil, err
	}
	b.WriteString(")")
	return b.String(), params, nil
}

func (t *Translator) fromClause(plan *relation.JoinPlan) string {
	var b strings.Builder
	b.WriteString(plan.Meta.Table + " AS " + plan.Alias)
	for _, j := range plan.Joins() {
		kind := "INNER JOIN"
		if j.Edge.FK.Nullable {
			// A LEFT JOIN keeps the primary row when the reference is
			// null; an inner join would silently drop it.
			kind = "LEFT JOIN"
		}
		child := j.Edge.Child
		b.WriteString(" " + kind + " " + child.Meta.Table + " AS " + child.Alias)
		b.WriteString(" ON " + j.Parent.Alias + "." + j.Edge.FK.Column)
		b.WriteString(" = " + child.Alias + "." + child.Meta.PKColumn())
	}
	return b.String()
}

func (t *Translator) appendWhere(
	b *strings.Builder,
	where predicate.Predicate,
	resolve func(string) (string, error),
) ([]any, error) {
	if where == nil {
		return nil, nil
	}
	sql, params, err := newWhereVisitor(t.style, resolve).Render(where)
	if err != nil {
		return nil, err
	}
	b.WriteString(" WHERE " + sql)
	return params, nil
}

func (t *Translator) appendOrderBy(b *strings.Builder, plan *relation.JoinPlan, orderBy []string) error {
	if len(orderBy) == 0 {
		return nil
	}
	terms := make([]string, 0, len(orderBy))
	for _, field := range orderBy {
		direction := " ASC"
		if strings.HasPrefix(field, "-") {
			field = field[1:]
			direction = " DESC"
		}
		column, err := t.planResolver(plan)(field)
		if err != nil {
			return err
		}
		terms = append(terms, column+direction)
	}
	b.WriteString(" ORDER BY " + strings.Join(terms, ", "))
	return nil
}

func (t *Translator) appendLimit(b *strings.Builder, limit *Limit) {
	if limit == nil {
		return
	}
	switch {
	case limit.Count > 0:
		b.WriteString(" LIMIT " + strconv.Itoa(limit.Count))
		if limit.Offset > 0 {
			b.WriteString(" OFFSET " + strconv.Itoa(limit.Offset))
		}
	case limit.Offset > 0:
		// Offset without an explicit limit. SQLite-style drivers require
		// a LIMIT clause before OFFSET; -1 means unbounded there.
		if t.style == Question {
			b.WriteString(" LIMIT -1")
		}
		b.WriteString(" OFFSET " + strconv.Itoa(limit.Offset))
	}
}

func (t *Translator) projectionColumns(plan *relation.JoinPlan, proj Projection) ([]string, error) {
	if proj.all {
		var columns []string
		for _, node := range plan.HydratedNodes() {
			for _, f := range node.Meta.Fields {
				columns = append(columns, node.Alias+"."+f.Column)
			}
		}
		return columns, nil
	}
	if len(proj.fields) == 0 {
		return nil, errors.Wrap(ErrUnresolvedFieldPath, "empty projection")
	}
	columns := make([]string, 0, len(proj.fields))
	resolve := t.planResolver(plan)
	for _, field := range proj.fields {
		column, err := resolve(field)
		if err != nil {
			return nil, err
		}
		columns = append(columns, column)
	}
	return columns, nil
}

// planResolver resolves relation-traversing field paths to alias-qualified
// columns.
func (t *Translator) planResolver(plan *relation.JoinPlan) func(string) (string, error) {
	return func(fieldPath string) (string, error) {
		column, err := plan.ColumnFor(fieldPath)
		if err != nil {
			return "", errors.Wrapf(ErrUnresolvedFieldPath, "%v", err)
		}
		return column, nil
	}
}

// bareResolver resolves single-segment paths to unqualified columns, for
// statements that reference only the root table.
func (t *Translator) bareResolver(meta *metadata.Meta) func(string) (string, error) {
	return func(fieldPath string) (string, error) {
		if f, ok := meta.Field(fieldPath); ok {
			return f.Column, nil
		}
		if fk, ok := meta.ForeignKey(fieldPath); ok {
			return fk.Column, nil
		}
		return "", errors.Wrapf(ErrUnresolvedFieldPath, "%q has no field %q", meta.Table, fieldPath)
	}
}
