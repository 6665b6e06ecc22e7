// Package queryset is the lazy, chainable front end of the engine. A
// QuerySet value is an immutable description of one database lookup: every
// chaining call copies the state, so a base queryset can be shared across
// goroutines and derived from freely. Nothing touches the database until a
// materializer runs, and each materializer executes exactly one statement
// against the session it is given.
package queryset

import (
	stderrors "errors"
	"iter"
	"strings"

	"github.com/pkg/errors"

	"github.com/krew-solutions/querykit-go/querykit/metadata"
	"github.com/krew-solutions/querykit-go/querykit/option"
	"github.com/krew-solutions/querykit-go/querykit/predicate"
	"github.com/krew-solutions/querykit-go/querykit/relation"
	"github.com/krew-solutions/querykit-go/querykit/session"
	"github.com/krew-solutions/querykit-go/querykit/sqlgen"
)

// ErrConstraintViolation reports a delete rejected by a foreign-key
// constraint.
var ErrConstraintViolation = errors.New("constraint violation")

type QuerySet[T metadata.Model] struct {
	where   option.Option[predicate.Predicate]
	limit   option.Option[sqlgen.Limit]
	orderBy []string
	fetch   relation.FetchSpec
	style   sqlgen.PlaceholderStyle
}

// New returns an empty queryset over T, rendering Dollar placeholders.
func New[T metadata.Model]() QuerySet[T] {
	return QuerySet[T]{fetch: relation.None(), style: sqlgen.Dollar}
}

// Placeholders returns a queryset rendering the given placeholder style.
// Match it to the driver behind the session executing the materializers.
func (q QuerySet[T]) Placeholders(style sqlgen.PlaceholderStyle) QuerySet[T] {
	q.style = style
	return q
}

// Filter conjoins p with the accumulated predicate.
func (q QuerySet[T]) Filter(p predicate.Predicate) QuerySet[T] {
	q.where = option.Some(q.conjoin(p))
	return q
}

// Exclude conjoins the negation of p with the accumulated predicate.
func (q QuerySet[T]) Exclude(p predicate.Predicate) QuerySet[T] {
	q.where = option.Some(q.conjoin(predicate.Negate(p)))
	return q
}

func (q QuerySet[T]) conjoin(p predicate.Predicate) predicate.Predicate {
	if existing, ok := q.where.Get(); ok {
		return predicate.And(existing, p)
	}
	return p
}

// Limit sets the pagination window. count == 0 means no explicit limit:
// the offset still skips rows, but the result is unbounded above.
func (q QuerySet[T]) Limit(offset, count int) QuerySet[T] {
	q.limit = option.Some(sqlgen.Limit{Offset: offset, Count: count})
	return q
}

// OrderBy sets the row ordering. A leading "-" orders descending. Fields
// may traverse relations with the path separator. Each call replaces the
// previous ordering.
func (q QuerySet[T]) OrderBy(fields ...string) QuerySet[T] {
	q.orderBy = append([]string(nil), fields...)
	return q
}

// SelectRelated sets the eager-fetch spec: with no arguments every foreign
// key is traversed transitively (cycle-guarded); with arguments exactly the
// named relation chains are joined. Each call replaces the previous spec,
// it does not merge with it.
func (q QuerySet[T]) SelectRelated(paths ...string) QuerySet[T] {
	if len(paths) == 0 {
		q.fetch = relation.AllRecursive()
	} else {
		q.fetch = relation.Explicit(paths...)
	}
	return q
}

// Count executes SELECT COUNT(*) under the accumulated predicate. The
// pagination window is ignored; use Size for the windowed row count.
func (q QuerySet[T]) Count(s session.DbSession) (int64, error) {
	plan, err := q.plan(relation.None(), nil)
	if err != nil {
		return 0, err
	}
	sql, params, err := q.translator().Count(plan, q.where.UnwrapOrZero())
	if err != nil {
		return 0, err
	}
	var n int64
	row := s.Connection().QueryRow(sql, params...)
	if err := row.Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count query failed")
	}
	return n, nil
}

// Remove deletes the rows matching the accumulated predicate and returns
// the number of rows deleted. A foreign-key rejection surfaces as
// ErrConstraintViolation; other driver errors propagate unchanged and are
// never retried.
func (q QuerySet[T]) Remove(s session.DbSession) (int64, error) {
	plan, err := q.plan(relation.None(), nil)
	if err != nil {
		return 0, err
	}
	sql, params, err := q.translator().Delete(plan, q.where.UnwrapOrZero())
	if err != nil {
		return 0, err
	}
	res, err := s.Connection().Exec(sql, params...)
	if err != nil {
		if isForeignKeyViolation(err) {
			return 0, errors.Wrapf(ErrConstraintViolation, "%v", err)
		}
		return 0, errors.Wrap(err, "delete query failed")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, nil // driver cannot report the count, the delete succeeded
	}
	return affected, nil
}

// All executes the query and hydrates every row, including the related
// objects requested by SelectRelated.
func (q QuerySet[T]) All(s session.DbSession) ([]*T, error) {
	plan, sql, params, err := q.selectStatement()
	if err != nil {
		return nil, err
	}
	rows, err := s.Connection().Query(sql, params...)
	if err != nil {
		return nil, errors.Wrap(err, "select query failed")
	}
	defer rows.Close()

	var out []*T
	for rows.Next() {
		obj, err := hydrate[T](plan, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration failed")
	}
	return out, nil
}

// Iter returns a lazy sequence of hydrated instances. The query executes
// anew each time the sequence is ranged over, reflecting the queryset state
// as of that call; it is not a live view of later mutations.
func (q QuerySet[T]) Iter(s session.DbSession) iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		plan, sql, params, err := q.selectStatement()
		if err != nil {
			yield(nil, err)
			return
		}
		rows, err := s.Connection().Query(sql, params...)
		if err != nil {
			yield(nil, errors.Wrap(err, "select query failed"))
			return
		}
		defer rows.Close()
		for rows.Next() {
			obj, err := hydrate[T](plan, rows)
			if !yield(obj, err) {
				return
			}
			if err != nil {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, errors.Wrap(err, "row iteration failed"))
		}
	}
}

// Size returns the number of rows the queryset materializes, pagination
// included. Each call executes one query; results are not cached across
// calls.
func (q QuerySet[T]) Size(s session.DbSession) (int, error) {
	all, err := q.All(s)
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

// At returns the i-th row in the queryset's defined order. Each call
// executes one query; repeated indexed access re-queries rather than
// caching the row set.
func (q QuerySet[T]) At(s session.DbSession, i int) (*T, error) {
	all, err := q.All(s)
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= len(all) {
		return nil, errors.Errorf("index %d out of range, queryset has %d rows", i, len(all))
	}
	return all[i], nil
}

// Values bypasses hydration and returns one field-name-to-value mapping per
// row, keyed by the caller's field paths.
func (q QuerySet[T]) Values(s session.DbSession, fields ...string) ([]map[string]any, error) {
	rows, err := q.rawRows(s, fields)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		m := make(map[string]any, len(fields))
		for j, field := range fields {
			m[field] = row[j]
		}
		out[i] = m
	}
	return out, nil
}

// ValuesList bypasses hydration and returns one positional value sequence
// per row, ordered by the caller's field list.
func (q QuerySet[T]) ValuesList(s session.DbSession, fields ...string) ([][]any, error) {
	return q.rawRows(s, fields)
}

func (q QuerySet[T]) rawRows(s session.DbSession, fields []string) ([][]any, error) {
	if len(fields) == 0 {
		return nil, errors.New("values requires at least one field")
	}
	plan, err := q.plan(relation.None(), fields)
	if err != nil {
		return nil, err
	}
	sql, params, err := q.translator().Select(
		plan, q.where.UnwrapOrZero(), q.orderBy, q.limitClause(), sqlgen.ProjectionFields(fields...))
	if err != nil {
		return nil, err
	}
	rows, err := s.Connection().Query(sql, params...)
	if err != nil {
		return nil, errors.Wrap(err, "select query failed")
	}
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		raw := make([]any, len(fields))
		ptrs := make([]any, len(fields))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, "scan failed")
		}
		for i, v := range raw {
			if b, ok := v.([]byte); ok {
				raw[i] = string(b)
			}
		}
		out = append(out, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration failed")
	}
	return out, nil
}

func (q QuerySet[T]) selectStatement() (*relation.JoinPlan, string, []any, error) {
	plan, err := q.plan(q.fetch, nil)
	if err != nil {
		return nil, "", nil, err
	}
	sql, params, err := q.translator().Select(
		plan, q.where.UnwrapOrZero(), q.orderBy, q.limitClause(), sqlgen.ProjectionAll())
	if err != nil {
		return nil, "", nil, err
	}
	return plan, sql, params, nil
}

// plan resolves the fetch spec and then extends the join tree until every
// relation path referenced by the predicate, the ordering, or an explicit
// projection is covered. Filtering through a relation works even when the
// relation is not eagerly fetched.
func (q QuerySet[T]) plan(fetch relation.FetchSpec, projFields []string) (*relation.JoinPlan, error) {
	plan, err := relation.Resolve(metadata.MetaOf[T](), fetch)
	if err != nil {
		return nil, err
	}
	if where, ok := q.where.Get(); ok {
		for _, path := range predicate.FieldPaths(where) {
			if err := plan.Require(path); err != nil {
				return nil, err
			}
		}
	}
	for _, field := range q.orderBy {
		if err := plan.Require(strings.TrimPrefix(field, "-")); err != nil {
			return nil, err
		}
	}
	for _, field := range projFields {
		if err := plan.Require(field); err != nil {
			return nil, err
		}
	}
	return plan, nil
}

func (q QuerySet[T]) translator() *sqlgen.Translator {
	return sqlgen.NewTranslator(q.style)
}

func (q QuerySet[T]) limitClause() *sqlgen.Limit {
	if l, ok := q.limit.Get(); ok {
		return &l
	}
	return nil
}

// isForeignKeyViolation matches the standard SQLSTATE foreign-key class
// (drivers exposing SQLState, pgx among them) and the SQLite message text.
func isForeignKeyViolation(err error) bool {
	var state interface{ SQLState() string }
	if stderrors.As(err, &state) {
		return state.SQLState() == "23503"
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint")
}
