package sqlgen

import (
	"testing"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krew-solutions/querykit-go/querykit/metadata"
	"github.com/krew-solutions/querykit-go/querykit/predicate"
	"github.com/krew-solutions/querykit-go/querykit/relation"
)

var userMeta = &metadata.Meta{
	Table: "users",
	PK:    "id",
	Fields: []metadata.FieldMeta{
		{Name: "id", Column: "id", GoField: "ID"},
		{Name: "username", Column: "username", GoField: "Username"},
		{Name: "password", Column: "password", GoField: "Password"},
	},
}

var locationMeta = &metadata.Meta{
	Table: "locations",
	PK:    "id",
	Fields: []metadata.FieldMeta{
		{Name: "id", Column: "id", GoField: "ID"},
		{Name: "name", Column: "name", GoField: "Name"},
	},
}

var publisherMeta = &metadata.Meta{
	Table: "publishers",
	PK:    "id",
	Fields: []metadata.FieldMeta{
		{Name: "id", Column: "id", GoField: "ID"},
		{Name: "name", Column: "name", GoField: "Name"},
	},
	ForeignKeys: []metadata.ForeignKeyMeta{
		{Name: "location", Column: "location_id", GoField: "Location", Related: func() *metadata.Meta { return locationMeta }},
	},
}

var authorMeta = &metadata.Meta{
	Table: "authors",
	PK:    "id",
	Fields: []metadata.FieldMeta{
		{Name: "id", Column: "id", GoField: "ID"},
		{Name: "name", Column: "name", GoField: "Name"},
	},
}

var bookMeta = &metadata.Meta{
	Table: "books",
	PK:    "id",
	Fields: []metadata.FieldMeta{
		{Name: "id", Column: "id", GoField: "ID"},
		{Name: "title", Column: "title", GoField: "Title"},
	},
	ForeignKeys: []metadata.ForeignKeyMeta{
		{Name: "author", Column: "author_id", GoField: "Author", Nullable: true, Related: func() *metadata.Meta { return authorMeta }},
		{Name: "publisher", Column: "publisher_id", GoField: "Publisher", Related: func() *metadata.Meta { return publisherMeta }},
	},
}

// assertSQL diffs statements on mismatch; a character diff beats eyeballing
// two long SELECTs.
func assertSQL(t *testing.T, expected, actual string) {
	t.Helper()
	if expected == actual {
		return
	}
	dmp := diffmatchpatch.New()
	t.Errorf("SQL mismatch:\n%s", dmp.DiffPrettyText(dmp.DiffMain(expected, actual, false)))
}

func mustPlan(t *testing.T, meta *metadata.Meta, spec relation.FetchSpec, requires ...string) *relation.JoinPlan {
	t.Helper()
	plan, err := relation.Resolve(meta, spec)
	require.NoError(t, err)
	for _, r := range requires {
		require.NoError(t, plan.Require(r))
	}
	return plan
}

func TestSelectFilterExclude(t *testing.T) {
	where := predicate.And(
		predicate.Must(predicate.Eq("username", "bar")),
		predicate.Negate(predicate.Must(predicate.Eq("password", "foo"))),
	)
	plan := mustPlan(t, userMeta, relation.None())

	sql, params, err := NewTranslator(Dollar).Select(plan, where, nil, nil, ProjectionAll())
	require.NoError(t, err)
	assertSQL(t,
		"SELECT t0.id, t0.username, t0.password FROM users AS t0"+
			" WHERE t0.username = $1 AND NOT (t0.password = $2)",
		sql)
	assert.Equal(t, []any{"bar", "foo"}, params)
}

func TestSelectBooleanPrecedence(t *testing.T) {
	a := predicate.Must(predicate.Eq("username", "a"))
	b := predicate.Must(predicate.Eq("username", "b"))
	c := predicate.Must(predicate.Eq("username", "c"))
	tr := NewTranslator(Dollar)
	plan := mustPlan(t, userMeta, relation.None())

	// (a AND b) OR c binds as written without parentheses.
	sql, _, err := tr.Select(plan, predicate.Or(predicate.And(a, b), c), nil, nil, ProjectionFields("id"))
	require.NoError(t, err)
	assertSQL(t,
		"SELECT t0.id FROM users AS t0 WHERE t0.username = $1 AND t0.username = $2 OR t0.username = $3",
		sql)

	// (a OR b) AND c needs the parentheses.
	sql, _, err = tr.Select(plan, predicate.And(predicate.Or(a, b), c), nil, nil, ProjectionFields("id"))
	require.NoError(t, err)
	assertSQL(t,
		"SELECT t0.id FROM users AS t0 WHERE (t0.username = $1 OR t0.username = $2) AND t0.username = $3",
		sql)
}

func TestSelectDoubleNegation(t *testing.T) {
	p := predicate.Must(predicate.Eq("username", "bar"))
	plan := mustPlan(t, userMeta, relation.None())

	sql, params, err := NewTranslator(Dollar).Select(
		plan, predicate.Negate(predicate.Negate(p)), nil, nil, ProjectionFields("id"))
	require.NoError(t, err)
	// Logically equivalent to the plain predicate, not textually identical.
	assertSQL(t, "SELECT t0.id FROM users AS t0 WHERE NOT (NOT (t0.username = $1))", sql)
	assert.Equal(t, []any{"bar"}, params)
}

func TestSelectOperatorRenderings(t *testing.T) {
	plan := mustPlan(t, userMeta, relation.None())
	tr := NewTranslator(Dollar)

	tests := []struct {
		name   string
		where  predicate.Predicate
		clause string
		params []any
	}{
		{
			"in",
			predicate.Must(predicate.In("id", []int{1, 2, 3})),
			"t0.id IN ($1, $2, $3)",
			[]any{1, 2, 3},
		},
		{
			"starts with escapes wildcards",
			predicate.Must(predicate.StartsWith("username", "jo%")),
			`t0.username LIKE $1 ESCAPE '\'`,
			[]any{`jo\%%`},
		},
		{
			"contains",
			predicate.Must(predicate.Contains("username", "ar")),
			`t0.username LIKE $1 ESCAPE '\'`,
			[]any{"%ar%"},
		},
		{
			"is null",
			predicate.Must(predicate.Null("password")),
			"t0.password IS NULL",
			nil,
		},
		{
			"is not null",
			predicate.Must(predicate.NotNull("password")),
			"t0.password IS NOT NULL",
			nil,
		},
		{
			"greater than",
			predicate.Must(predicate.Gt("id", 7)),
			"t0.id > $1",
			[]any{7},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sql, params, err := tr.Select(plan, tc.where, nil, nil, ProjectionFields("id"))
			require.NoError(t, err)
			assertSQL(t, "SELECT t0.id FROM users AS t0 WHERE "+tc.clause, sql)
			assert.Equal(t, tc.params, params)
		})
	}
}

func TestSelectJoins(t *testing.T) {
	plan := mustPlan(t, bookMeta, relation.Explicit("publisher__location"))

	sql, _, err := NewTranslator(Dollar).Select(plan, nil, nil, nil, ProjectionAll())
	require.NoError(t, err)
	assertSQL(t,
		"SELECT t0.id, t0.title, t1.id, t1.name, t2.id, t2.name"+
			" FROM books AS t0"+
			" INNER JOIN publishers AS t1 ON t0.publisher_id = t1.id"+
			" INNER JOIN locations AS t2 ON t1.location_id = t2.id",
		sql)
}

func TestSelectLeftJoinForNullableForeignKey(t *testing.T) {
	plan := mustPlan(t, bookMeta, relation.Explicit("author"))

	sql, _, err := NewTranslator(Dollar).Select(plan, nil, nil, nil, ProjectionAll())
	require.NoError(t, err)
	assertSQL(t,
		"SELECT t0.id, t0.title, t1.id, t1.name"+
			" FROM books AS t0"+
			" LEFT JOIN authors AS t1 ON t0.author_id = t1.id",
		sql)
}

func TestSelectFilterThroughRelationWithoutEagerFetch(t *testing.T) {
	// The filter path joins the chain, but no related columns are selected.
	where := predicate.Must(predicate.Eq("publisher__location__name", "Berlin"))
	plan := mustPlan(t, bookMeta, relation.None(), "publisher__location__name")

	sql, params, err := NewTranslator(Dollar).Select(plan, where, nil, nil, ProjectionAll())
	require.NoError(t, err)
	assertSQL(t,
		"SELECT t0.id, t0.title"+
			" FROM books AS t0"+
			" INNER JOIN publishers AS t1 ON t0.publisher_id = t1.id"+
			" INNER JOIN locations AS t2 ON t1.location_id = t2.id"+
			" WHERE t2.name = $1",
		sql)
	assert.Equal(t, []any{"Berlin"}, params)
}

func TestSelectOrderByAndLimit(t *testing.T) {
	plan := mustPlan(t, bookMeta, relation.None())

	sql, _, err := NewTranslator(Dollar).Select(
		plan, nil, []string{"-title", "id"}, &Limit{Offset: 50, Count: 100}, ProjectionAll())
	require.NoError(t, err)
	assertSQL(t,
		"SELECT t0.id, t0.title FROM books AS t0"+
			" ORDER BY t0.title DESC, t0.id ASC LIMIT 100 OFFSET 50",
		sql)
}

func TestSelectLimitZeroCountMeansUnbounded(t *testing.T) {
	plan := mustPlan(t, bookMeta, relation.None())
	tr := NewTranslator(Dollar)

	sql, _, err := tr.Select(plan, nil, nil, &Limit{Offset: 0, Count: 0}, ProjectionAll())
	require.NoError(t, err)
	assertSQL(t, "SELECT t0.id, t0.title FROM books AS t0", sql)

	sql, _, err = tr.Select(plan, nil, nil, &Limit{Offset: 10, Count: 0}, ProjectionAll())
	require.NoError(t, err)
	assertSQL(t, "SELECT t0.id, t0.title FROM books AS t0 OFFSET 10", sql)
}

func TestSelectOffsetWithoutLimitQuestionStyle(t *testing.T) {
	plan := mustPlan(t, bookMeta, relation.None())

	sql, _, err := NewTranslator(Question).Select(
		plan, nil, nil, &Limit{Offset: 10, Count: 0}, ProjectionAll())
	require.NoError(t, err)
	assertSQL(t, "SELECT t0.id, t0.title FROM books AS t0 LIMIT -1 OFFSET 10", sql)
}

func TestQuestionPlaceholders(t *testing.T) {
	where := predicate.Must(predicate.Eq("username", "bar"))
	plan := mustPlan(t, userMeta, relation.None())

	sql, params, err := NewTranslator(Question).Select(plan, where, nil, nil, ProjectionFields("id"))
	require.NoError(t, err)
	assertSQL(t, "SELECT t0.id FROM users AS t0 WHERE t0.username = ?", sql)
	assert.Equal(t, []any{"bar"}, params)
}

func TestCount(t *testing.T) {
	where := predicate.Must(predicate.Eq("publisher__name", "ACME"))
	plan := mustPlan(t, bookMeta, relation.None(), "publisher__name")

	sql, params, err := NewTranslator(Dollar).Count(plan, where)
	require.NoError(t, err)
	assertSQL(t,
		"SELECT COUNT(*) FROM books AS t0"+
			" INNER JOIN publishers AS t1 ON t0.publisher_id = t1.id"+
			" WHERE t1.name = $1",
		sql)
	assert.Equal(t, []any{"ACME"}, params)
}

func TestDeletePlain(t *testing.T) {
	where := predicate.Must(predicate.Eq("username", "bar"))
	plan := mustPlan(t, userMeta, relation.None())

	sql, params, err := NewTranslator(Dollar).Delete(plan, where)
	require.NoError(t, err)
	assertSQL(t, "DELETE FROM users WHERE username = $1", sql)
	assert.Equal(t, []any{"bar"}, params)
}

func TestDeleteThroughRelationUsesSubquery(t *testing.T) {
	where := predicate.Must(predicate.Eq("publisher__name", "ACME"))
	plan := mustPlan(t, bookMeta, relation.None(), "publisher__name")

	sql, params, err := NewTranslator(Dollar).Delete(plan, where)
	require.NoError(t, err)
	assertSQL(t,
		"DELETE FROM books WHERE id IN ("+
			"SELECT t0.id FROM books AS t0"+
			" INNER JOIN publishers AS t1 ON t0.publisher_id = t1.id"+
			" WHERE t1.name = $1)",
		sql)
	assert.Equal(t, []any{"ACME"}, params)
}

func TestUnresolvedFieldPath(t *testing.T) {
	plan := mustPlan(t, userMeta, relation.None())
	where := predicate.Must(predicate.Eq("nope", 1))

	_, _, err := NewTranslator(Dollar).Select(plan, where, nil, nil, ProjectionAll())
	assert.ErrorIs(t, err, ErrUnresolvedFieldPath)

	_, _, err = NewTranslator(Dollar).Select(plan, nil, nil, nil, ProjectionFields("nope"))
	assert.ErrorIs(t, err, ErrUnresolvedFieldPath)
}

func TestProjectionFieldsThroughRelation(t *testing.T) {
	plan := mustPlan(t, bookMeta, relation.None(), "publisher__name")

	sql, _, err := NewTranslator(Dollar).Select(
		plan, nil, nil, nil, ProjectionFields("title", "publisher__name"))
	require.NoError(t, err)
	assertSQL(t,
		"SELECT t0.title, t1.name FROM books AS t0"+
			" INNER JOIN publishers AS t1 ON t0.publisher_id = t1.id",
		sql)
}
