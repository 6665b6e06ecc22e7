package queryset

import (
	"context"

	"github.com/krew-solutions/querykit-go/querykit/session"
	"github.com/krew-solutions/querykit-go/querykit/session/result"
)

// fakeSession records every statement and serves canned rows, so the
// materializer tests can assert on rendered SQL and round-trip counts
// without a database.
type fakeSession struct {
	conn *fakeConn
}

func newFakeSession() *fakeSession {
	return &fakeSession{conn: &fakeConn{}}
}

func (s *fakeSession) Context() context.Context { return context.Background() }

func (s *fakeSession) Atomic(cb session.SessionCallback) error { return cb(s) }

func (s *fakeSession) Connection() session.DbConnection { return s.conn }

type capturedQuery struct {
	sql    string
	params []any
}

type fakeConn struct {
	queries  []capturedQuery
	rows     [][]any // served by Query
	rowValue []any   // served by QueryRow
	execErr  error
	affected int64
}

func (c *fakeConn) Exec(query string, args ...any) (session.Result, error) {
	c.queries = append(c.queries, capturedQuery{sql: query, params: args})
	if c.execErr != nil {
		return nil, c.execErr
	}
	return result.NewResult(0, c.affected), nil
}

func (c *fakeConn) Query(query string, args ...any) (session.Rows, error) {
	c.queries = append(c.queries, capturedQuery{sql: query, params: args})
	return &fakeRows{rows: c.rows}, nil
}

func (c *fakeConn) QueryRow(query string, args ...any) session.Row {
	c.queries = append(c.queries, capturedQuery{sql: query, params: args})
	return &fakeRow{values: c.rowValue}
}

type fakeRows struct {
	rows [][]any
	i    int
}

func (r *fakeRows) Close() error { return nil }
func (r *fakeRows) Err() error   { return nil }

func (r *fakeRows) Next() bool {
	if r.i >= len(r.rows) {
		return false
	}
	r.i++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.i-1]
	for i, d := range dest {
		*d.(*any) = row[i]
	}
	return nil
}

type fakeRow struct {
	values []any
}

func (r *fakeRow) Err() error { return nil }

func (r *fakeRow) Scan(dest ...any) error {
	for i, d := range dest {
		switch p := d.(type) {
		case *int64:
			*p = r.values[i].(int64)
		case *any:
			*p = r.values[i]
		}
	}
	return nil
}
