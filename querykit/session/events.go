package session

import (
	"time"
)

// QueryStartedEvent is emitted by an observed connection before a statement
// is handed to the driver.
type QueryStartedEvent struct {
	Query  string
	Params []any
}

// QueryEndedEvent is emitted after the driver returns.
type QueryEndedEvent struct {
	Query        string
	Params       []any
	Err          error
	ResponseTime time.Duration
}

// QueryObserver receives statement lifecycle events. The engine itself does
// not log; this is the seam callers instrument.
type QueryObserver interface {
	QueryStarted(QueryStartedEvent)
	QueryEnded(QueryEndedEvent)
}

// Observe wraps conn so every statement notifies observer.
func Observe(conn DbConnection, observer QueryObserver) DbConnection {
	return &observedConnection{conn: conn, observer: observer}
}

type observedConnection struct {
	conn     DbConnection
	observer QueryObserver
}

func (c *observedConnection) Exec(query string, args ...any) (Result, error) {
	started := time.Now()
	c.observer.QueryStarted(QueryStartedEvent{Query: query, Params: args})
	res, err := c.conn.Exec(query, args...)
	c.observer.QueryEnded(QueryEndedEvent{Query: query, Params: args, Err: err, ResponseTime: time.Since(started)})
	return res, err
}

func (c *observedConnection) Query(query string, args ...any) (Rows, error) {
	started := time.Now()
	c.observer.QueryStarted(QueryStartedEvent{Query: query, Params: args})
	rows, err := c.conn.Query(query, args...)
	c.observer.QueryEnded(QueryEndedEvent{Query: query, Params: args, Err: err, ResponseTime: time.Since(started)})
	return rows, err
}

func (c *observedConnection) QueryRow(query string, args ...any) Row {
	started := time.Now()
	c.observer.QueryStarted(QueryStartedEvent{Query: query, Params: args})
	row := c.conn.QueryRow(query, args...)
	c.observer.QueryEnded(QueryEndedEvent{Query: query, Params: args, ResponseTime: time.Since(started)})
	return row
}
