// Package sql backs a session with database/sql, for drivers such as
// mattn/go-sqlite3. Pair it with the Question placeholder style.
package sql

import (
	"context"
	"database/sql"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/krew-solutions/querykit-go/querykit/session"
	"github.com/krew-solutions/querykit-go/querykit/session/result"
	"github.com/krew-solutions/querykit-go/querykit/utils"
)

func NewSession(ctx context.Context, db *sql.DB) *Session {
	return &Session{ctx: ctx, db: db, exec: db}
}

type Session struct {
	ctx  context.Context
	db   *sql.DB // nil inside a transaction
	exec dbExecutor
}

func (s *Session) Context() context.Context {
	return s.ctx
}

func (s *Session) Connection() session.DbConnection {
	return &connection{ctx: s.ctx, exec: s.exec}
}

func (s *Session) Atomic(callback session.SessionCallback) error {
	// TODO: support savepoints for nested Atomic calls:
	// https://github.com/golang/go/issues/7898#issuecomment-580080390
	if s.db == nil {
		return errors.New("nested transactions are not supported by the database/sql backend")
	}
	tx, err := s.db.BeginTx(s.ctx, nil)
	if err != nil {
		return errors.Wrap(err, "unable to start transaction")
	}
	txSession := &Session{ctx: s.ctx, exec: tx}
	err = callback(txSession)
	if err != nil {
		if txErr := tx.Rollback(); txErr != nil {
			return multierror.Append(err, txErr)
		}
		return err
	}
	if txErr := tx.Commit(); txErr != nil {
		return errors.Wrap(txErr, "failed to commit tx")
	}
	return nil
}

// dbExecutor is the part of *sql.DB and *sql.Tx the session uses.
type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type connection struct {
	ctx  context.Context
	exec dbExecutor
}

func (c *connection) Exec(query string, args ...any) (session.Result, error) {
	if utils.IsAutoincrementInsertQuery(query) {
		return c.insert(query, args...)
	}
	return c.exec.ExecContext(c.ctx, query, args...)
}

func (c *connection) insert(query string, args ...any) (session.Result, error) {
	var id int64
	err := c.exec.QueryRowContext(c.ctx, query, args...).Scan(&id)
	if err != nil {
		return nil, err
	}
	return result.NewResult(id, 0), nil
}

func (c *connection) Query(query string, args ...any) (session.Rows, error) {
	return c.exec.QueryContext(c.ctx, query, args...)
}

func (c *connection) QueryRow(query string, args ...any) session.Row {
	return c.exec.QueryRowContext(c.ctx, query, args...)
}
