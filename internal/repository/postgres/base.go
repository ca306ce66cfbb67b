// Package postgres implements repository.Store on PostgreSQL with sqlx.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/kmc/ehr-api/internal/repository"
	"github.com/kmc/ehr-api/pkg/metrics"
)

// Postgres error codes translated into repository errors.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
	codeNotNullViolation    = "23502"
)

// BaseRepository carries the connection or transaction every repository
// runs its statements on.
type BaseRepository struct {
	q       sqlx.ExtContext
	metrics *metrics.Metrics
}

// done records the call and translates err into a repository error.
func (r BaseRepository) done(op string, start time.Time, err error) error {
	err = mapError(err)
	if errors.Is(err, repository.ErrNotFound) {
		r.metrics.ObserveDB(op, start, nil)
	} else {
		r.metrics.ObserveDB(op, start, err)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r BaseRepository) get(ctx context.Context, op string, dest interface{}, query string, args ...interface{}) error {
	start := time.Now()
	return r.done(op, start, sqlx.GetContext(ctx, r.q, dest, query, args...))
}

func (r BaseRepository) selectAll(ctx context.Context, op string, dest interface{}, query string, args ...interface{}) error {
	start := time.Now()
	return r.done(op, start, sqlx.SelectContext(ctx, r.q, dest, query, args...))
}

// insert runs a named INSERT ... RETURNING id and stores the id in *id.
func (r BaseRepository) insert(ctx context.Context, op string, id *int64, query string, arg interface{}) error {
	start := time.Now()
	bound, args, err := r.q.BindNamed(query, arg)
	if err != nil {
		return r.done(op, start, err)
	}
	return r.done(op, start, r.q.QueryRowxContext(ctx, bound, args...).Scan(id))
}

// execNamed runs a named statement and returns ErrNotFound when it touched
// no row.
func (r BaseRepository) execNamed(ctx context.Context, op string, query string, arg interface{}) error {
	start := time.Now()
	res, err := sqlx.NamedExecContext(ctx, r.q, query, arg)
	return r.done(op, start, affected(res, err))
}

// exec runs a positional statement and returns ErrNotFound when it touched
// no row.
func (r BaseRepository) exec(ctx context.Context, op string, query string, args ...interface{}) error {
	start := time.Now()
	res, err := r.q.ExecContext(ctx, query, args...)
	return r.done(op, start, affected(res, err))
}

// execAny runs a statement for which touching no row is fine.
func (r BaseRepository) execAny(ctx context.Context, op string, query string, args ...interface{}) error {
	start := time.Now()
	_, err := r.q.ExecContext(ctx, query, args...)
	return r.done(op, start, err)
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// mapError translates driver errors into the repository error values the
// services understand. Other errors pass through unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch string(pqErr.Code) {
	case codeUniqueViolation:
		return fmt.Errorf("%w: %s", repository.ErrDuplicate, pqErr.Constraint)
	case codeForeignKeyViolation:
		return fmt.Errorf("%w: %s", repository.ErrReferenced, pqErr.Constraint)
	case codeCheckViolation, codeNotNullViolation:
		return fmt.Errorf("%w: %s", repository.ErrConstraint, constraintName(pqErr))
	}
	return err
}

func constraintName(e *pq.Error) string {
	if e.Constraint != "" {
		return e.Constraint
	}
	return strings.TrimSpace(e.Column)
}

// pageClause renders LIMIT/OFFSET for the next two placeholders after n.
func pageClause(n int) string {
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", n+1, n+2)
}
