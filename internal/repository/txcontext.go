package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/notifar/notifar/internal/apperr"
	"github.com/notifar/notifar/internal/dialect"
)

// DBContext pairs a pooled database handle with its SQL dialect. Callers that
// own transaction boundaries Begin here and pass the resulting tx (or the bare
// handle for read-only work) down to store methods as an sqlx.ExtContext.
type DBContext struct {
	db      *sqlx.DB
	dialect dialect.Dialect
}

func NewDBContext(db *sqlx.DB, d dialect.Dialect) *DBContext {
	return &DBContext{db: db, dialect: d}
}

// Connect opens and pings a database for the given driver and wraps it with
// the dialect.
func Connect(driver, dsn string, d dialect.Dialect) (*DBContext, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, apperr.Store("connect "+driver, err)
	}
	return &DBContext{db: db, dialect: d}, nil
}

func (c *DBContext) DB() *sqlx.DB             { return c.db }
func (c *DBContext) Dialect() dialect.Dialect { return c.dialect }

// Begin opens an explicit transaction. The caller must pair it with Commit or
// Rollback; a deferred Rollback after Commit is a no-op.
func (c *DBContext) Begin(ctx context.Context) (*sqlx.Tx, error) {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, apperr.Transaction("begin", err)
	}
	return tx, nil
}

func (c *DBContext) Close() error {
	return c.db.Close()
}

// ArchiveContexts holds the two sides of an archival run. Source is the live
// store; Destination may be a different physical database, so the two are
// never coordinated by a shared transaction.
type ArchiveContexts struct {
	Source      *DBContext
	Destination *DBContext
}
