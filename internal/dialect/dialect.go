// Package dialect isolates the SQL that differs between database vendors:
// pagination clauses, boolean literal encoding, generated-key retrieval and
// duplicate-safe inserts. Store code is written once against this interface
// with `?` placeholders and rebinds per dialect.
package dialect

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type Dialect interface {
	Name() string
	// BindType is the sqlx bindvar style (sqlx.DOLLAR, sqlx.QUESTION, ...).
	BindType() int
	// Rebind converts a `?`-style query to this dialect's placeholder style.
	Rebind(query string) string
	// LimitOffset builds the pagination clause appended after ORDER BY.
	LimitOffset(limit, offset int) string
	// Bool encodes a boolean parameter (native boolean vs 0/1 integer).
	Bool(b bool) interface{}
	// InsertWithID executes an INSERT (written without placeholders rebinding
	// applied) and returns the generated key from idColumn, using RETURNING
	// where the vendor supports it and LastInsertId elsewhere.
	InsertWithID(ctx context.Context, ext sqlx.ExtContext, query, idColumn string, args ...interface{}) (int64, error)
	// InsertIgnore rewrites an INSERT so rows conflicting on the given columns
	// are skipped rather than erroring. Dialects without such a clause return
	// the statement unchanged; callers must pre-filter duplicates then.
	InsertIgnore(insert string, conflictColumns ...string) string
}

// ForName resolves a dialect by its configuration name.
func ForName(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql", "pg":
		return Postgres{}, nil
	case "sqlite", "sqlite3":
		return SQLite{}, nil
	case "mysql", "mariadb":
		return MySQL{}, nil
	case "ansi", "generic", "":
		return ANSI{}, nil
	}
	return nil, errors.Errorf("unknown SQL dialect %q", name)
}

type Postgres struct{}

func (Postgres) Name() string  { return "postgres" }
func (Postgres) BindType() int { return sqlx.DOLLAR }

func (d Postgres) Rebind(q string) string {
	return sqlx.Rebind(sqlx.DOLLAR, q)
}

func (Postgres) LimitOffset(limit, offset int) string {
	return fmt.Sprintf("LIMIT %d OFFSET %d", limit, offset)
}

func (Postgres) Bool(b bool) interface{} { return b }

func (d Postgres) InsertWithID(ctx context.Context, ext sqlx.ExtContext, query, idColumn string, args ...interface{}) (int64, error) {
	var id int64
	stmt := d.Rebind(query + " RETURNING " + idColumn)
	if err := sqlx.GetContext(ctx, ext, &id, stmt, args...); err != nil {
		return 0, err
	}
	return id, nil
}

func (Postgres) InsertIgnore(insert string, conflictColumns ...string) string {
	if len(conflictColumns) == 0 {
		return insert + " ON CONFLICT DO NOTHING"
	}
	return insert + " ON CONFLICT (" + strings.Join(conflictColumns, ", ") + ") DO NOTHING"
}

type SQLite struct{}

func (SQLite) Name() string  { return "sqlite" }
func (SQLite) BindType() int { return sqlx.QUESTION }

func (SQLite) Rebind(q string) string {
	return q
}

func (SQLite) LimitOffset(limit, offset int) string {
	return fmt.Sprintf("LIMIT %d OFFSET %d", limit, offset)
}

// SQLite stores booleans as integers.
func (SQLite) Bool(b bool) interface{} {
	if b {
		return 1
	}
	return 0
}

func (SQLite) InsertWithID(ctx context.Context, ext sqlx.ExtContext, query, idColumn string, args ...interface{}) (int64, error) {
	res, err := ext.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (SQLite) InsertIgnore(insert string, conflictColumns ...string) string {
	return strings.Replace(insert, "INSERT", "INSERT OR IGNORE", 1)
}

type MySQL struct{}

func (MySQL) Name() string  { return "mysql" }
func (MySQL) BindType() int { return sqlx.QUESTION }

func (MySQL) Rebind(q string) string {
	return q
}

func (MySQL) LimitOffset(limit, offset int) string {
	return fmt.Sprintf("LIMIT %d OFFSET %d", limit, offset)
}

func (MySQL) Bool(b bool) interface{} {
	if b {
		return 1
	}
	return 0
}

func (MySQL) InsertWithID(ctx context.Context, ext sqlx.ExtContext, query, idColumn string, args ...interface{}) (int64, error) {
	res, err := ext.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (MySQL) InsertIgnore(insert string, conflictColumns ...string) string {
	return strings.Replace(insert, "INSERT", "INSERT IGNORE", 1)
}

// ANSI is the lowest-common-denominator fallback: standard OFFSET/FETCH
// pagination, integer booleans, no conflict-ignore clause.
type ANSI struct{}

func (ANSI) Name() string  { return "ansi" }
func (ANSI) BindType() int { return sqlx.QUESTION }

func (ANSI) Rebind(q string) string {
	return q
}

func (ANSI) LimitOffset(limit, offset int) string {
	return fmt.Sprintf("OFFSET %d ROWS FETCH NEXT %d ROWS ONLY", offset, limit)
}

func (ANSI) Bool(b bool) interface{} {
	if b {
		return 1
	}
	return 0
}

func (ANSI) InsertWithID(ctx context.Context, ext sqlx.ExtContext, query, idColumn string, args ...interface{}) (int64, error) {
	res, err := ext.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (ANSI) InsertIgnore(insert string, conflictColumns ...string) string {
	return insert
}
