package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"

	"github.com/jackc/pgconn"
	"github.com/mattn/go-sqlite3"

	"github.com/yourorg/market-cache/internal/core"
)

// classify maps driver errors onto the fabric's error kinds. A unique-key
// collision reaching us without a conflict clause is a programmer error,
// not an availability problem.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return core.WrapError(core.ErrInternal, err)
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return core.WrapError(core.ErrInternal, err)
	}

	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, sql.ErrConnDone) {
		return core.WrapError(core.ErrStorageUnavailable, err)
	}

	// Remaining driver failures are treated as the store being unreachable;
	// callers retry once or surface them.
	return core.WrapError(core.ErrStorageUnavailable, err)
}
