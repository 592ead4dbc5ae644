package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Busy-retry tuning. The archive has one writer at a time (a scrape or a
// replay) but the viewer reads concurrently; WAL keeps readers off the
// writer's back, so a BUSY is short-lived and a few spaced attempts clear it.
const (
	busyAttempts = 3
	busyBackoff  = 100 * time.Millisecond
)

// IsBusy reports whether err is SQLite's BUSY/locked condition, matched on
// message text because the driver exports no typed error for it.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	for _, marker := range []string{"SQLITE_BUSY", "database is locked", "database table is locked"} {
		if strings.Contains(err.Error(), marker) {
			return true
		}
	}
	return false
}

// RunTx runs fn inside a transaction, retrying the whole transaction while
// the database reports BUSY. fn must be safe to re-run from scratch; errors
// from fn come back unwrapped so callers can match their own sentinels.
func RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	return withBusyRetry(ctx, func() error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("dbopen: begin tx: %w", err)
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("dbopen: commit: %w", err)
		}
		return nil
	})
}

// Exec runs one statement with the same BUSY retry as RunTx.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := withBusyRetry(ctx, func() error {
		var err error
		res, err = db.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// withBusyRetry runs op up to busyAttempts times with linear backoff between
// attempts. Anything other than a BUSY error returns immediately; after the
// last attempt the BUSY error itself comes back.
func withBusyRetry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 1; attempt <= busyAttempts; attempt++ {
		err = op()
		if err == nil || !IsBusy(err) {
			return err
		}
		if attempt == busyAttempts {
			break
		}
		timer := time.NewTimer(time.Duration(attempt) * busyBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("dbopen: retry wait: %w", ctx.Err())
		case <-timer.C:
		}
	}
	return err
}
