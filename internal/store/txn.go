package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"
)

// ChangeEventRow is one row of the change_events table.
type ChangeEventRow struct {
	Version int64
	Path    string
	Type    string
	At      time.Time
}

// Txn wraps a *sql.Tx and accumulates the change events it will write on
// Commit. A transaction that is never committed leaves no trace: the
// version counter and change log are only touched inside Commit itself.
type Txn struct {
	engine  *Engine
	tx      *sql.Tx
	pending []ChangeEventRow
	done    bool
}

// Begin starts a new write transaction. Begin itself performs no writes.
func (e *Engine) Begin(ctx context.Context) (*Txn, error) {
	tx, err := e.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Txn{engine: e, tx: tx}, nil
}

// Tx exposes the underlying *sql.Tx for statements other store files
// issue within the same transaction.
func (t *Txn) Tx() *sql.Tx { return t.tx }

// RecordChange queues a change event to be written atomically with the
// version bump at Commit time.
func (t *Txn) RecordChange(path, changeType string) {
	t.pending = append(t.pending, ChangeEventRow{Path: path, Type: changeType, At: time.Now()})
}

// Commit atomically bumps the coordination counter, writes the queued
// change events at that new version, and commits the underlying
// transaction. On success it fires registered commit hooks (outside the
// lock, after the transaction is durable).
func (t *Txn) Commit(ctx context.Context) error {
	if t.done {
		return fmt.Errorf("transaction already finished")
	}
	t.done = true

	var nextVersion int64
	if len(t.pending) > 0 {
		row := t.tx.QueryRowContext(ctx, `SELECT n FROM index_version`)
		if err := row.Scan(&nextVersion); err != nil {
			t.tx.Rollback()
			return fmt.Errorf("failed to read index_version: %w", err)
		}
		nextVersion++

		if _, err := t.tx.ExecContext(ctx, `UPDATE index_version SET n = ?`, nextVersion); err != nil {
			t.tx.Rollback()
			return fmt.Errorf("failed to bump index_version: %w", err)
		}

		stmt, err := t.tx.PrepareContext(ctx, `INSERT INTO change_events(version, path, type, ts) VALUES (?, ?, ?, ?)`)
		if err != nil {
			t.tx.Rollback()
			return fmt.Errorf("failed to prepare change_events insert: %w", err)
		}
		for i := range t.pending {
			t.pending[i].Version = nextVersion
			if _, err := stmt.ExecContext(ctx, nextVersion, t.pending[i].Path, t.pending[i].Type, t.pending[i].At.UnixNano()); err != nil {
				stmt.Close()
				t.tx.Rollback()
				return fmt.Errorf("failed to insert change event: %w", err)
			}
		}
		stmt.Close()
	}

	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	if len(t.pending) > 0 {
		t.engine.fireCommitHooks(t.pending)
	}
	return nil
}

// Rollback aborts the transaction. Safe to call after Commit (no-op).
func (t *Txn) Rollback() {
	if t.done {
		return
	}
	t.done = true
	t.tx.Rollback()
}

// CurrentVersion returns the coordination counter's current value.
func (e *Engine) CurrentVersion(ctx context.Context) (int64, error) {
	var n int64
	err := e.readDB.QueryRowContext(ctx, `SELECT n FROM index_version`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to read index_version: %w", err)
	}
	return n, nil
}

// GetChangeEvents returns change events strictly after sinceVersion,
// optionally filtered to paths matching any of the given glob selectors,
// in ascending version order.
func (e *Engine) GetChangeEvents(ctx context.Context, sinceVersion int64, selectors ...string) ([]ChangeEventRow, error) {
	rows, err := e.readDB.QueryContext(ctx,
		`SELECT version, path, type, ts FROM change_events WHERE version > ? ORDER BY version ASC`, sinceVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to query change events: %w", err)
	}
	defer rows.Close()

	var out []ChangeEventRow
	for rows.Next() {
		var r ChangeEventRow
		var ts int64
		if err := rows.Scan(&r.Version, &r.Path, &r.Type, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan change event: %w", err)
		}
		r.At = time.Unix(0, ts)
		if len(selectors) == 0 || matchesAny(r.Path, selectors) {
			out = append(out, r)
		}
	}
	return out, rows.Err()
}

func matchesAny(path string, selectors []string) bool {
	for _, sel := range selectors {
		if ok, err := filepath.Match(sel, path); err == nil && ok {
			return true
		}
	}
	return false
}
