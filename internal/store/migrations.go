package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/librarian-dev/librarian/internal/logging"
)

// CurrentSchemaVersion is the highest migration index RunMigrations applies.
const CurrentSchemaVersion = 2

// Migration is one additive, idempotent schema change: add a column to an
// existing table if it isn't already there. Migrations never drop or
// rename columns, so a partially-applied migration set is always safe to
// retry.
type Migration struct {
	Version int
	Table   string
	Column  string
	DDLType string
}

// pendingMigrations lists every column ever added to the base schema after
// its initial release. The base schemaDDL in store.go is always the latest
// shape for a fresh database; this list only matters for databases created
// by an older binary.
var pendingMigrations = []Migration{
	{Version: 1, Table: "symbols", Column: "doc_comment", DDLType: "TEXT"},
	{Version: 2, Table: "evidence_entries", Column: "provenance", DDLType: "TEXT"},
	{Version: 2, Table: "claims", Column: "evidence_ids_json", DDLType: "TEXT"},
	{Version: 2, Table: "claims", Column: "defeaters_json", DDLType: "TEXT"},
}

// RunMigrations applies every pending migration whose target table exists
// and whose column is missing. A migration against a table that doesn't
// exist is skipped quietly: that table will be created with the latest
// shape by schemaDDL already having run.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	for _, m := range pendingMigrations {
		exists, err := tableExists(ctx, db, m.Table)
		if err != nil {
			return fmt.Errorf("failed to check table %s: %w", m.Table, err)
		}
		if !exists {
			continue
		}

		has, err := columnExists(ctx, db, m.Table, m.Column)
		if err != nil {
			return fmt.Errorf("failed to check column %s.%s: %w", m.Table, m.Column, err)
		}
		if has {
			continue
		}

		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.DDLType)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			logging.StoreWarn("migration v%d (%s.%s) failed, continuing: %v", m.Version, m.Table, m.Column, err)
			continue
		}
		logging.Store("applied migration v%d: %s.%s %s", m.Version, m.Table, m.Column, m.DDLType)
	}
	return nil
}

func tableExists(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func columnExists(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dfltValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
