// Package store implements the Librarian's durable storage engine: a
// single-writer/many-reader SQLite database holding files, symbols, graph
// edges, embeddings, context packs, evidence entries, and the
// coordination counter, grounded on the teacher's connection-setup and
// pragma-tuning discipline (internal/store/local_core.go in the source
// repo this was adapted from).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/librarian-dev/librarian/internal/errs"
	"github.com/librarian-dev/librarian/internal/logging"
)

// Options configures Engine construction, following the project's
// pervasive explicit-options-record pattern.
type Options struct {
	Workspace       string
	RequireVecIndex bool
	BusyTimeoutMS   int
}

// DefaultOptions returns sane defaults for Options.
func DefaultOptions(workspace string) Options {
	return Options{Workspace: workspace, RequireVecIndex: false, BusyTimeoutMS: 5000}
}

// Engine is the storage engine: one write connection (pool size 1) plus a
// read-only pool, backed by a single SQLite file with WAL journaling.
type Engine struct {
	opts Options
	dir  string
	path string

	mu       sync.RWMutex
	writeDB  *sql.DB
	readDB   *sql.DB
	vecReady bool
	vecDim   int

	commitHooksMu sync.Mutex
	commitHooks   []func(events []ChangeEventRow)
}

// Open creates or opens the storage engine for a workspace, running
// pragma tuning and schema initialization before returning.
func Open(ctx context.Context, opts Options) (*Engine, error) {
	dir := filepath.Join(opts.Workspace, ".librarian")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace state dir: %w", err)
	}
	dbPath := filepath.Join(dir, "librarian.db")

	if opts.BusyTimeoutMS <= 0 {
		opts.BusyTimeoutMS = 5000
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on",
		dbPath, opts.BusyTimeoutMS)

	writeDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage engine: %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	readDB, err := sql.Open("sqlite3", dsn+"&mode=ro")
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("failed to open read pool: %w", err)
	}

	e := &Engine{opts: opts, dir: dir, path: dbPath, writeDB: writeDB, readDB: readDB}

	if err := e.initialize(ctx); err != nil {
		writeDB.Close()
		readDB.Close()
		return nil, err
	}

	e.vecReady, e.vecDim = e.detectVecExtension(ctx)
	if opts.RequireVecIndex && !e.vecReady {
		writeDB.Close()
		readDB.Close()
		return nil, fmt.Errorf("sqlite-vec extension required but unavailable")
	}

	logging.Store("storage engine opened: path=%s vec=%v", dbPath, e.vecReady)
	return e, nil
}

// Close closes both connections.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.writeDB.Close(); err != nil {
		return err
	}
	return e.readDB.Close()
}

// Path returns the database file path.
func (e *Engine) Path() string { return e.path }

// VecAvailable reports whether the vec0 ANN extension is active.
func (e *Engine) VecAvailable() bool { return e.vecReady }

const schemaDDL = `
CREATE TABLE IF NOT EXISTS files (
	path TEXT PRIMARY KEY,
	language TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	size INTEGER NOT NULL,
	mod_time INTEGER NOT NULL,
	indexed_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS symbols (
	id TEXT PRIMARY KEY,
	path TEXT NOT NULL,
	kind TEXT NOT NULL,
	name TEXT NOT NULL,
	receiver TEXT,
	signature TEXT,
	visibility TEXT NOT NULL,
	start_line INTEGER NOT NULL,
	end_line INTEGER NOT NULL,
	FOREIGN KEY(path) REFERENCES files(path) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_symbols_path ON symbols(path);
CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);

CREATE TABLE IF NOT EXISTS edges (
	from_id TEXT NOT NULL,
	to_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	resolved INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (from_id, to_id, kind)
);
CREATE INDEX IF NOT EXISTS idx_edges_to ON edges(to_id);
CREATE INDEX IF NOT EXISTS idx_edges_from ON edges(from_id);

CREATE TABLE IF NOT EXISTS vectors (
	subject_id TEXT PRIMARY KEY,
	dim INTEGER NOT NULL,
	provider TEXT NOT NULL,
	values_json TEXT NOT NULL,
	values_blob BLOB
);

CREATE TABLE IF NOT EXISTS evidence_entries (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	subject TEXT NOT NULL,
	payload_json TEXT NOT NULL,
	related_ids_json TEXT,
	confidence REAL NOT NULL,
	severity TEXT,
	reviewer_id TEXT,
	decision TEXT,
	rationale TEXT,
	provenance TEXT,
	content_hash TEXT NOT NULL,
	recorded_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_evidence_subject ON evidence_entries(subject);

CREATE TABLE IF NOT EXISTS claims (
	id TEXT PRIMARY KEY,
	subject TEXT NOT NULL,
	text TEXT NOT NULL,
	confidence REAL NOT NULL,
	band TEXT NOT NULL,
	evidence_ids_json TEXT,
	defeaters_json TEXT,
	next_revalidation_at INTEGER NOT NULL,
	recorded_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS packs (
	fingerprint TEXT PRIMARY KEY,
	intent TEXT NOT NULL,
	depth TEXT NOT NULL,
	payload_json TEXT NOT NULL,
	related_files_json TEXT NOT NULL,
	built_at INTEGER NOT NULL,
	index_version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS change_events (
	version INTEGER NOT NULL,
	path TEXT NOT NULL,
	type TEXT NOT NULL,
	ts INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_change_events_version ON change_events(version);

CREATE TABLE IF NOT EXISTS index_version (
	n INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS store_meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

func (e *Engine) initialize(ctx context.Context) error {
	if _, err := e.writeDB.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	var count int
	if err := e.writeDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM index_version`).Scan(&count); err != nil {
		return fmt.Errorf("failed to check index_version: %w", err)
	}
	if count == 0 {
		if _, err := e.writeDB.ExecContext(ctx, `INSERT INTO index_version(n) VALUES (0)`); err != nil {
			return fmt.Errorf("failed to seed index_version: %w", err)
		}
	}

	if err := RunMigrations(ctx, e.writeDB); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := e.checkDimensionConsistency(ctx); err != nil {
		return err
	}

	return nil
}

func (e *Engine) checkDimensionConsistency(ctx context.Context) error {
	var dimStr string
	err := e.writeDB.QueryRowContext(ctx, `SELECT value FROM store_meta WHERE key = 'embedding_dim'`).Scan(&dimStr)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read embedding_dim: %w", err)
	}
	var recorded int
	if _, err := fmt.Sscanf(dimStr, "%d", &recorded); err != nil {
		return nil
	}
	var actual int
	err = e.writeDB.QueryRowContext(ctx, `SELECT dim FROM vectors LIMIT 1`).Scan(&actual)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return nil
	}
	if actual != recorded {
		return errs.Wrap(errs.KindStorageCorrupt,
			fmt.Sprintf("store_meta=%d actual=%d", recorded, actual), errs.ErrDimensionMismatch)
	}
	return nil
}

// detectVecExtension probes for the sqlite-vec extension by attempting to
// create a scratch vec0 virtual table, mirroring the teacher's
// probe-then-drop discipline.
func (e *Engine) detectVecExtension(ctx context.Context) (bool, int) {
	const probeDim = 8
	_, err := e.writeDB.ExecContext(ctx, fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS vec_probe USING vec0(embedding float[%d])`, probeDim))
	if err != nil {
		logging.StoreDebug("sqlite-vec extension not available: %v", err)
		return false, 0
	}
	e.writeDB.ExecContext(ctx, `DROP TABLE IF EXISTS vec_probe`)
	return true, probeDim
}

// RegisterCommitHook registers a closure invoked synchronously after every
// successful Txn.Commit that recorded at least one change event, with the
// change events written by that transaction. Used by the Pack Assembler to invalidate cached packs
// without the Storage Engine knowing about packs.
func (e *Engine) RegisterCommitHook(fn func(events []ChangeEventRow)) {
	e.commitHooksMu.Lock()
	defer e.commitHooksMu.Unlock()
	e.commitHooks = append(e.commitHooks, fn)
}

func (e *Engine) fireCommitHooks(events []ChangeEventRow) {
	e.commitHooksMu.Lock()
	hooks := append([]func([]ChangeEventRow){}, e.commitHooks...)
	e.commitHooksMu.Unlock()
	for _, h := range hooks {
		h(events)
	}
}
