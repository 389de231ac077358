package store

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	e, err := Open(context.Background(), DefaultOptions(dir))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestOpenCreatesSchema(t *testing.T) {
	e := openTestEngine(t)

	if _, err := e.writeDB.Exec(`SELECT COUNT(*) FROM files`); err != nil {
		t.Errorf("files table missing: %v", err)
	}
	if _, err := e.writeDB.Exec(`SELECT COUNT(*) FROM symbols`); err != nil {
		t.Errorf("symbols table missing: %v", err)
	}

	version, err := e.CurrentVersion(context.Background())
	if err != nil {
		t.Fatalf("CurrentVersion failed: %v", err)
	}
	if version != 0 {
		t.Errorf("expected fresh index_version 0, got %d", version)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	e1, err := Open(ctx, DefaultOptions(dir))
	if err != nil {
		t.Fatalf("first open failed: %v", err)
	}
	e1.Close()

	e2, err := Open(ctx, DefaultOptions(dir))
	if err != nil {
		t.Fatalf("second open failed: %v", err)
	}
	defer e2.Close()

	version, err := e2.CurrentVersion(ctx)
	if err != nil {
		t.Fatalf("CurrentVersion failed: %v", err)
	}
	if version != 0 {
		t.Errorf("expected version to persist at 0, got %d", version)
	}
}

func TestTxnCommitBumpsVersionAtomically(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	txn, err := e.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	txn.RecordChange("a.go", "created")
	txn.RecordChange("b.go", "created")
	if err := txn.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	version, err := e.CurrentVersion(ctx)
	if err != nil {
		t.Fatalf("CurrentVersion failed: %v", err)
	}
	if version != 1 {
		t.Errorf("expected version 1 after one commit with changes, got %d", version)
	}

	events, err := e.GetChangeEvents(ctx, 0)
	if err != nil {
		t.Fatalf("GetChangeEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 change events, got %d", len(events))
	}
	for _, ev := range events {
		if ev.Version != 1 {
			t.Errorf("expected all events stamped with version 1, got %d", ev.Version)
		}
	}
}

func TestTxnWithNoChangesDoesNotBumpVersion(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	txn, err := e.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := txn.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	version, err := e.CurrentVersion(ctx)
	if err != nil {
		t.Fatalf("CurrentVersion failed: %v", err)
	}
	if version != 0 {
		t.Errorf("expected version to stay 0 with no recorded changes, got %d", version)
	}
}

func TestRollbackLeavesNoTrace(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	txn, err := e.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	txn.RecordChange("a.go", "created")
	txn.Rollback()

	version, err := e.CurrentVersion(ctx)
	if err != nil {
		t.Fatalf("CurrentVersion failed: %v", err)
	}
	if version != 0 {
		t.Errorf("expected version to stay 0 after rollback, got %d", version)
	}
}

func TestCommitHookFiresAfterCommit(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	fired := make(chan []ChangeEventRow, 1)
	e.RegisterCommitHook(func(events []ChangeEventRow) {
		fired <- events
	})

	txn, err := e.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	txn.RecordChange("a.go", "modified")
	if err := txn.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	select {
	case events := <-fired:
		if len(events) != 1 || events[0].Path != "a.go" {
			t.Errorf("unexpected events delivered to hook: %+v", events)
		}
	default:
		t.Error("commit hook did not fire synchronously")
	}
}

func TestDetectVecExtensionDoesNotPanicWithoutExtension(t *testing.T) {
	e := openTestEngine(t)
	// The mattn/go-sqlite3 driver in this environment may or may not have
	// sqlite-vec loaded; either outcome is acceptable, the probe must
	// simply not crash the engine.
	_ = e.VecAvailable()
}

func TestLockAcquireAndReleaseRoundTrip(t *testing.T) {
	dir := t.TempDir()
	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	if _, err := AcquireLock(dir); err == nil {
		t.Error("expected second AcquireLock to fail while first lock held")
	}
	if err := lock.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	lock2, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("AcquireLock after release failed: %v", err)
	}
	lock2.Unlock()
}

func TestRecoverCorruptStoreQuarantines(t *testing.T) {
	ws := t.TempDir()
	eng, err := Open(context.Background(), DefaultOptions(ws))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	dbPath := eng.Path()
	eng.Close()

	result, err := RecoverCorruptStore(ws)
	if err != nil {
		t.Fatalf("RecoverCorruptStore failed: %v", err)
	}
	if !result.Recovered {
		t.Error("expected RecoverCorruptStore to quarantine the existing db file")
	}
	if _, statErr := filepath.Glob(dbPath + ".corrupt.*"); statErr != nil {
		t.Errorf("glob failed: %v", statErr)
	}
}
