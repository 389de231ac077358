package graph

import (
	"context"
	"testing"

	"go.uber.org/goleak"

	"github.com/librarian-dev/librarian/internal/store"
	"github.com/librarian-dev/librarian/internal/types"
)

// TestMain guards the mangle.Engine lifecycle this package owns: a
// Projection that forgets to release its Datalog engine would otherwise
// leak whatever background goroutines Mangle's evaluator starts. Grounded
// on the teacher's own internal/mangle/engine_test.go TestMain.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	)
}

func openTestProjection(t *testing.T) (*Projection, *store.Engine) {
	t.Helper()
	dir := t.TempDir()
	engine, err := store.Open(context.Background(), store.DefaultOptions(dir))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { engine.Close() })
	return New(engine), engine
}

func seedChain(t *testing.T, engine *store.Engine, ids ...string) {
	t.Helper()
	txn, err := engine.Begin(context.Background())
	if err != nil {
		t.Fatalf("failed to begin txn: %v", err)
	}
	for _, id := range ids {
		path := id + ".go"
		if err := txn.UpsertFile(context.Background(), types.File{Path: path, Language: "go"}); err != nil {
			t.Fatalf("UpsertFile failed: %v", err)
		}
		if err := txn.ReplaceSymbols(context.Background(), path, []types.Symbol{
			{ID: id, Path: path, Kind: types.SymbolFunction, Name: id},
		}); err != nil {
			t.Fatalf("ReplaceSymbols failed: %v", err)
		}
	}
	for i := 0; i < len(ids)-1; i++ {
		if err := txn.ReplaceEdgesFrom(context.Background(), []string{ids[i]}, []types.Edge{
			{FromID: ids[i], ToID: ids[i+1], Kind: types.EdgeCalls, Resolved: true},
		}); err != nil {
			t.Fatalf("ReplaceEdgesFrom failed: %v", err)
		}
	}
	if err := txn.Commit(context.Background()); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
}

func TestTransitiveDependenciesFollowsChainForward(t *testing.T) {
	p, engine := openTestProjection(t)
	seedChain(t, engine, "a", "b", "c")

	deps, err := p.TransitiveDependencies(context.Background(), "a")
	if err != nil {
		t.Fatalf("TransitiveDependencies failed: %v", err)
	}
	want := map[string]bool{"b": false, "c": false}
	for _, id := range deps {
		if _, ok := want[id]; ok {
			want[id] = true
		}
	}
	for id, seen := range want {
		if !seen {
			t.Errorf("expected %s reachable from a, got %v", id, deps)
		}
	}
}

func TestTransitiveDependentsFollowsChainBackward(t *testing.T) {
	p, engine := openTestProjection(t)
	seedChain(t, engine, "a", "b", "c")

	dependents, err := p.TransitiveDependents(context.Background(), "c")
	if err != nil {
		t.Fatalf("TransitiveDependents failed: %v", err)
	}
	want := map[string]bool{"a": false, "b": false}
	for _, id := range dependents {
		if _, ok := want[id]; ok {
			want[id] = true
		}
	}
	for id, seen := range want {
		if !seen {
			t.Errorf("expected %s to transitively depend on c, got %v", id, dependents)
		}
	}
}

func TestRefreshRebuildsAfterVersionAdvance(t *testing.T) {
	p, engine := openTestProjection(t)
	seedChain(t, engine, "a", "b")

	if deps, err := p.TransitiveDependencies(context.Background(), "a"); err != nil || len(deps) != 1 {
		t.Fatalf("expected a->b before extension, got %v err=%v", deps, err)
	}

	seedChain(t, engine, "b", "c")

	deps, err := p.TransitiveDependencies(context.Background(), "a")
	if err != nil {
		t.Fatalf("TransitiveDependencies failed: %v", err)
	}
	var sawC bool
	for _, id := range deps {
		if id == "c" {
			sawC = true
		}
	}
	if !sawC {
		t.Errorf("expected the projection to pick up the new b->c edge after a version advance, got %v", deps)
	}
}
