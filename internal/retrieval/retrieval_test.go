package retrieval

import (
	"context"
	"testing"

	"github.com/librarian-dev/librarian/internal/store"
	"github.com/librarian-dev/librarian/internal/types"
)

func openTestRetriever(t *testing.T) (*Retriever, *store.Engine) {
	t.Helper()
	dir := t.TempDir()
	engine, err := store.Open(context.Background(), store.DefaultOptions(dir))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { engine.Close() })
	return New(DefaultOptions(), engine, nil), engine
}

func seedSymbols(t *testing.T, engine *store.Engine, symbols []types.Symbol) {
	t.Helper()
	txn, err := engine.Begin(context.Background())
	if err != nil {
		t.Fatalf("failed to begin txn: %v", err)
	}
	byPath := map[string][]types.Symbol{}
	for _, s := range symbols {
		byPath[s.Path] = append(byPath[s.Path], s)
	}
	for path, syms := range byPath {
		if err := txn.UpsertFile(context.Background(), types.File{Path: path, Language: "go"}); err != nil {
			t.Fatalf("UpsertFile failed: %v", err)
		}
		if err := txn.ReplaceSymbols(context.Background(), path, syms); err != nil {
			t.Fatalf("ReplaceSymbols failed: %v", err)
		}
	}
	if err := txn.Commit(context.Background()); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
}

func TestSearchL0FindsExactNameMatch(t *testing.T) {
	r, engine := openTestRetriever(t)
	seedSymbols(t, engine, []types.Symbol{
		{ID: "s1", Path: "a.go", Kind: types.SymbolFunction, Name: "ParseConfig", Signature: "func ParseConfig()"},
		{ID: "s2", Path: "b.go", Kind: types.SymbolFunction, Name: "WriteConfig", Signature: "func WriteConfig()"},
	})

	hits, err := r.Search(context.Background(), "ParseConfig", DepthL0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 1 || hits[0].SymbolID != "s1" {
		t.Fatalf("expected exactly s1, got %+v", hits)
	}
}

func TestSearchL1FindsFuzzyMatch(t *testing.T) {
	r, engine := openTestRetriever(t)
	seedSymbols(t, engine, []types.Symbol{
		{ID: "s1", Path: "a.go", Kind: types.SymbolFunction, Name: "ParseConfig", Signature: "func ParseConfig()"},
	})

	hits, err := r.Search(context.Background(), "ParsConfig", DepthL1) // one char dropped
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) == 0 || hits[0].SymbolID != "s1" {
		t.Fatalf("expected fuzzy match to find s1, got %+v", hits)
	}
}

func TestSearchL0DoesNotFuzzyMatch(t *testing.T) {
	r, engine := openTestRetriever(t)
	seedSymbols(t, engine, []types.Symbol{
		{ID: "s1", Path: "a.go", Kind: types.SymbolFunction, Name: "ParseConfig", Signature: "func ParseConfig()"},
	})

	hits, err := r.Search(context.Background(), "ParsConfig", DepthL0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected L0 to skip fuzzy matching, got %+v", hits)
	}
}

func TestSearchL2ExpandsViaGraph(t *testing.T) {
	r, engine := openTestRetriever(t)
	seedSymbols(t, engine, []types.Symbol{
		{ID: "caller", Path: "a.go", Kind: types.SymbolFunction, Name: "Caller", Signature: "func Caller()"},
		{ID: "callee", Path: "b.go", Kind: types.SymbolFunction, Name: "Callee", Signature: "func Callee()"},
	})

	txn, err := engine.Begin(context.Background())
	if err != nil {
		t.Fatalf("failed to begin txn: %v", err)
	}
	if err := txn.ReplaceEdgesFrom(context.Background(), []string{"caller"},
		[]types.Edge{{FromID: "caller", ToID: "callee", Kind: types.EdgeCalls, Resolved: true}}); err != nil {
		t.Fatalf("ReplaceEdgesFrom failed: %v", err)
	}
	if err := txn.Commit(context.Background()); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	hits, err := r.Search(context.Background(), "Caller", DepthL2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	var sawCallee bool
	for _, h := range hits {
		if h.SymbolID == "callee" {
			sawCallee = true
		}
	}
	if !sawCallee {
		t.Errorf("expected L2 expansion to include callee, got %+v", hits)
	}
}

func TestSearchTieBreaksLexicographically(t *testing.T) {
	r, engine := openTestRetriever(t)
	seedSymbols(t, engine, []types.Symbol{
		{ID: "zzz", Path: "z.go", Kind: types.SymbolFunction, Name: "Handle", Signature: "func Handle()"},
		{ID: "aaa", Path: "a.go", Kind: types.SymbolFunction, Name: "Handle", Signature: "func Handle()"},
	})

	hits, err := r.Search(context.Background(), "Handle", DepthL0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 2 || hits[0].SymbolID != "aaa" || hits[1].SymbolID != "zzz" {
		t.Fatalf("expected lexicographic tie-break ordering [aaa zzz], got %+v", hits)
	}
}

func TestImpactRadiusFollowsMultiHopChain(t *testing.T) {
	r, engine := openTestRetriever(t)
	seedSymbols(t, engine, []types.Symbol{
		{ID: "a", Path: "a.go", Kind: types.SymbolFunction, Name: "A", Signature: "func A()"},
		{ID: "b", Path: "b.go", Kind: types.SymbolFunction, Name: "B", Signature: "func B()"},
		{ID: "c", Path: "c.go", Kind: types.SymbolFunction, Name: "C", Signature: "func C()"},
	})

	txn, err := engine.Begin(context.Background())
	if err != nil {
		t.Fatalf("failed to begin txn: %v", err)
	}
	// a -> b -> c: a chain deeper than the default single-hop L2 expansion.
	if err := txn.ReplaceEdgesFrom(context.Background(), []string{"a"},
		[]types.Edge{{FromID: "a", ToID: "b", Kind: types.EdgeCalls, Resolved: true}}); err != nil {
		t.Fatalf("ReplaceEdgesFrom failed: %v", err)
	}
	if err := txn.ReplaceEdgesFrom(context.Background(), []string{"b"},
		[]types.Edge{{FromID: "b", ToID: "c", Kind: types.EdgeCalls, Resolved: true}}); err != nil {
		t.Fatalf("ReplaceEdgesFrom failed: %v", err)
	}
	if err := txn.Commit(context.Background()); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	impacted, err := r.ImpactRadius(context.Background(), "c")
	if err != nil {
		t.Fatalf("ImpactRadius failed: %v", err)
	}

	want := map[string]bool{"a": false, "b": false}
	for _, id := range impacted {
		if _, ok := want[id]; ok {
			want[id] = true
		}
	}
	for id, seen := range want {
		if !seen {
			t.Errorf("expected %s to transitively depend on c, impacted=%v", id, impacted)
		}
	}
}

func TestBoundedLevenshteinRejectsBeyondMax(t *testing.T) {
	if d := boundedLevenshtein("kitten", "sitting", 2); d != -1 {
		t.Errorf("expected distance 3 to exceed max 2 and return -1, got %d", d)
	}
	if d := boundedLevenshtein("kitten", "sitten", 2); d != 1 {
		t.Errorf("expected distance 1, got %d", d)
	}
}
