package mcp

import (
	"context"
	"testing"

	"github.com/librarian-dev/librarian/internal/coordinator"
	"github.com/librarian-dev/librarian/internal/packs"
	"github.com/librarian-dev/librarian/internal/retrieval"
	"github.com/librarian-dev/librarian/internal/store"
	"github.com/librarian-dev/librarian/internal/types"
)

func openTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	engine, err := store.Open(context.Background(), store.DefaultOptions(dir))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	txn, err := engine.Begin(context.Background())
	if err != nil {
		t.Fatalf("failed to begin txn: %v", err)
	}
	sym := types.Symbol{ID: "s1", Path: "a.go", Kind: types.SymbolFunction, Name: "Foo", Signature: "func Foo()"}
	if err := txn.UpsertFile(context.Background(), types.File{Path: sym.Path, Language: "go"}); err != nil {
		t.Fatalf("UpsertFile failed: %v", err)
	}
	if err := txn.ReplaceSymbols(context.Background(), sym.Path, []types.Symbol{sym}); err != nil {
		t.Fatalf("ReplaceSymbols failed: %v", err)
	}
	if err := txn.Commit(context.Background()); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	r := retrieval.New(retrieval.DefaultOptions(), engine, nil)
	p := packs.New(engine)
	c := coordinator.New(r, p, coordinator.DefaultConfidenceFloors(), nil, engine)
	return New(c, engine)
}

func TestCallRejectsUnknownTool(t *testing.T) {
	s := openTestServer(t)
	env, err := s.Call(context.Background(), "not_a_real_tool", nil)
	if err != nil {
		t.Fatalf("Call returned a Go error, want a failed envelope: %v", err)
	}
	if env.OK {
		t.Fatal("expected OK=false for an unknown tool")
	}
}

func TestSemanticSearchRequiresQuery(t *testing.T) {
	s := openTestServer(t)
	env, err := s.Call(context.Background(), ToolSemanticSearch, map[string]interface{}{})
	if err != nil {
		t.Fatalf("Call returned a Go error: %v", err)
	}
	if env.OK {
		t.Fatal("expected OK=false when \"query\" is missing")
	}
}

func TestSemanticSearchFindsSeededSymbol(t *testing.T) {
	s := openTestServer(t)
	env, err := s.Call(context.Background(), ToolSemanticSearch, map[string]interface{}{"query": "Foo"})
	if err != nil {
		t.Fatalf("Call returned a Go error: %v", err)
	}
	if !env.OK {
		t.Fatalf("expected OK=true, got error %q", env.Error)
	}
	facts, ok := env.Result["keyFacts"].([]map[string]interface{})
	if !ok || len(facts) == 0 {
		t.Fatalf("expected at least one key fact in result, got %v", env.Result["keyFacts"])
	}
}

func TestGetContextPackEnforcesReleaseCriticalGate(t *testing.T) {
	s := openTestServer(t)
	env, err := s.Call(context.Background(), ToolGetContextPack, map[string]interface{}{
		"query":           "Bar that does not exist anywhere",
		"releaseCritical": true,
	})
	if err != nil {
		t.Fatalf("Call returned a Go error, want a failed envelope: %v", err)
	}
	if env.OK {
		t.Fatal("expected OK=false when release-critical query has no evidence")
	}
}

func TestStatusReportsCounts(t *testing.T) {
	s := openTestServer(t)
	env, err := s.Call(context.Background(), ToolStatus, nil)
	if err != nil {
		t.Fatalf("Call returned a Go error: %v", err)
	}
	if !env.OK {
		t.Fatalf("expected OK=true, got error %q", env.Error)
	}
	if got := env.Result["symbols"]; got != 1 {
		t.Errorf("symbols = %v, want 1", got)
	}
}
