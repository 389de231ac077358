package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/librarian-dev/librarian/internal/types"
)

func TestListAndGetSymbol(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	mustCommit(t, e, func(ctx context.Context, txn *Txn) error {
		if err := txn.UpsertFile(ctx, types.File{Path: "a.go", Language: "go", ContentHash: "h1", ModTime: time.Now(), IndexedAt: time.Now()}); err != nil {
			return err
		}
		return txn.ReplaceSymbols(ctx, "a.go", []types.Symbol{
			{ID: "sym:a", Path: "a.go", Kind: types.SymbolFunction, Name: "A", Signature: "func A()", Visibility: "public"},
		})
	})

	symbols, err := e.ListSymbols(ctx)
	if err != nil {
		t.Fatalf("ListSymbols failed: %v", err)
	}
	if len(symbols) != 1 || symbols[0].ID != "sym:a" {
		t.Fatalf("expected exactly sym:a, got %+v", symbols)
	}

	got, err := e.GetSymbol(ctx, "sym:a")
	if err != nil {
		t.Fatalf("GetSymbol failed: %v", err)
	}
	if got.Name != "A" || got.Signature != "func A()" {
		t.Errorf("unexpected symbol: %+v", got)
	}

	if _, err := e.GetSymbol(ctx, "sym:missing"); err == nil {
		t.Error("expected an error for a missing symbol id")
	}
}

func TestCountAllReflectsCommittedRows(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	before, err := e.CountAll(ctx)
	if err != nil {
		t.Fatalf("CountAll failed: %v", err)
	}
	if before.Files != 0 || before.Symbols != 0 {
		t.Fatalf("expected an empty store, got %+v", before)
	}

	mustCommit(t, e, func(ctx context.Context, txn *Txn) error {
		if err := txn.UpsertFile(ctx, types.File{Path: "a.go", Language: "go", ContentHash: "h1", ModTime: time.Now(), IndexedAt: time.Now()}); err != nil {
			return err
		}
		if err := txn.ReplaceSymbols(ctx, "a.go", []types.Symbol{
			{ID: "sym:a", Path: "a.go", Kind: types.SymbolFunction, Name: "A", Visibility: "public"},
			{ID: "sym:b", Path: "a.go", Kind: types.SymbolFunction, Name: "B", Visibility: "public"},
		}); err != nil {
			return err
		}
		return txn.ReplaceEdgesFrom(ctx, []string{"sym:a"}, []types.Edge{
			{FromID: "sym:a", ToID: "sym:b", Kind: types.EdgeCalls, Resolved: true},
		})
	})

	after, err := e.CountAll(ctx)
	if err != nil {
		t.Fatalf("CountAll failed: %v", err)
	}
	want := Counts{Files: 1, Symbols: 2, Edges: 1}
	if diff := cmp.Diff(want, after); diff != "" {
		t.Errorf("counts after commit mismatch (-want +got):\n%s", diff)
	}
}
