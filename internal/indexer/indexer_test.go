package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/librarian-dev/librarian/internal/embedding"
	"github.com/librarian-dev/librarian/internal/store"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	full := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func openTestIndexer(t *testing.T, workspace string) (*Indexer, *store.Engine) {
	t.Helper()
	engine, err := store.Open(context.Background(), store.DefaultOptions(workspace))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { engine.Close() })
	opts := DefaultOptions(workspace)
	ix := New(opts, engine)
	t.Cleanup(ix.Close)
	return ix, engine
}

func TestBootstrapIndexesMatchingFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package a\n\nfunc Hello() string { return \"hi\" }\n")
	writeFile(t, dir, "vendor/skip.go", "package vendor\n\nfunc Skip() {}\n")

	ix, engine := openTestIndexer(t, dir)
	if err := ix.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	version, err := engine.CurrentVersion(context.Background())
	if err != nil {
		t.Fatalf("CurrentVersion failed: %v", err)
	}
	if version == 0 {
		t.Error("expected bootstrap to bump the coordination counter")
	}

	events, err := engine.GetChangeEvents(context.Background(), 0)
	if err != nil {
		t.Fatalf("GetChangeEvents failed: %v", err)
	}
	var sawA, sawVendor bool
	for _, e := range events {
		if e.Path == "a.go" {
			sawA = true
		}
		if e.Path == "vendor/skip.go" {
			sawVendor = true
		}
	}
	if !sawA {
		t.Error("expected a.go to be indexed")
	}
	if sawVendor {
		t.Error("expected vendor/ to be excluded from indexing")
	}
}

func TestReindexChangedOnlyTouchesGivenPaths(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package a\n\nfunc A() {}\n")
	writeFile(t, dir, "b.go", "package a\n\nfunc B() {}\n")

	ix, engine := openTestIndexer(t, dir)
	if err := ix.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	v1, _ := engine.CurrentVersion(context.Background())

	writeFile(t, dir, "a.go", "package a\n\nfunc A() {}\nfunc ANew() {}\n")
	if err := ix.Reindex(context.Background(), []string{"a.go"}, "changed_only"); err != nil {
		t.Fatalf("Reindex failed: %v", err)
	}
	v2, _ := engine.CurrentVersion(context.Background())
	if v2 <= v1 {
		t.Error("expected reindex to bump the coordination counter")
	}
}

func TestRemoveDeletesFileRecord(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package a\n\nfunc A() {}\n")

	ix, engine := openTestIndexer(t, dir)
	if err := ix.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	if err := ix.Remove(context.Background(), []string{"a.go"}); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	events, err := engine.GetChangeEvents(context.Background(), 0, "a.go")
	if err != nil {
		t.Fatalf("GetChangeEvents failed: %v", err)
	}
	var sawDelete bool
	for _, e := range events {
		if e.Type == "deleted" {
			sawDelete = true
		}
	}
	if !sawDelete {
		t.Error("expected a deleted change event for removed file")
	}
}

func TestBootstrapWritesVectorsWhenEmbeddingEngineConfigured(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package a\n\nfunc Hello() string { return \"hi\" }\n")

	engine, err := store.Open(context.Background(), store.DefaultOptions(dir))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	opts := DefaultOptions(dir)
	opts.EmbeddingEngine = embedding.NewLocalHashEngine(32)
	ix := New(opts, engine)
	t.Cleanup(ix.Close)

	if err := ix.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	symbols, err := engine.ListSymbols(context.Background())
	if err != nil {
		t.Fatalf("ListSymbols failed: %v", err)
	}
	if len(symbols) == 0 {
		t.Fatal("expected at least one extracted symbol")
	}

	neighbors, err := engine.SearchVectors(context.Background(), make([]float32, 32), 5)
	if err != nil {
		t.Fatalf("SearchVectors failed: %v", err)
	}
	if len(neighbors) == 0 {
		t.Error("expected a stored vector for the extracted symbol")
	}
}

func TestGlobMatchHandlesDoubleStarPatterns(t *testing.T) {
	cases := []struct {
		pattern, path string
		want          bool
	}{
		{".git/**", ".git/HEAD", true},
		{".git/**", "src/main.go", false},
		{"**/*", "anything/at/all.go", true},
		{"**/*.go", "pkg/foo.go", true},
		{"**/*.go", "pkg/foo.py", false},
	}
	for _, c := range cases {
		if got := globMatch(c.pattern, c.path); got != c.want {
			t.Errorf("globMatch(%q, %q) = %v, want %v", c.pattern, c.path, got, c.want)
		}
	}
}
