package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/librarian-dev/librarian/internal/ledger"
	"github.com/librarian-dev/librarian/internal/store"
)

func openTestWatcher(t *testing.T, dir string, knownFiles []string) (*Watcher, *ledger.Ledger) {
	t.Helper()
	engine, err := store.Open(context.Background(), store.DefaultOptions(dir))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { engine.Close() })
	led := ledger.New(engine, 0)

	opts := DefaultOptions(dir)
	opts.DebounceInterval = 20 * time.Millisecond
	w, err := New(opts, led, knownFiles)
	if err != nil {
		t.Fatalf("failed to construct watcher: %v", err)
	}
	return w, led
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestWatcherDetectsCreatedFile(t *testing.T) {
	dir := t.TempDir()
	w, _ := openTestWatcher(t, dir, nil)

	var mu sync.Mutex
	var seen []Change
	w.OnChange(func(ctx context.Context, changes []Change) error {
		mu.Lock()
		seen = append(seen, changes...)
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\n"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range seen {
			if c.Path == "a.go" {
				return true
			}
		}
		return false
	})
}

func TestWatcherClassifiesModifiedWhenAlreadyKnown(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\n"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	w, _ := openTestWatcher(t, dir, []string{"a.go"})

	var mu sync.Mutex
	var seen []Change
	w.OnChange(func(ctx context.Context, changes []Change) error {
		mu.Lock()
		seen = append(seen, changes...)
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\n\nfunc A() {}\n"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range seen {
			if c.Path == "a.go" && c.Kind == ChangeModified {
				return true
			}
		}
		return false
	})
}

func TestWatcherHandlerPanicIsRecovered(t *testing.T) {
	dir := t.TempDir()
	w, _ := openTestWatcher(t, dir, nil)

	panicked := make(chan struct{}, 1)
	w.OnChange(func(ctx context.Context, changes []Change) error {
		panicked <- struct{}{}
		panic("simulated handler failure")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\n"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	select {
	case <-panicked:
	case <-time.After(2 * time.Second):
		t.Fatal("handler was never invoked")
	}

	waitFor(t, 2*time.Second, func() bool {
		return w.GetStats().HandlerErrors > 0
	})
	if !w.IsWatching() {
		t.Error("expected watch loop to survive a handler panic")
	}
}

func TestWatcherRecordsObservationInLedger(t *testing.T) {
	dir := t.TempDir()
	w, led := openTestWatcher(t, dir, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\n"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		history, err := led.History(ctx, "a.go")
		return err == nil && len(history) > 0
	})
}

func TestWatcherStopIsIdempotentAndGraceful(t *testing.T) {
	dir := t.TempDir()
	w, _ := openTestWatcher(t, dir, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	w.Stop()
	w.Stop() // second Stop must not block or panic
	if w.IsWatching() {
		t.Error("expected IsWatching to be false after Stop")
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
