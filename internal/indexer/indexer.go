// Package indexer drives Bootstrap, Reindex, and Remove: it walks the
// workspace, extracts facts per file, and writes them into the storage
// engine in batched transactions, resolving cross-file call/import edges
// as each batch's symbols land. Grounded on the teacher's
// Engine.ReplaceFactsForFile delete-then-insert-within-a-lock discipline
// (internal/mangle/engine.go in the source repo this was adapted from),
// generalized from Mangle facts to the typed Symbol/Edge model and from a
// single in-memory store to SQLite-backed batched transactions.
package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/librarian-dev/librarian/internal/extractor"
	"github.com/librarian-dev/librarian/internal/iface"
	"github.com/librarian-dev/librarian/internal/logging"
	"github.com/librarian-dev/librarian/internal/store"
	"github.com/librarian-dev/librarian/internal/types"
)

// Options configures an Indexer.
type Options struct {
	Workspace       string
	Include         []string
	Exclude         []string
	BatchSize       int
	MaxParallel     int
	EmbeddingEngine iface.EmbeddingProvider // optional; nil disables embedding writes
}

// DefaultOptions returns sane defaults for Options.
func DefaultOptions(workspace string) Options {
	return Options{
		Workspace:   workspace,
		Include:     []string{"**/*"},
		Exclude:     []string{".git/**", ".librarian/**", "node_modules/**", "vendor/**"},
		BatchSize:   200,
		MaxParallel: 8,
	}
}

// Indexer coordinates extraction and storage for one workspace.
type Indexer struct {
	opts   Options
	engine *store.Engine
	ex     *extractor.Extractor
}

// New constructs an Indexer over an already-open storage engine.
func New(opts Options, engine *store.Engine) *Indexer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 200
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 8
	}
	return &Indexer{opts: opts, engine: engine, ex: extractor.New()}
}

// Close releases the extractor's native resources.
func (ix *Indexer) Close() { ix.ex.Close() }

// discoveredFile is one file found by the workspace walk, pre-extraction.
type discoveredFile struct {
	path     string
	language string
	modTime  time.Time
	size     int64
}

// Bootstrap performs a full from-scratch index of the workspace: every
// matching file is walked, hashed, extracted, and committed in batches of
// opts.BatchSize files per transaction.
func (ix *Indexer) Bootstrap(ctx context.Context) error {
	timer := logging.StartTimer(logging.CategoryIndexer, "Bootstrap")
	defer timer.Stop()

	files, err := ix.discover()
	if err != nil {
		return fmt.Errorf("failed to walk workspace: %w", err)
	}
	logging.Indexer("bootstrap discovered %d files", len(files))

	return ix.indexFiles(ctx, files, "bootstrap")
}

// Reindex re-extracts exactly the given paths (typically a watcher batch
// or a caller-specified set), honoring scope: "changed_only" touches just
// those paths, "changed_and_dependents" also re-extracts every file holding
// a symbol with a resolved edge pointing into a changed file's symbols, and
// "full" ignores changedPaths and runs Bootstrap.
func (ix *Indexer) Reindex(ctx context.Context, changedPaths []string, scope string) error {
	timer := logging.StartTimer(logging.CategoryIndexer, "Reindex")
	defer timer.Stop()

	if scope == "full" {
		return ix.Bootstrap(ctx)
	}

	var files []discoveredFile
	for _, p := range changedPaths {
		info, err := os.Stat(filepath.Join(ix.opts.Workspace, p))
		if err != nil {
			logging.IndexerWarn("skipping missing path during reindex: %s", p)
			continue
		}
		files = append(files, discoveredFile{
			path: p, language: detectLanguage(p), modTime: info.ModTime(), size: info.Size(),
		})
	}

	if scope == "changed_and_dependents" {
		dependentPaths, err := ix.dependentPathsOf(ctx, changedPaths)
		if err != nil {
			logging.IndexerWarn("failed to compute dependent scope, falling back to changed_only: %v", err)
		} else {
			for _, p := range dependentPaths {
				info, err := os.Stat(filepath.Join(ix.opts.Workspace, p))
				if err != nil {
					continue
				}
				files = append(files, discoveredFile{
					path: p, language: detectLanguage(p), modTime: info.ModTime(), size: info.Size(),
				})
			}
		}
	}

	return ix.indexFiles(ctx, files, "reindex")
}

// Remove deletes every file, symbol, and edge recorded for the given
// paths, invalidating any cached packs that depended on them via the
// storage engine's commit hooks.
func (ix *Indexer) Remove(ctx context.Context, paths []string) error {
	txn, err := ix.engine.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin remove transaction: %w", err)
	}
	for _, p := range paths {
		if err := txn.DeleteFile(ctx, p); err != nil {
			txn.Rollback()
			return err
		}
		txn.RecordChange(p, "deleted")
	}
	if err := txn.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit removal: %w", err)
	}
	logging.Indexer("removed %d files from index", len(paths))
	return nil
}

func (ix *Indexer) dependentPathsOf(ctx context.Context, changedPaths []string) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, p := range changedPaths {
		deps, err := ix.engine.DependentFilesOf(ctx, p)
		if err != nil {
			return nil, err
		}
		for _, d := range deps {
			if !seen[d] {
				seen[d] = true
				out = append(out, d)
			}
		}
	}
	return out, nil
}

// indexFiles is the shared extraction+commit loop for Bootstrap and
// Reindex: files are extracted with bounded parallelism, then committed in
// opts.BatchSize-sized transactions so a crash mid-run loses at most one
// batch's progress.
func (ix *Indexer) indexFiles(ctx context.Context, files []discoveredFile, reason string) error {
	for start := 0; start < len(files); start += ix.opts.BatchSize {
		end := start + ix.opts.BatchSize
		if end > len(files) {
			end = len(files)
		}
		batch := files[start:end]

		facts, err := ix.extractBatch(ctx, batch)
		if err != nil {
			return err
		}
		if err := ix.commitBatch(ctx, facts); err != nil {
			return err
		}
		logging.IndexerDebug("%s: committed batch %d-%d of %d files", reason, start, end, len(files))
	}
	return nil
}

func (ix *Indexer) extractBatch(ctx context.Context, batch []discoveredFile) ([]iface.FactSet, error) {
	results := make([]iface.FactSet, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.opts.MaxParallel)

	var mu sync.Mutex
	for i, f := range batch {
		i, f := i, f
		g.Go(func() error {
			full := filepath.Join(ix.opts.Workspace, f.path)
			content, err := os.ReadFile(full)
			if err != nil {
				logging.IndexerWarn("skipping unreadable file %s: %v", f.path, err)
				return nil
			}
			fs, err := ix.ex.Extract(gctx, f.path, f.language, content)
			if err != nil {
				logging.IndexerWarn("extraction error for %s: %v", f.path, err)
				return nil
			}
			fs.File.Language = f.language
			fs.File.ContentHash = contentHashOf(content)
			fs.File.Size = f.size
			fs.File.ModTime = f.modTime
			fs.File.IndexedAt = time.Now()

			mu.Lock()
			results[i] = fs
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (ix *Indexer) commitBatch(ctx context.Context, facts []iface.FactSet) error {
	txn, err := ix.engine.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin index transaction: %w", err)
	}

	var allSymbolIDs []string
	for _, fs := range facts {
		if fs.File.Path == "" {
			continue
		}
		if err := txn.UpsertFile(ctx, fs.File); err != nil {
			txn.Rollback()
			return err
		}
		if err := txn.ReplaceSymbols(ctx, fs.File.Path, fs.Symbols); err != nil {
			txn.Rollback()
			return err
		}
		fromIDs := symbolIDsForFile(fs.Symbols, fs.File.Path)
		if err := txn.ReplaceEdgesFrom(ctx, fromIDs, fs.Edges); err != nil {
			txn.Rollback()
			return err
		}
		for _, s := range fs.Symbols {
			allSymbolIDs = append(allSymbolIDs, s.ID)
		}
		txn.RecordChange(fs.File.Path, "indexed")
	}

	// Cross-file resolution within this batch: any edge whose target is
	// now a known symbol id flips to resolved. Edges into files indexed
	// in a later batch resolve on that later batch's pass instead.
	for _, id := range allSymbolIDs {
		if err := txn.ResolveEdgesTo(ctx, id); err != nil {
			txn.Rollback()
			return err
		}
	}

	if ix.opts.EmbeddingEngine != nil {
		if err := ix.embedBatch(ctx, txn, facts); err != nil {
			txn.Rollback()
			return err
		}
	}

	if err := txn.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit index batch: %w", err)
	}
	return nil
}

// embedBatch writes one vector per symbol extracted in this batch, text
// embedded from its signature so near-duplicate signatures cluster in the
// L1 vector search path. Embedding errors for a single symbol are logged
// and skipped rather than aborting the whole batch -- an absent vector
// only degrades that symbol to structural-only retrieval.
func (ix *Indexer) embedBatch(ctx context.Context, txn *store.Txn, facts []iface.FactSet) error {
	provider := ix.opts.EmbeddingEngine.Name()
	for _, fs := range facts {
		for _, s := range fs.Symbols {
			text := s.Signature
			if s.Receiver != "" {
				text = s.Receiver + "." + s.Name + " " + text
			} else {
				text = s.Name + " " + text
			}
			values, err := ix.opts.EmbeddingEngine.Embed(ctx, text)
			if err != nil {
				logging.IndexerWarn("embedding failed for symbol %s: %v", s.ID, err)
				continue
			}
			if err := txn.UpsertVector(ctx, s.ID, provider, values); err != nil {
				return fmt.Errorf("failed to store vector for %s: %w", s.ID, err)
			}
		}
	}
	return nil
}

func symbolIDsForFile(symbols []types.Symbol, path string) []string {
	var ids []string
	for _, s := range symbols {
		if s.Path == path {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

func contentHashOf(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// discover walks the workspace honoring Include/Exclude globs, returning
// every matched regular file with its detected language.
func (ix *Indexer) discover() ([]discoveredFile, error) {
	var out []discoveredFile
	err := filepath.Walk(ix.opts.Workspace, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(ix.opts.Workspace, path)
		if relErr != nil {
			return nil
		}
		if rel == "." {
			return nil
		}
		if info.IsDir() {
			if matchesAny(rel+"/", ix.opts.Exclude) {
				return filepath.SkipDir
			}
			return nil
		}
		if matchesAny(rel, ix.opts.Exclude) {
			return nil
		}
		if len(ix.opts.Include) > 0 && !matchesAny(rel, ix.opts.Include) {
			return nil
		}
		lang := detectLanguage(rel)
		if lang == "" {
			return nil
		}
		out = append(out, discoveredFile{path: rel, language: lang, modTime: info.ModTime(), size: info.Size()})
		return nil
	})
	return out, err
}

func matchesAny(path string, patterns []string) bool {
	for _, pattern := range patterns {
		if globMatch(pattern, path) {
			return true
		}
	}
	return false
}

// globMatch supports a leading "**/" prefix (match at any depth) on top of
// filepath.Match's single-segment glob syntax, since Include/Exclude
// entries like ".git/**" and "**/*" need to match nested paths.
func globMatch(pattern, path string) bool {
	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	}
	if pattern == "**/*" {
		return true
	}
	if strings.HasPrefix(pattern, "**/") {
		suffix := strings.TrimPrefix(pattern, "**/")
		if ok, _ := filepath.Match(suffix, filepath.Base(path)); ok {
			return true
		}
		return strings.HasSuffix(path, "/"+suffix)
	}
	ok, _ := filepath.Match(pattern, path)
	return ok
}

var languageByExt = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".rs":   "rust",
	".java": "java",
	".rb":   "ruby",
	".c":    "c",
	".h":    "c",
	".cpp":  "cpp",
	".cc":   "cpp",
	".hpp":  "cpp",
	".cs":   "csharp",
}

func detectLanguage(path string) string {
	return languageByExt[strings.ToLower(filepath.Ext(path))]
}
