// Package retrieval implements the Retriever: an in-process, depth-tiered
// search over indexed symbols. Grounded on the teacher's
// TieredContextBuilder depth/tier structure (internal/retrieval/
// tiered_context.go in the source repo this was adapted from, generalized
// from its four percentage-budget file tiers into three symbol-level
// depths) and on internal/retrieval/sparse.go's keyword-extraction
// heuristics (generalized from shelling out to ripgrep into an in-process
// inverted index over symbol names and path tokens — a single-binary local
// engine has no business spawning an external process for this, and no
// ripgrep-binding library appeared anywhere in the retrieval pack).
package retrieval

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/librarian-dev/librarian/internal/embedding"
	"github.com/librarian-dev/librarian/internal/graph"
	"github.com/librarian-dev/librarian/internal/iface"
	"github.com/librarian-dev/librarian/internal/logging"
	"github.com/librarian-dev/librarian/internal/store"
	"github.com/librarian-dev/librarian/internal/types"
)

// Depth names the three escalating tiers a caller can request.
const (
	DepthL0 = "L0"
	DepthL1 = "L1"
	DepthL2 = "L2"
)

// Options configures a Retriever.
type Options struct {
	MaxFuzzyDistance int // bounded Levenshtein distance allowed at L1
	MaxResults       int
	GraphHops        int // hop count for L2 expansion
}

// DefaultOptions returns sane defaults for Options.
func DefaultOptions() Options {
	return Options{MaxFuzzyDistance: 2, MaxResults: 20, GraphHops: 1}
}

// Retriever answers Search calls against an in-process inverted index built
// from the storage engine's symbol table. It is stateless across Search
// calls (escalation between depths is the Coordinator's job, per §4.7) but
// keeps its index fresh by rebuilding whenever the engine's coordination
// counter advances past the version it last indexed.
type Retriever struct {
	opts   Options
	engine *store.Engine
	embed  iface.EmbeddingProvider

	depGraph *graph.Projection // lazily-refreshed transitive-closure view for impact queries

	mu           sync.RWMutex
	indexVersion int64
	byExactName  map[string][]string   // lowercased symbol name -> symbol ids
	byPathToken  map[string][]string   // lowercased path token -> symbol ids
	symbols      map[string]types.Symbol
	names        []string // all lowercased names, for fuzzy scanning
}

// New constructs a Retriever over an already-open storage engine. embed may
// be nil, which disables L1 vector search (fuzzy name matching still runs).
func New(opts Options, engine *store.Engine, embed iface.EmbeddingProvider) *Retriever {
	if opts.MaxFuzzyDistance <= 0 {
		opts.MaxFuzzyDistance = 2
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 20
	}
	if opts.GraphHops <= 0 {
		opts.GraphHops = 1
	}
	return &Retriever{
		opts:        opts,
		engine:      engine,
		embed:       embed,
		depGraph:    graph.New(engine),
		byExactName: map[string][]string{},
		byPathToken: map[string][]string{},
		symbols:     map[string]types.Symbol{},
	}
}

var pathTokenSplit = regexp.MustCompile(`[/_\-.]+`)

// Refresh rebuilds the inverted index from the storage engine's current
// symbol set. Called lazily by Search when the engine's coordination
// counter has advanced, and may also be called directly after a commit-hook
// notification.
func (r *Retriever) Refresh(ctx context.Context) error {
	symbols, err := r.engine.ListSymbols(ctx)
	if err != nil {
		return fmt.Errorf("failed to list symbols for retrieval index: %w", err)
	}
	version, err := r.engine.CurrentVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to read coordination counter: %w", err)
	}

	byName := make(map[string][]string, len(symbols))
	byToken := make(map[string][]string, len(symbols))
	bySymbol := make(map[string]types.Symbol, len(symbols))
	names := make([]string, 0, len(symbols))

	for _, s := range symbols {
		bySymbol[s.ID] = s
		lname := strings.ToLower(s.Name)
		byName[lname] = append(byName[lname], s.ID)
		names = append(names, lname)

		for _, tok := range pathTokenSplit.Split(s.Path, -1) {
			if tok == "" {
				continue
			}
			ltok := strings.ToLower(tok)
			byToken[ltok] = append(byToken[ltok], s.ID)
		}
	}

	r.mu.Lock()
	r.byExactName = byName
	r.byPathToken = byToken
	r.symbols = bySymbol
	r.names = names
	r.indexVersion = version
	r.mu.Unlock()

	logging.Retrieval("refreshed index: %d symbols at version %d", len(symbols), version)
	return nil
}

func (r *Retriever) ensureFresh(ctx context.Context) error {
	current, err := r.engine.CurrentVersion(ctx)
	if err != nil {
		return err
	}
	r.mu.RLock()
	stale := current != r.indexVersion
	r.mu.RUnlock()
	if stale {
		return r.Refresh(ctx)
	}
	return nil
}

// Search finds candidate symbols for query at the given depth. L0 is exact
// name/path-token match; L1 adds bounded-Levenshtein fuzzy name matching
// and (when an embedding provider is configured) vector cosine search; L2
// adds one-hop graph expansion of L1's hits via the storage engine's
// Dependents/Dependencies.
func (r *Retriever) Search(ctx context.Context, query string, depth string) ([]iface.RetrievalHit, error) {
	if err := r.ensureFresh(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	scores := map[string]float64{}
	r.scoreExact(query, scores)

	if depth == DepthL1 || depth == DepthL2 {
		r.scoreFuzzy(query, scores)
		if r.embed != nil {
			if err := r.scoreVector(ctx, query, scores); err != nil {
				logging.RetrievalWarn("vector search unavailable, continuing with lexical scores only: %v", err)
			}
		}
	}

	if depth == DepthL2 {
		r.expandGraph(ctx, scores)
	}

	return r.toHits(scores), nil
}

func (r *Retriever) scoreExact(query string, scores map[string]float64) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return
	}
	for _, id := range r.byExactName[q] {
		bumpScore(scores, id, 1.0)
	}
	for _, tok := range pathTokenSplit.Split(q, -1) {
		if tok == "" {
			continue
		}
		for _, id := range r.byPathToken[tok] {
			bumpScore(scores, id, 0.6)
		}
	}
}

func (r *Retriever) scoreFuzzy(query string, scores map[string]float64) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return
	}
	for name, ids := range r.byExactName {
		if name == q {
			continue // already scored at full weight by scoreExact
		}
		dist := boundedLevenshtein(q, name, r.opts.MaxFuzzyDistance)
		if dist < 0 {
			continue
		}
		maxLen := len(q)
		if len(name) > maxLen {
			maxLen = len(name)
		}
		if maxLen == 0 {
			continue
		}
		similarity := 1.0 - float64(dist)/float64(maxLen)
		for _, id := range ids {
			bumpScore(scores, id, 0.5*similarity)
		}
	}
}

func (r *Retriever) scoreVector(ctx context.Context, query string, scores map[string]float64) error {
	vec, err := r.embed.Embed(ctx, query)
	if err != nil {
		return err
	}
	neighbors, err := r.engine.SearchVectors(ctx, vec, r.opts.MaxResults)
	if err != nil {
		return err
	}
	for _, n := range neighbors {
		if _, ok := r.symbols[n.SubjectID]; !ok {
			continue
		}
		bumpScore(scores, n.SubjectID, 0.8*n.Similarity)
	}
	return nil
}

func (r *Retriever) expandGraph(ctx context.Context, scores map[string]float64) {
	seeds := make([]string, 0, len(scores))
	for id := range scores {
		seeds = append(seeds, id)
	}
	for _, id := range seeds {
		base := scores[id]
		dependents, err := r.engine.TraverseDependents(ctx, id, r.opts.GraphHops)
		if err != nil {
			logging.RetrievalWarn("graph expansion (dependents) failed for %s: %v", id, err)
		}
		dependencies, err := r.engine.TraverseDependencies(ctx, id, r.opts.GraphHops)
		if err != nil {
			logging.RetrievalWarn("graph expansion (dependencies) failed for %s: %v", id, err)
		}
		for _, n := range append(dependents, dependencies...) {
			bumpScore(scores, n, 0.3*base)
		}
	}
}

// ImpactRadius returns every symbol transitively reachable by following
// resolved edges backward from symbolID -- the full blast radius a change
// to symbolID could ripple through, unlike expandGraph's hop-bounded L2
// expansion. Used by the Coordinator for impact-intent queries, where a
// hop cutoff would silently under-report how much a change could break.
func (r *Retriever) ImpactRadius(ctx context.Context, symbolID string) ([]string, error) {
	return r.depGraph.TransitiveDependents(ctx, symbolID)
}

// bumpScore keeps the maximum contributing signal per symbol rather than
// summing, so a symbol matched by several heuristics doesn't inflate past
// what any one signal would justify.
func bumpScore(scores map[string]float64, id string, delta float64) {
	if delta > scores[id] {
		scores[id] = delta
	}
}

// toHits ranks scored symbols into RetrievalHits, attaching a confidence
// derived from top-k score decay and score-cluster coherence (inverse
// normalized variance of the top-k scores: tighter clustering raises
// confidence, monotonically). Ties break on lexicographic symbol id order
// for determinism.
func (r *Retriever) toHits(scores map[string]float64) []iface.RetrievalHit {
	if len(scores) == 0 {
		return nil
	}
	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
		}
		return ids[i] < ids[j]
	})

	limit := r.opts.MaxResults
	if limit > len(ids) {
		limit = len(ids)
	}
	top := ids[:limit]

	coherence := scoreCoherence(top, scores)

	hits := make([]iface.RetrievalHit, 0, len(top))
	for i, id := range top {
		decay := 1.0 / (1.0 + float64(i)*0.25)
		confidence := clamp01(scores[id] * decay * coherence)
		hits = append(hits, iface.RetrievalHit{SymbolID: id, Score: scores[id], Confidence: confidence})
	}
	return hits
}

// scoreCoherence returns a value in (0, 1] that grows as the top-k scores
// cluster more tightly together: 1 / (1 + normalizedVariance). A single hit
// (zero variance) is maximally coherent.
func scoreCoherence(top []string, scores map[string]float64) float64 {
	if len(top) <= 1 {
		return 1.0
	}
	var sum, mean float64
	for _, id := range top {
		sum += scores[id]
	}
	mean = sum / float64(len(top))
	if mean == 0 {
		return 1.0
	}
	var variance float64
	for _, id := range top {
		d := scores[id] - mean
		variance += d * d
	}
	variance /= float64(len(top))
	normalized := variance / (mean * mean)
	return 1.0 / (1.0 + normalized)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// boundedLevenshtein returns the edit distance between a and b, or -1 if it
// exceeds max (computed without completing the full DP table once a row's
// minimum already exceeds max, which keeps fuzzy matching against a large
// symbol set cheap).
func boundedLevenshtein(a, b string, max int) int {
	if a == b {
		return 0
	}
	if absInt(len(a)-len(b)) > max {
		return -1
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		rowMin := curr[0]
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, minInt(curr[j-1]+1, prev[j-1]+cost))
			if curr[j] < rowMin {
				rowMin = curr[j]
			}
		}
		if rowMin > max {
			return -1
		}
		prev, curr = curr, prev
	}
	if prev[len(b)] > max {
		return -1
	}
	return prev[len(b)]
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
