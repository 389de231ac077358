// Package packs implements the Pack Assembler: it turns a Retriever's hits
// into a token-budgeted, citation-bearing context pack, caching builds by a
// content-derived fingerprint. Grounded on the teacher's token-budget
// arithmetic (internal/context/tokens.go's "~4 characters per token"
// calibration, named here as a documented CharsPerToken constant rather
// than left as a magic number) and on golang.org/x/sync/singleflight for
// the at-most-one-concurrent-build-per-fingerprint cache contract --
// singleflight sits unused in the teacher's own dependency closet
// (golang.org/x/sync) for exactly this shape of problem.
package packs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"

	"github.com/librarian-dev/librarian/internal/iface"
	"github.com/librarian-dev/librarian/internal/logging"
	"github.com/librarian-dev/librarian/internal/store"
	"github.com/librarian-dev/librarian/internal/types"
)

// CharsPerToken calibrates the token estimator. 4.0 approximates common
// subword tokenizers closely enough for budget accounting; the Pack
// Assembler never needs exact counts, only a consistent, documented
// estimate that over-budgets rather than under.
const CharsPerToken = 4.0

// EstimateTokens returns the estimated token count for s.
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return int(float64(utf8.RuneCountInString(s))/CharsPerToken) + 1
}

// Assembler builds and caches context packs.
type Assembler struct {
	engine *store.Engine

	mu    sync.RWMutex
	cache map[string]types.Pack
	// relatedFiles indexes cached fingerprints by the files they cite, so a
	// commit touching one of those files can invalidate exactly the packs
	// that depended on it.
	relatedFiles map[string]map[string]bool

	group singleflight.Group
}

// New constructs an Assembler over an already-open storage engine and
// registers a commit hook that invalidates cached packs whose
// RelatedFiles intersects the commit's changed paths.
func New(engine *store.Engine) *Assembler {
	a := &Assembler{
		engine:       engine,
		cache:        map[string]types.Pack{},
		relatedFiles: map[string]map[string]bool{},
	}
	engine.RegisterCommitHook(a.onCommit)
	return a
}

func (a *Assembler) onCommit(events []store.ChangeEventRow) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, ev := range events {
		for fp := range a.relatedFiles[ev.Path] {
			delete(a.cache, fp)
			logging.PacksDebug("invalidated cached pack %s (changed file %s)", fp, ev.Path)
		}
		delete(a.relatedFiles, ev.Path)
	}
}

// Fingerprint computes the cache key for a build: sha256 over the intent,
// the sorted candidate symbol ids, the index version at build time, and the
// token budget.
func Fingerprint(intent string, hits []iface.RetrievalHit, indexVersion int64, tokenBudget int) string {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.SymbolID
	}
	sort.Strings(ids)

	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%d|", intent, indexVersion, tokenBudget)
	for _, id := range ids {
		fmt.Fprintf(h, "%s,", id)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Build assembles a context pack for the given intent and retrieval hits,
// staying within tokenBudget. Concurrent Build calls for the same
// fingerprint share one in-flight build (singleflight): the first caller
// does the work, late callers block and receive its result.
func (a *Assembler) Build(ctx context.Context, intent string, hits []iface.RetrievalHit, tokenBudget int) (types.Pack, error) {
	if tokenBudget <= 0 {
		tokenBudget = 4000
	}
	indexVersion, err := a.engine.CurrentVersion(ctx)
	if err != nil {
		return types.Pack{}, fmt.Errorf("failed to read coordination counter: %w", err)
	}
	fp := Fingerprint(intent, hits, indexVersion, tokenBudget)

	a.mu.RLock()
	if cached, ok := a.cache[fp]; ok {
		a.mu.RUnlock()
		logging.PacksDebug("cache hit for fingerprint %s", fp)
		return cached, nil
	}
	a.mu.RUnlock()

	result, err, _ := a.group.Do(fp, func() (interface{}, error) {
		return a.build(ctx, intent, hits, tokenBudget, indexVersion, fp)
	})
	if err != nil {
		return types.Pack{}, err
	}
	return result.(types.Pack), nil
}

func (a *Assembler) build(ctx context.Context, intent string, hits []iface.RetrievalHit, tokenBudget int, indexVersion int64, fp string) (types.Pack, error) {
	pack := types.Pack{
		Fingerprint:  fp,
		Intent:       intent,
		TokenBudget:  tokenBudget,
		BuiltAt:      time.Now(),
		IndexVersion: indexVersion,
	}

	sorted := append([]iface.RetrievalHit(nil), hits...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Confidence > sorted[j].Confidence })

	relatedFiles := map[string]bool{}
	evidenceIDs := map[string]bool{}
	var confidenceSum float64

	for _, hit := range sorted {
		symbol, err := a.engine.GetSymbol(ctx, hit.SymbolID)
		if err != nil {
			logging.PacksWarn("skipping hit %s: %v", hit.SymbolID, err)
			continue
		}

		fact := KeyFactFor(symbol, hit)

		entries, err := a.engine.GetEvidenceForSubject(ctx, hit.SymbolID)
		if err != nil {
			logging.PacksWarn("failed to load evidence for %s: %v", hit.SymbolID, err)
		}
		if len(entries) == 0 {
			fact.Unverified = true
		} else {
			for _, e := range entries {
				fact.EvidenceIDs = append(fact.EvidenceIDs, e.ID)
				evidenceIDs[e.ID] = true
			}
		}

		fact = validateAndTruncateKeyFact(fact)
		factTokens := EstimateTokens(fact.Text)
		if pack.TokensUsed+factTokens > tokenBudget {
			break
		}

		pack.KeyFacts = append(pack.KeyFacts, fact)
		pack.TokensUsed += factTokens
		relatedFiles[symbol.Path] = true
		confidenceSum += hit.Confidence
	}

	for f := range relatedFiles {
		pack.RelatedFiles = append(pack.RelatedFiles, f)
	}
	sort.Strings(pack.RelatedFiles)
	for id := range evidenceIDs {
		pack.EvidenceIDs = append(pack.EvidenceIDs, id)
	}
	sort.Strings(pack.EvidenceIDs)

	if len(pack.KeyFacts) > 0 {
		pack.Confidence = confidenceSum / float64(len(pack.KeyFacts))
	}

	a.mu.Lock()
	a.cache[fp] = pack
	for f := range relatedFiles {
		if a.relatedFiles[f] == nil {
			a.relatedFiles[f] = map[string]bool{}
		}
		a.relatedFiles[f][fp] = true
	}
	a.mu.Unlock()

	return pack, nil
}

// validateAndTruncateKeyFact runs a fact through the §4.3.5 payload-limit
// validator and, when any check fails, truncates fact.Text
// deterministically to a byte boundary and cuts fact.EvidenceIDs to the
// leading ids whose encoding fits the same budget; ids past that point are
// dropped from the fact. Facts are
// never rejected outright the way oversize evidence entries are -- pack
// assembly degrades the fact's text, it doesn't fail the whole query.
func validateAndTruncateKeyFact(fact types.KeyFact) types.KeyFact {
	raw, err := json.Marshal(fact)
	if err != nil {
		return fact
	}
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fact
	}
	if err := store.ValidatePayload(raw, decoded); err == nil {
		return fact
	}
	fact.Text = store.TruncateString(fact.Text, store.MaxPayloadBytes/4)
	fact.EvidenceIDs = store.TruncateStringSlice(fact.EvidenceIDs, store.MaxPayloadBytes/4)
	return fact
}

// KeyFactFor renders one retrieval hit as a citation-bearing key fact. The
// evidence binding happens in build, after the caller has a store handle;
// this only shapes the human-readable text.
func KeyFactFor(symbol types.Symbol, hit iface.RetrievalHit) types.KeyFact {
	text := fmt.Sprintf("%s %s in %s (%s)", symbol.Kind, symbol.Name, symbol.Path, symbol.Signature)
	if symbol.Receiver != "" {
		text = fmt.Sprintf("%s.%s in %s (%s)", symbol.Receiver, symbol.Name, symbol.Path, symbol.Signature)
	}
	return types.KeyFact{SymbolID: symbol.ID, Text: text}
}
