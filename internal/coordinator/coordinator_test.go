package coordinator

import (
	"context"
	"sort"
	"testing"

	"github.com/librarian-dev/librarian/internal/errs"
	"github.com/librarian-dev/librarian/internal/packs"
	"github.com/librarian-dev/librarian/internal/retrieval"
	"github.com/librarian-dev/librarian/internal/store"
	"github.com/librarian-dev/librarian/internal/types"
)

func openTestCoordinator(t *testing.T) (*Coordinator, *store.Engine) {
	t.Helper()
	dir := t.TempDir()
	engine, err := store.Open(context.Background(), store.DefaultOptions(dir))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	r := retrieval.New(retrieval.DefaultOptions(), engine, nil)
	p := packs.New(engine)
	return New(r, p, DefaultConfidenceFloors(), nil, engine), engine
}

func seedSymbol(t *testing.T, engine *store.Engine, s types.Symbol) {
	t.Helper()
	txn, err := engine.Begin(context.Background())
	if err != nil {
		t.Fatalf("failed to begin txn: %v", err)
	}
	if err := txn.UpsertFile(context.Background(), types.File{Path: s.Path, Language: "go"}); err != nil {
		t.Fatalf("UpsertFile failed: %v", err)
	}
	if err := txn.ReplaceSymbols(context.Background(), s.Path, []types.Symbol{s}); err != nil {
		t.Fatalf("ReplaceSymbols failed: %v", err)
	}
	if err := txn.Commit(context.Background()); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
}

func TestClassifyIntentRecognizesKeywords(t *testing.T) {
	cases := map[string]Intent{
		"where is validatePermissions defined":    IntentWhere,
		"what is the impact of removing this func": IntentImpact,
		"explain why this test fails":              IntentExplain,
		"ParseConfig":                               IntentLookup,
	}
	for q, want := range cases {
		if got := ClassifyIntent(q); got != want {
			t.Errorf("ClassifyIntent(%q) = %s, want %s", q, got, want)
		}
	}
}

func TestQueryRejectsEmptyTextBeforeTouchingStore(t *testing.T) {
	c, _ := openTestCoordinator(t)
	_, err := c.Query(context.Background(), Query{Text: "   "})
	if err == nil {
		t.Fatal("expected an error for empty query text")
	}
	if errs.ExitCodeFor(err) != errs.ErrInvalidArgument.ExitCode() {
		t.Errorf("expected invalid_argument exit code, got %d", errs.ExitCodeFor(err))
	}
}

func TestQueryReleaseCriticalFailsWithoutEvidence(t *testing.T) {
	c, engine := openTestCoordinator(t)
	seedSymbol(t, engine, types.Symbol{ID: "s1", Path: "a.go", Kind: types.SymbolFunction, Name: "Foo", Signature: "func Foo()"})

	_, err := c.Query(context.Background(), Query{Text: "Foo", ReleaseCritical: true})
	if err == nil {
		t.Fatal("expected ErrInsufficientEvidence")
	}
	if errs.ExitCodeFor(err) != errs.ErrInsufficientEvidence.ExitCode() {
		t.Errorf("expected insufficient_evidence exit code, got %d", errs.ExitCodeFor(err))
	}
}

func TestQuerySucceedsReleaseCriticalWithEvidence(t *testing.T) {
	c, engine := openTestCoordinator(t)
	seedSymbol(t, engine, types.Symbol{ID: "s1", Path: "a.go", Kind: types.SymbolFunction, Name: "Foo", Signature: "func Foo()"})

	txn, err := engine.Begin(context.Background())
	if err != nil {
		t.Fatalf("failed to begin txn: %v", err)
	}
	if err := txn.AppendEvidence(context.Background(), types.Evidence{
		ID: "ev1", Kind: types.EvidenceObservation, Subject: "s1", Confidence: 1,
		Payload: map[string]interface{}{"note": "seen"}, ContentHash: "x",
		Provenance: types.ProvenanceWet,
	}); err != nil {
		t.Fatalf("AppendEvidence failed: %v", err)
	}
	if err := txn.Commit(context.Background()); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	resp, err := c.Query(context.Background(), Query{Text: "Foo", ReleaseCritical: true})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(resp.Pack.EvidenceIDs) == 0 {
		t.Error("expected the returned pack to carry evidence ids")
	}
}

// TestQueryReleaseCriticalFailsOnSyntheticOnlyEvidence covers §4.9(c)'s
// actual requirement: citing evidence is not enough for a release-critical
// call to pass -- at least one cited entry must carry the "wet evidence"
// provenance marker. A pack backed only by synthesized/inferred entries
// must still fail the gate.
func TestQueryReleaseCriticalFailsOnSyntheticOnlyEvidence(t *testing.T) {
	c, engine := openTestCoordinator(t)
	seedSymbol(t, engine, types.Symbol{ID: "s1", Path: "a.go", Kind: types.SymbolFunction, Name: "Foo", Signature: "func Foo()"})

	txn, err := engine.Begin(context.Background())
	if err != nil {
		t.Fatalf("failed to begin txn: %v", err)
	}
	if err := txn.AppendEvidence(context.Background(), types.Evidence{
		ID: "ev1", Kind: types.EvidenceObservation, Subject: "s1", Confidence: 1,
		Payload: map[string]interface{}{"note": "inferred, not observed"}, ContentHash: "x",
		Provenance: types.ProvenanceSynthetic,
	}); err != nil {
		t.Fatalf("AppendEvidence failed: %v", err)
	}
	if err := txn.Commit(context.Background()); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	_, err = c.Query(context.Background(), Query{Text: "Foo", ReleaseCritical: true})
	if err == nil {
		t.Fatal("expected synthetic-only evidence to fail the release-critical gate")
	}
	if errs.ExitCodeFor(err) != errs.ErrInsufficientEvidence.ExitCode() {
		t.Errorf("expected insufficient_evidence exit code, got %d", errs.ExitCodeFor(err))
	}
}

func TestQueryPopulatesImpactedSymbolsForImpactIntent(t *testing.T) {
	c, engine := openTestCoordinator(t)
	// "ImpactTarget" is both an exact-match-able symbol name and, lowercased,
	// contains the "impact" keyword ClassifyIntent looks for -- letting a
	// single-word query clear L0 with full confidence while still routing
	// through IntentImpact.
	seedSymbol(t, engine, types.Symbol{ID: "target", Path: "b.go", Kind: types.SymbolFunction, Name: "ImpactTarget", Signature: "func ImpactTarget()"})
	seedSymbol(t, engine, types.Symbol{ID: "caller", Path: "a.go", Kind: types.SymbolFunction, Name: "Caller", Signature: "func Caller()"})

	txn, err := engine.Begin(context.Background())
	if err != nil {
		t.Fatalf("failed to begin txn: %v", err)
	}
	if err := txn.ReplaceEdgesFrom(context.Background(), []string{"caller"},
		[]types.Edge{{FromID: "caller", ToID: "target", Kind: types.EdgeCalls, Resolved: true}}); err != nil {
		t.Fatalf("ReplaceEdgesFrom failed: %v", err)
	}
	if err := txn.Commit(context.Background()); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	resp, err := c.Query(context.Background(), Query{Text: "ImpactTarget"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Intent != IntentImpact {
		t.Fatalf("expected IntentImpact, got %s", resp.Intent)
	}
	var sawCaller bool
	for _, id := range resp.ImpactedSymbols {
		if id == "caller" {
			sawCaller = true
		}
	}
	if !sawCaller {
		t.Errorf("expected caller in ImpactedSymbols, got %v", resp.ImpactedSymbols)
	}
}

func TestQueryEmitsCoverageGapWarningWhenNoCandidates(t *testing.T) {
	c, _ := openTestCoordinator(t)
	resp, err := c.Query(context.Background(), Query{Text: "NothingMatchesThis"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var sawCoverageGap bool
	for _, w := range resp.Warnings {
		if w.Code == "coverage_gap" {
			sawCoverageGap = true
		}
	}
	if !sawCoverageGap {
		t.Error("expected a coverage_gap warning when nothing matches")
	}
}

func TestQueryWarningsSortDegradedAheadOfCoverageGap(t *testing.T) {
	resp := Response{Warnings: []Warning{
		warnCoverageGap("no candidates"),
		warnSynthesisUnavailable("no embeddings"),
	}}
	if resp.Warnings[0].Code != "coverage_gap" {
		t.Fatalf("precondition: expected coverage_gap first before sorting")
	}
	sort.SliceStable(resp.Warnings, func(i, j int) bool { return resp.Warnings[i].Priority < resp.Warnings[j].Priority })
	if resp.Warnings[0].Code != "synthesis_unavailable" {
		t.Errorf("expected synthesis_unavailable to sort ahead of coverage_gap, got %+v", resp.Warnings)
	}
}

func TestParseCheckpointExtractsFields(t *testing.T) {
	doc := "some text\n<!-- checkpoint date: 2026-07-01 gates_reconcile_sha: abc123 claimed_status: pass -->\nmore text"
	cp, ok := ParseCheckpoint(doc)
	if !ok {
		t.Fatal("expected checkpoint to parse")
	}
	if cp.Date != "2026-07-01" || cp.GatesReconcileSHA != "abc123" || cp.ClaimedStatus != "pass" {
		t.Errorf("unexpected checkpoint fields: %+v", cp)
	}
}

func TestValidateFailsWhenGateFailsDespiteClaimedPass(t *testing.T) {
	cp := Checkpoint{ClaimedStatus: "pass"}
	gates := []GateResult{
		{Task: "unit-tests", Status: "pass"},
		{Task: "integration-tests", Status: "fail"},
	}
	ok, failing := Validate(cp, gates)
	if ok {
		t.Fatal("expected validation to fail")
	}
	if failing != "integration-tests" {
		t.Errorf("expected failing task to be integration-tests, got %q", failing)
	}
}

func TestValidatePassesWhenAllGatesPass(t *testing.T) {
	cp := Checkpoint{ClaimedStatus: "pass"}
	gates := []GateResult{{Task: "unit-tests", Status: "pass"}}
	ok, _ := Validate(cp, gates)
	if !ok {
		t.Error("expected validation to pass")
	}
}
