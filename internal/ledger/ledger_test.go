package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/librarian-dev/librarian/internal/store"
	"github.com/librarian-dev/librarian/internal/types"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	dir := t.TempDir()
	engine, err := store.Open(context.Background(), store.DefaultOptions(dir))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { engine.Close() })
	return New(engine, 0.6)
}

func TestAppendAssignsIDAndHash(t *testing.T) {
	l := openTestLedger(t)
	e, err := l.Append(context.Background(), types.Evidence{
		Kind:    types.EvidenceObservation,
		Subject: "sym:foo",
		Payload: map[string]interface{}{"note": "looks unused"},
	})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if e.ID == "" {
		t.Error("expected Append to assign an ID")
	}
	if e.ContentHash == "" {
		t.Error("expected Append to compute a content hash")
	}
}

func TestAppendSameContentProducesSameHash(t *testing.T) {
	a := types.Evidence{Kind: types.EvidenceObservation, Subject: "sym:foo", Payload: map[string]interface{}{"note": "x"}}
	b := types.Evidence{Kind: types.EvidenceObservation, Subject: "sym:foo", Payload: map[string]interface{}{"note": "x"}}

	ha, err := contentHash(a)
	if err != nil {
		t.Fatalf("contentHash failed: %v", err)
	}
	hb, err := contentHash(b)
	if err != nil {
		t.Fatalf("contentHash failed: %v", err)
	}
	if ha != hb {
		t.Errorf("expected identical evidence to hash identically, got %s vs %s", ha, hb)
	}
}

func TestVerifyAcceptsFreshlyAppendedEntry(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	e, err := l.Append(ctx, types.Evidence{Kind: types.EvidenceObservation, Subject: "sym:foo", Payload: map[string]interface{}{"note": "x"}})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if err := l.Verify(ctx, e.ID); err != nil {
		t.Fatalf("expected freshly written entry to verify clean, got %v", err)
	}
}

func TestAppendRejectsForbiddenPayloadKey(t *testing.T) {
	l := openTestLedger(t)
	_, err := l.Append(context.Background(), types.Evidence{
		Kind:    types.EvidenceObservation,
		Subject: "sym:foo",
		Payload: map[string]interface{}{"__proto__": map[string]interface{}{}},
	})
	if err == nil {
		t.Error("expected forbidden payload key to be rejected")
	}
}

func TestHistoryOrdersOldestFirst(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := l.Append(ctx, types.Evidence{
			Kind: types.EvidenceObservation, Subject: "sym:foo",
			Payload: map[string]interface{}{"seq": float64(i)},
		}); err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}

	history, err := l.History(ctx, "sym:foo")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(history))
	}
	for i, e := range history {
		if e.Payload["seq"].(float64) != float64(i) {
			t.Errorf("expected entries in recorded order, position %d has seq %v", i, e.Payload["seq"])
		}
	}
}

// TestAssessStalenessIgnoresElapsedTimeAlone institutionalizes Scenario 2
// (spec §8): without any evidence, a claim stays fresh no matter how far
// past its revalidation window simulated time has pushed it. Time passage
// alone must never flip the stale bit.
func TestAssessStalenessIgnoresElapsedTimeAlone(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	claim := types.Claim{
		Subject:            "sym:foo",
		Text:               "sym:foo has no callers",
		Confidence:         0.9,
		Band:               types.BandStable,
		NextRevalidationAt: time.Now().Add(-24 * 365 * time.Hour),
		RecordedAt:         time.Now().Add(-24 * 365 * time.Hour),
	}
	if err := l.RecordClaim(ctx, claim); err != nil {
		t.Fatalf("RecordClaim failed: %v", err)
	}

	claims, err := l.engine.ListClaimsForSubject(ctx, "sym:foo")
	if err != nil || len(claims) != 1 {
		t.Fatalf("expected to find recorded claim, err=%v claims=%v", err, claims)
	}

	stale, reasons, err := l.AssessStaleness(ctx, claims[0].ID)
	if err != nil {
		t.Fatalf("AssessStaleness failed: %v", err)
	}
	if stale {
		t.Errorf("expected a claim with no evidence to stay fresh regardless of elapsed time, reasons=%v", reasons)
	}
}

// TestAssessStalenessFlagsQualifyingDefeaterEvidence covers §4.4's actual
// staleness rule: a defeater-kind entry (file_changed here) recorded after
// the claim, at or above the configured confidence threshold.
func TestAssessStalenessFlagsQualifyingDefeaterEvidence(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	claim := types.Claim{
		Subject: "sym:foo", Text: "sym:foo has no callers", Confidence: 0.9,
		Band: types.BandStable, NextRevalidationAt: time.Now().Add(time.Hour), RecordedAt: time.Now().Add(-time.Hour),
	}
	if err := l.RecordClaim(ctx, claim); err != nil {
		t.Fatalf("RecordClaim failed: %v", err)
	}
	claims, _ := l.engine.ListClaimsForSubject(ctx, "sym:foo")

	if _, err := l.Append(ctx, types.Evidence{
		Kind: types.EvidenceFileChanged, Subject: "sym:foo", Confidence: 0.8,
		Payload: map[string]interface{}{"path": "foo.go"},
	}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	stale, reasons, err := l.AssessStaleness(ctx, claims[0].ID)
	if err != nil {
		t.Fatalf("AssessStaleness failed: %v", err)
	}
	if !stale {
		t.Error("expected a file_changed entry above the staleness threshold to flag the claim stale")
	}
	if len(reasons) == 0 {
		t.Error("expected at least one staleness reason")
	}
}

// TestAssessStalenessIgnoresLowConfidenceDefeaterEvidence confirms the
// confidence gate on l.stalenessThreshold: a defeater-kind entry below
// threshold must not flip the bit.
func TestAssessStalenessIgnoresLowConfidenceDefeaterEvidence(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	claim := types.Claim{
		Subject: "sym:foo", Text: "sym:foo has no callers", Confidence: 0.9,
		Band: types.BandStable, NextRevalidationAt: time.Now().Add(time.Hour), RecordedAt: time.Now().Add(-time.Hour),
	}
	if err := l.RecordClaim(ctx, claim); err != nil {
		t.Fatalf("RecordClaim failed: %v", err)
	}
	claims, _ := l.engine.ListClaimsForSubject(ctx, "sym:foo")

	if _, err := l.Append(ctx, types.Evidence{
		Kind: types.EvidenceTestFailed, Subject: "sym:foo", Confidence: 0.1,
		Payload: map[string]interface{}{"test": "TestFoo"},
	}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	stale, reasons, err := l.AssessStaleness(ctx, claims[0].ID)
	if err != nil {
		t.Fatalf("AssessStaleness failed: %v", err)
	}
	if stale {
		t.Errorf("expected a below-threshold defeater entry to leave the claim fresh, reasons=%v", reasons)
	}
}

func TestAssessStalenessFlagsContradiction(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	claim := types.Claim{
		Subject: "sym:foo", Text: "sym:foo is dead code", Confidence: 0.8,
		Band: types.BandStable, NextRevalidationAt: time.Now().Add(time.Hour), RecordedAt: time.Now().Add(-time.Hour),
	}
	if err := l.RecordClaim(ctx, claim); err != nil {
		t.Fatalf("RecordClaim failed: %v", err)
	}
	claims, _ := l.engine.ListClaimsForSubject(ctx, "sym:foo")

	if _, err := l.Append(ctx, types.Evidence{
		Kind: types.EvidenceContradiction, Subject: "sym:foo",
		Payload: map[string]interface{}{"reason": "new caller found"},
	}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	stale, reasons, err := l.AssessStaleness(ctx, claims[0].ID)
	if err != nil {
		t.Fatalf("AssessStaleness failed: %v", err)
	}
	if !stale {
		t.Errorf("expected contradicted claim to be stale, reasons=%v", reasons)
	}
}

func TestHumanOverrideDominatesContradiction(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	l.Append(ctx, types.Evidence{Kind: types.EvidenceContradiction, Subject: "sym:foo", Payload: map[string]interface{}{}})
	l.Append(ctx, types.Evidence{Kind: types.EvidenceHumanOverride, Subject: "sym:foo", Payload: map[string]interface{}{}})

	c, err := l.Contradictions(ctx, "sym:foo")
	if err != nil {
		t.Fatalf("Contradictions failed: %v", err)
	}
	if !c.Resolved {
		t.Error("expected a human override recorded after the contradiction to resolve it")
	}
}
