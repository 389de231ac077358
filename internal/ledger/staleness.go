package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/librarian-dev/librarian/internal/types"
)

// bandWindows maps a change-frequency band to the revalidation interval a
// fresh claim in that band is given.
var bandWindows = map[types.ChangeFrequencyBand]time.Duration{
	types.BandStable:   30 * 24 * time.Hour,
	types.BandModerate: 7 * 24 * time.Hour,
	types.BandVolatile: 24 * time.Hour,
}

// ClassifyBand buckets a subject's volatility from its evidence count over
// the lookback window: more than 10 entries is volatile, more than 2 is
// moderate, otherwise stable.
func ClassifyBand(recentEvidenceCount int) types.ChangeFrequencyBand {
	switch {
	case recentEvidenceCount > 10:
		return types.BandVolatile
	case recentEvidenceCount > 2:
		return types.BandModerate
	default:
		return types.BandStable
	}
}

// defeaterKinds are the evidence kinds that can make a claim stale on their
// own, per §4.4: "X is stale iff there exists evidence of type file_changed,
// api_changed, dependency_updated, test_failed, or user_feedback, affecting
// X's subject, with confidence >= a configurable minimum."
var defeaterKinds = map[types.EvidenceKind]string{
	types.EvidenceFileChanged:      "file changed",
	types.EvidenceAPIChanged:       "API changed",
	types.EvidenceDependencyUpdate: "dependency updated",
	types.EvidenceTestFailed:       "test failed",
	types.EvidenceUserFeedback:     "user feedback",
}

// AssessStaleness reports whether claimID should be treated as stale:
// qualifying evidence recorded since it was last confirmed, contradicted,
// or superseded by a human override. The volume of time since the claim
// was recorded is never, alone, a staleness signal (§4.4); NextRevalidationAt
// only drives *scheduling* of revalidation work elsewhere, not this
// judgment. AssessStaleness returns the reasons found, never more than one
// claim's worth of work, and never mutates the claim itself — staleness is
// a read-time judgment, not a write.
func (l *Ledger) AssessStaleness(ctx context.Context, claimID string) (bool, []string, error) {
	claim, err := l.engine.GetClaim(ctx, claimID)
	if err != nil {
		return false, nil, fmt.Errorf("failed to load claim %s: %w", claimID, err)
	}

	since := claim.RecordedAt.UnixNano()
	entries, err := l.engine.ListEvidenceSince(ctx, since)
	if err != nil {
		return false, nil, fmt.Errorf("failed to list evidence since claim recorded: %w", err)
	}

	var reasons []string
	visited := map[string]bool{claim.Subject: true}
	contradicted, overridden, defeated := l.walkForStaleSignals(claim.Subject, entries, visited)
	if contradicted {
		reasons = append(reasons, "contradicted by evidence recorded after claim")
	}
	if overridden {
		reasons = append(reasons, "superseded by human override")
	}
	reasons = append(reasons, defeated...)

	return len(reasons) > 0, reasons, nil
}

// walkForStaleSignals scans entries for this subject and, transitively, for
// the subject of every entry a matching entry names in RelatedEntryIDs
// (related ids are looked up among entries; ids not found there are not
// followed), honoring visited to avoid an infinite loop on a cyclic
// evidence graph. Human overrides are
// treated as dominant: once found, no further contradiction for the same
// subject can undo it within this assessment. Defeater-kind evidence only
// counts when its confidence clears l.stalenessThreshold.
func (l *Ledger) walkForStaleSignals(subject string, entries []types.Evidence, visited map[string]bool) (contradicted, overridden bool, defeaters []string) {
	var relatedSubjects []string
	for _, e := range entries {
		if e.Subject != subject {
			continue
		}
		switch e.Kind {
		case types.EvidenceHumanOverride:
			overridden = true
		case types.EvidenceContradiction:
			contradicted = true
		default:
			if label, ok := defeaterKinds[e.Kind]; ok && e.Confidence >= l.stalenessThreshold {
				defeaters = append(defeaters, fmt.Sprintf("%s (confidence %.2f)", label, e.Confidence))
			}
		}
		for _, id := range e.RelatedEntryIDs {
			for _, rel := range entries {
				if rel.ID == id && !visited[rel.Subject] {
					relatedSubjects = append(relatedSubjects, rel.Subject)
				}
			}
		}
	}

	for _, rel := range relatedSubjects {
		if visited[rel] {
			continue
		}
		visited[rel] = true
		c, o, d := l.walkForStaleSignals(rel, entries, visited)
		contradicted = contradicted || c
		overridden = overridden || o
		defeaters = append(defeaters, d...)
	}

	if overridden {
		contradicted = false
	}
	return contradicted, overridden, defeaters
}

// NextRevalidation computes the next revalidation deadline for a claim
// freshly recorded now in the given band.
func NextRevalidation(now time.Time, band types.ChangeFrequencyBand) time.Time {
	window, ok := bandWindows[band]
	if !ok {
		window = bandWindows[types.BandModerate]
	}
	return now.Add(window)
}
