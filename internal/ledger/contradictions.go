package ledger

import (
	"context"
	"fmt"

	"github.com/librarian-dev/librarian/internal/types"
)

// Contradiction pairs a subject with the opposing evidence entries found
// for it. The ledger never auto-resolves these: a human override is the
// only entry kind that can settle one, and even then the contradiction
// entries themselves stay in the ledger unmodified.
type Contradiction struct {
	Subject  string
	Entries  []types.Evidence
	Resolved bool // true if a human override for this subject was recorded after the contradictions
}

// Contradictions returns every EvidenceContradiction entry recorded for
// subject, and whether a later EvidenceHumanOverride entry resolves them.
func (l *Ledger) Contradictions(ctx context.Context, subject string) (Contradiction, error) {
	history, err := l.History(ctx, subject)
	if err != nil {
		return Contradiction{}, fmt.Errorf("failed to load history for %s: %w", subject, err)
	}

	result := Contradiction{Subject: subject}
	var lastOverrideAt int64
	for _, e := range history {
		switch e.Kind {
		case types.EvidenceContradiction:
			result.Entries = append(result.Entries, e)
		case types.EvidenceHumanOverride:
			lastOverrideAt = e.RecordedAt.UnixNano()
		}
	}

	if lastOverrideAt > 0 {
		allBeforeOverride := true
		for _, e := range result.Entries {
			if e.RecordedAt.UnixNano() > lastOverrideAt {
				allBeforeOverride = false
				break
			}
		}
		result.Resolved = allBeforeOverride
	}
	return result, nil
}
