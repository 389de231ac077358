// Package ledger implements the Librarian's append-only evidence ledger:
// every observation, tool call, or human decision about the codebase is
// recorded as a content-addressed entry that is never mutated in place,
// grounded on the teacher's ComputeContentHash / content-hash-backfill
// discipline (internal/store/migrations.go, internal/store/local_knowledge.go
// in the source repo this was adapted from).
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/librarian-dev/librarian/internal/errs"
	"github.com/librarian-dev/librarian/internal/logging"
	"github.com/librarian-dev/librarian/internal/store"
	"github.com/librarian-dev/librarian/internal/types"
)

// Ledger is the evidence ledger, backed by the storage engine's
// evidence_entries and claims tables.
type Ledger struct {
	engine             *store.Engine
	stalenessThreshold float64
}

// New constructs a Ledger over an already-open storage engine.
func New(engine *store.Engine, stalenessThreshold float64) *Ledger {
	if stalenessThreshold <= 0 {
		stalenessThreshold = 0.6
	}
	return &Ledger{engine: engine, stalenessThreshold: stalenessThreshold}
}

// contentHash computes the canonical content hash for an evidence entry
// from every field except ContentHash itself (id, kind, subject, payload,
// related entry ids, confidence, severity, reviewer/decision/rationale,
// provenance, recorded time), mirroring the teacher's
// concept+content concatenation-then-sha256 pattern. encoding/json
// serializes map keys in sorted order, so this is stable across runs.
func contentHash(e types.Evidence) (string, error) {
	payloadJSON, err := json.Marshal(e.Payload)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize payload: %w", err)
	}
	relatedJSON, err := json.Marshal(e.RelatedEntryIDs)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize related entry ids: %w", err)
	}
	combined := fmt.Sprintf("%s::%s::%s::%s::%s::%f::%s::%s::%s::%s::%s::%d",
		e.ID, e.Kind, e.Subject, string(payloadJSON), string(relatedJSON), e.Confidence,
		e.Severity, e.ReviewerID, e.Decision, e.Rationale, e.Provenance, e.RecordedAt.UnixNano())
	sum := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(sum[:]), nil
}

// Append validates, hashes, and appends one evidence entry. Contradictions
// are appended like any other entry: they are never used to silently
// overwrite an existing claim's confidence, only surfaced at staleness
// assessment time.
func (l *Ledger) Append(ctx context.Context, e types.Evidence) (types.Evidence, error) {
	if e.Payload == nil {
		e.Payload = map[string]interface{}{}
	}
	if raw, err := json.Marshal(e.Payload); err == nil {
		if err := store.ValidatePayload(raw, e.Payload); err != nil {
			return types.Evidence{}, errs.Wrap(errs.KindValidationFailed, "evidence payload rejected", err)
		}
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}
	hash, err := contentHash(e)
	if err != nil {
		return types.Evidence{}, errs.Wrap(errs.KindValidationFailed, "failed to hash evidence", err)
	}
	e.ContentHash = hash

	txn, err := l.engine.Begin(ctx)
	if err != nil {
		return types.Evidence{}, fmt.Errorf("failed to begin ledger transaction: %w", err)
	}
	if err := txn.AppendEvidence(ctx, e); err != nil {
		txn.Rollback()
		return types.Evidence{}, fmt.Errorf("failed to append evidence: %w", err)
	}
	if err := txn.Commit(ctx); err != nil {
		return types.Evidence{}, fmt.Errorf("failed to commit evidence append: %w", err)
	}

	logging.Ledger("appended evidence %s kind=%s subject=%s", e.ID, e.Kind, e.Subject)
	return e, nil
}

// Verify re-derives an entry's content hash and compares it against the
// stored value, returning errs.ErrLedgerTamper if they diverge.
func (l *Ledger) Verify(ctx context.Context, id string) error {
	e, err := l.engine.GetEvidenceByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load evidence %s: %w", id, err)
	}
	recomputed, err := contentHash(e)
	if err != nil {
		return fmt.Errorf("failed to recompute hash for %s: %w", id, err)
	}
	if recomputed != e.ContentHash {
		logging.LedgerError("tamper detected on evidence %s: stored=%s recomputed=%s", id, e.ContentHash, recomputed)
		return errs.Wrap(errs.KindLedgerTamper, fmt.Sprintf("evidence %s", id), errs.ErrLedgerTamper)
	}
	return nil
}

// History returns every evidence entry recorded for subject in recorded
// order, verifying each entry's content hash as it loads them.
func (l *Ledger) History(ctx context.Context, subject string) ([]types.Evidence, error) {
	entries, err := l.engine.GetEvidenceForSubject(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("failed to load history for %s: %w", subject, err)
	}
	for _, e := range entries {
		recomputed, err := contentHash(e)
		if err != nil {
			continue
		}
		if recomputed != e.ContentHash {
			logging.LedgerError("tamper detected on evidence %s while reading history for %s", e.ID, subject)
			return entries, errs.Wrap(errs.KindLedgerTamper, fmt.Sprintf("entry %s in subject %s history", e.ID, subject), errs.ErrLedgerTamper)
		}
	}
	return entries, nil
}

// RecordClaim stores or replaces a claim derived from accumulated
// evidence.
func (l *Ledger) RecordClaim(ctx context.Context, c types.Claim) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.RecordedAt.IsZero() {
		c.RecordedAt = time.Now()
	}
	// Defeaters is a payload field per §4.3.5; claims degrade by truncation
	// rather than rejecting the whole write the way oversize evidence does.
	if raw, err := json.Marshal(c.Defeaters); err == nil {
		var decoded interface{}
		if err := json.Unmarshal(raw, &decoded); err == nil {
			if err := store.ValidatePayload(raw, decoded); err != nil {
				c.Defeaters = store.TruncateStringSlice(c.Defeaters, store.MaxPayloadBytes/4)
			}
		}
	}
	txn, err := l.engine.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	if err := txn.UpsertClaim(ctx, c); err != nil {
		txn.Rollback()
		return err
	}
	return txn.Commit(ctx)
}
