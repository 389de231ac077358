package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/librarian-dev/librarian/internal/types"
)

// EvidenceRow is the persisted shape of one ledger entry, kept distinct
// from types.Evidence so the store package never has to special-case a
// missing optional field when scanning.
type EvidenceRow struct {
	types.Evidence
}

// AppendEvidence inserts one evidence entry inside an open transaction.
// The ledger package computes ContentHash before calling this; the store
// layer does not recompute or verify it, keeping hashing policy in one
// place.
func (t *Txn) AppendEvidence(ctx context.Context, e types.Evidence) error {
	payloadJSON, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal evidence payload: %w", err)
	}
	relatedJSON, err := json.Marshal(e.RelatedEntryIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal related ids: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO evidence_entries(id, kind, subject, payload_json, related_ids_json,
			confidence, severity, reviewer_id, decision, rationale, provenance, content_hash, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Kind), e.Subject, string(payloadJSON), string(relatedJSON),
		e.Confidence, e.Severity, e.ReviewerID, e.Decision, e.Rationale, e.Provenance, e.ContentHash, e.RecordedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to append evidence %s: %w", e.ID, err)
	}
	return nil
}

// GetEvidenceForSubject returns every evidence entry recorded for subject,
// oldest first.
func (e *Engine) GetEvidenceForSubject(ctx context.Context, subject string) ([]types.Evidence, error) {
	rows, err := e.readDB.QueryContext(ctx, `
		SELECT id, kind, subject, payload_json, related_ids_json, confidence, severity,
			reviewer_id, decision, rationale, provenance, content_hash, recorded_at
		FROM evidence_entries WHERE subject = ? ORDER BY recorded_at ASC`, subject)
	if err != nil {
		return nil, fmt.Errorf("failed to query evidence for %s: %w", subject, err)
	}
	defer rows.Close()
	return scanEvidenceRows(rows)
}

// GetEvidenceByID fetches a single evidence entry by id.
func (e *Engine) GetEvidenceByID(ctx context.Context, id string) (types.Evidence, error) {
	row := e.readDB.QueryRowContext(ctx, `
		SELECT id, kind, subject, payload_json, related_ids_json, confidence, severity,
			reviewer_id, decision, rationale, provenance, content_hash, recorded_at
		FROM evidence_entries WHERE id = ?`, id)
	return scanEvidenceRow(row)
}

// ListEvidenceSince returns every evidence entry recorded at or after
// sinceNanos, used by staleness assessment to find recent contradictions.
func (e *Engine) ListEvidenceSince(ctx context.Context, sinceNanos int64) ([]types.Evidence, error) {
	rows, err := e.readDB.QueryContext(ctx, `
		SELECT id, kind, subject, payload_json, related_ids_json, confidence, severity,
			reviewer_id, decision, rationale, provenance, content_hash, recorded_at
		FROM evidence_entries WHERE recorded_at >= ? ORDER BY recorded_at ASC`, sinceNanos)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent evidence: %w", err)
	}
	defer rows.Close()
	return scanEvidenceRows(rows)
}

func scanEvidenceRows(rows *sql.Rows) ([]types.Evidence, error) {
	var out []types.Evidence
	for rows.Next() {
		e, err := scanEvidenceCols(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanEvidenceRow(row *sql.Row) (types.Evidence, error) {
	return scanEvidenceCols(row)
}

func scanEvidenceCols(s scannable) (types.Evidence, error) {
	var e types.Evidence
	var kind string
	var payloadJSON, relatedJSON string
	var severity, reviewerID, decision, rationale, provenance sql.NullString
	var recordedAt int64
	err := s.Scan(&e.ID, &kind, &e.Subject, &payloadJSON, &relatedJSON, &e.Confidence,
		&severity, &reviewerID, &decision, &rationale, &provenance, &e.ContentHash, &recordedAt)
	if err != nil {
		return e, err
	}
	e.Kind = types.EvidenceKind(kind)
	e.Severity = severity.String
	e.ReviewerID = reviewerID.String
	e.Decision = decision.String
	e.Rationale = rationale.String
	e.Provenance = provenance.String
	e.RecordedAt = nanosToTime(recordedAt)
	if err := json.Unmarshal([]byte(payloadJSON), &e.Payload); err != nil {
		return e, fmt.Errorf("failed to unmarshal evidence payload: %w", err)
	}
	if relatedJSON != "" && relatedJSON != "null" {
		if err := json.Unmarshal([]byte(relatedJSON), &e.RelatedEntryIDs); err != nil {
			return e, fmt.Errorf("failed to unmarshal related ids: %w", err)
		}
	}
	return e, nil
}

// UpsertClaim writes or replaces a claim row inside an open transaction.
func (t *Txn) UpsertClaim(ctx context.Context, c types.Claim) error {
	evidenceJSON, err := json.Marshal(c.EvidenceIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal claim evidence ids: %w", err)
	}
	defeatersJSON, err := json.Marshal(c.Defeaters)
	if err != nil {
		return fmt.Errorf("failed to marshal claim defeaters: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO claims(id, subject, text, confidence, band, evidence_ids_json, defeaters_json, next_revalidation_at, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			text=excluded.text, confidence=excluded.confidence, band=excluded.band,
			evidence_ids_json=excluded.evidence_ids_json, defeaters_json=excluded.defeaters_json,
			next_revalidation_at=excluded.next_revalidation_at`,
		c.ID, c.Subject, c.Text, c.Confidence, string(c.Band), string(evidenceJSON), string(defeatersJSON),
		c.NextRevalidationAt.UnixNano(), c.RecordedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to upsert claim %s: %w", c.ID, err)
	}
	return nil
}

// GetClaim fetches a claim by id.
func (e *Engine) GetClaim(ctx context.Context, id string) (types.Claim, error) {
	var c types.Claim
	var band string
	var evidenceJSON, defeatersJSON sql.NullString
	var nextRevalidation, recordedAt int64
	row := e.readDB.QueryRowContext(ctx, `
		SELECT id, subject, text, confidence, band, evidence_ids_json, defeaters_json, next_revalidation_at, recorded_at
		FROM claims WHERE id = ?`, id)
	if err := row.Scan(&c.ID, &c.Subject, &c.Text, &c.Confidence, &band, &evidenceJSON, &defeatersJSON, &nextRevalidation, &recordedAt); err != nil {
		return c, err
	}
	c.Band = types.ChangeFrequencyBand(band)
	if err := unmarshalStringSlice(evidenceJSON, &c.EvidenceIDs); err != nil {
		return c, fmt.Errorf("failed to unmarshal claim evidence ids: %w", err)
	}
	if err := unmarshalStringSlice(defeatersJSON, &c.Defeaters); err != nil {
		return c, fmt.Errorf("failed to unmarshal claim defeaters: %w", err)
	}
	c.NextRevalidationAt = nanosToTime(nextRevalidation)
	c.RecordedAt = nanosToTime(recordedAt)
	return c, nil
}

// ListClaimsForSubject returns every claim recorded about subject.
func (e *Engine) ListClaimsForSubject(ctx context.Context, subject string) ([]types.Claim, error) {
	rows, err := e.readDB.QueryContext(ctx, `
		SELECT id, subject, text, confidence, band, evidence_ids_json, defeaters_json, next_revalidation_at, recorded_at
		FROM claims WHERE subject = ? ORDER BY recorded_at ASC`, subject)
	if err != nil {
		return nil, fmt.Errorf("failed to query claims for %s: %w", subject, err)
	}
	defer rows.Close()

	var out []types.Claim
	for rows.Next() {
		var c types.Claim
		var band string
		var evidenceJSON, defeatersJSON sql.NullString
		var nextRevalidation, recordedAt int64
		if err := rows.Scan(&c.ID, &c.Subject, &c.Text, &c.Confidence, &band, &evidenceJSON, &defeatersJSON, &nextRevalidation, &recordedAt); err != nil {
			return nil, err
		}
		c.Band = types.ChangeFrequencyBand(band)
		if err := unmarshalStringSlice(evidenceJSON, &c.EvidenceIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal claim evidence ids: %w", err)
		}
		if err := unmarshalStringSlice(defeatersJSON, &c.Defeaters); err != nil {
			return nil, fmt.Errorf("failed to unmarshal claim defeaters: %w", err)
		}
		c.NextRevalidationAt = nanosToTime(nextRevalidation)
		c.RecordedAt = nanosToTime(recordedAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

func unmarshalStringSlice(ns sql.NullString, out *[]string) error {
	if !ns.Valid || ns.String == "" || ns.String == "null" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), out)
}
