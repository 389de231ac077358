package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/librarian-dev/librarian/internal/embedding"
	"github.com/librarian-dev/librarian/internal/logging"
)

// UpsertVector stores an embedding for subjectID within an open
// transaction, mirroring it into the vec0 virtual table when the
// extension is available so ANN search can use it.
func (t *Txn) UpsertVector(ctx context.Context, subjectID, provider string, values []float32) error {
	if len(values) == 0 {
		return fmt.Errorf("refusing to store empty vector for %s", subjectID)
	}
	blob := encodeFloat32Blob(values)
	asJSON, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to marshal vector json: %w", err)
	}

	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO vectors(subject_id, dim, provider, values_json, values_blob)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(subject_id) DO UPDATE SET
			dim=excluded.dim, provider=excluded.provider,
			values_json=excluded.values_json, values_blob=excluded.values_blob`,
		subjectID, len(values), provider, string(asJSON), blob); err != nil {
		return fmt.Errorf("failed to upsert vector for %s: %w", subjectID, err)
	}

	if t.engine.vecReady {
		if err := t.mirrorToVec0(ctx, subjectID, values); err != nil {
			logging.StoreWarn("vec0 mirror failed for %s, falling back to brute-force search for this subject: %v", subjectID, err)
		}
	}

	var existing string
	err = t.tx.QueryRowContext(ctx, `SELECT value FROM store_meta WHERE key = 'embedding_dim'`).Scan(&existing)
	if err == sql.ErrNoRows {
		t.tx.ExecContext(ctx, `INSERT INTO store_meta(key, value) VALUES ('embedding_dim', ?)`, fmt.Sprintf("%d", len(values)))
	}
	return nil
}

func (t *Txn) mirrorToVec0(ctx context.Context, subjectID string, values []float32) error {
	if _, err := t.tx.ExecContext(ctx, fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS vec_vectors USING vec0(subject_id TEXT PRIMARY KEY, embedding float[%d])`,
		t.engine.vecDim)); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO vec_vectors(subject_id, embedding) VALUES (?, ?) ON CONFLICT(subject_id) DO UPDATE SET embedding=excluded.embedding`,
		subjectID, encodeFloat32Blob(values))
	return err
}

// DeleteVector removes subjectID's stored embedding.
func (t *Txn) DeleteVector(ctx context.Context, subjectID string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM vectors WHERE subject_id = ?`, subjectID); err != nil {
		return fmt.Errorf("failed to delete vector for %s: %w", subjectID, err)
	}
	if t.engine.vecReady {
		t.tx.ExecContext(ctx, `DELETE FROM vec_vectors WHERE subject_id = ?`, subjectID)
	}
	return nil
}

// VectorNeighbor is one scored result of a nearest-neighbor search.
type VectorNeighbor struct {
	SubjectID  string
	Similarity float64
}

// SearchVectors finds the k nearest stored vectors to query by cosine
// similarity. When the vec0 extension is active it is used for an
// approximate nearest-neighbor search; otherwise every stored vector is
// scanned and ranked with embedding.FindTopK, the documented fallback for
// workspaces without the native extension.
func (e *Engine) SearchVectors(ctx context.Context, query []float32, k int) ([]VectorNeighbor, error) {
	if e.vecReady {
		neighbors, err := e.searchVec0(ctx, query, k)
		if err == nil {
			return neighbors, nil
		}
		logging.StoreWarn("vec0 search failed, falling back to brute-force: %v", err)
	}
	return e.searchBruteForce(ctx, query, k)
}

func (e *Engine) searchVec0(ctx context.Context, query []float32, k int) ([]VectorNeighbor, error) {
	rows, err := e.readDB.QueryContext(ctx, `
		SELECT subject_id, distance FROM vec_vectors
		WHERE embedding MATCH ? AND k = ?
		ORDER BY distance`, encodeFloat32Blob(query), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VectorNeighbor
	for rows.Next() {
		var id string
		var dist float64
		if err := rows.Scan(&id, &dist); err != nil {
			return nil, err
		}
		out = append(out, VectorNeighbor{SubjectID: id, Similarity: 1 - dist})
	}
	return out, rows.Err()
}

func (e *Engine) searchBruteForce(ctx context.Context, query []float32, k int) ([]VectorNeighbor, error) {
	rows, err := e.readDB.QueryContext(ctx, `SELECT subject_id, values_json FROM vectors`)
	if err != nil {
		return nil, fmt.Errorf("failed to scan vectors: %w", err)
	}
	defer rows.Close()

	var ids []string
	var corpus [][]float32
	for rows.Next() {
		var id, valuesJSON string
		if err := rows.Scan(&id, &valuesJSON); err != nil {
			return nil, err
		}
		var vec []float32
		if err := json.Unmarshal([]byte(valuesJSON), &vec); err != nil {
			continue
		}
		ids = append(ids, id)
		corpus = append(corpus, vec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	results, err := embedding.FindTopK(query, corpus, k)
	if err != nil {
		return nil, fmt.Errorf("brute-force vector search failed: %w", err)
	}
	out := make([]VectorNeighbor, 0, len(results))
	for _, r := range results {
		out = append(out, VectorNeighbor{SubjectID: ids[r.Index], Similarity: r.Similarity})
	}
	return out, nil
}

func encodeFloat32Blob(values []float32) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}
