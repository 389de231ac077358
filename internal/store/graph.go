package store

import (
	"context"
	"fmt"

	"github.com/librarian-dev/librarian/internal/types"
)

// UpsertFile writes or replaces a file row within an open transaction.
func (t *Txn) UpsertFile(ctx context.Context, f types.File) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO files(path, language, content_hash, size, mod_time, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			language=excluded.language, content_hash=excluded.content_hash,
			size=excluded.size, mod_time=excluded.mod_time, indexed_at=excluded.indexed_at`,
		f.Path, f.Language, f.ContentHash, f.Size, f.ModTime.UnixNano(), f.IndexedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to upsert file %s: %w", f.Path, err)
	}
	return nil
}

// DeleteFile removes a file and its symbols (FK cascade) and any edges
// naming one of those symbols.
func (t *Txn) DeleteFile(ctx context.Context, path string) error {
	rows, err := t.tx.QueryContext(ctx, `SELECT id FROM symbols WHERE path = ?`, path)
	if err != nil {
		return fmt.Errorf("failed to list symbols for %s: %w", path, err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()

	for _, id := range ids {
		if _, err := t.tx.ExecContext(ctx, `DELETE FROM edges WHERE from_id = ? OR to_id = ?`, id, id); err != nil {
			return fmt.Errorf("failed to delete edges for symbol %s: %w", id, err)
		}
	}

	if _, err := t.tx.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, path); err != nil {
		return fmt.Errorf("failed to delete file %s: %w", path, err)
	}
	return nil
}

// ReplaceSymbols deletes every symbol currently recorded for path and
// inserts the given set, used by the Indexer to keep one file's facts
// transactionally consistent across a reindex.
func (t *Txn) ReplaceSymbols(ctx context.Context, path string, symbols []types.Symbol) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM symbols WHERE path = ?`, path); err != nil {
		return fmt.Errorf("failed to clear symbols for %s: %w", path, err)
	}
	stmt, err := t.tx.PrepareContext(ctx, `
		INSERT INTO symbols(id, path, kind, name, receiver, signature, visibility, start_line, end_line)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare symbol insert: %w", err)
	}
	defer stmt.Close()
	for _, s := range symbols {
		if _, err := stmt.ExecContext(ctx, s.ID, s.Path, string(s.Kind), s.Name, s.Receiver,
			s.Signature, s.Visibility, s.StartLine, s.EndLine); err != nil {
			return fmt.Errorf("failed to insert symbol %s: %w", s.ID, err)
		}
	}
	return nil
}

// ReplaceEdgesFrom deletes every outgoing edge from the symbols in path's
// file and inserts the given set. Cross-file resolution keeps edges whose
// target isn't yet known as unresolved (Resolved=false) so a later file's
// indexing can flip them once the target symbol appears.
func (t *Txn) ReplaceEdgesFrom(ctx context.Context, fromIDs []string, edges []types.Edge) error {
	for _, id := range fromIDs {
		if _, err := t.tx.ExecContext(ctx, `DELETE FROM edges WHERE from_id = ?`, id); err != nil {
			return fmt.Errorf("failed to clear edges from %s: %w", id, err)
		}
	}
	stmt, err := t.tx.PrepareContext(ctx, `
		INSERT INTO edges(from_id, to_id, kind, resolved) VALUES (?, ?, ?, ?)
		ON CONFLICT(from_id, to_id, kind) DO UPDATE SET resolved=excluded.resolved`)
	if err != nil {
		return fmt.Errorf("failed to prepare edge insert: %w", err)
	}
	defer stmt.Close()
	for _, e := range edges {
		resolved := 0
		if e.Resolved {
			resolved = 1
		}
		if _, err := stmt.ExecContext(ctx, e.FromID, e.ToID, string(e.Kind), resolved); err != nil {
			return fmt.Errorf("failed to insert edge %s->%s: %w", e.FromID, e.ToID, err)
		}
	}
	return nil
}

// ResolveEdgesTo flips Resolved=true on any edge whose to_id now names a
// real symbol, called after a batch's symbols are all inserted so
// resolution order within the batch doesn't matter.
func (t *Txn) ResolveEdgesTo(ctx context.Context, toID string) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE edges SET resolved = 1 WHERE to_id = ? AND resolved = 0`, toID)
	if err != nil {
		return fmt.Errorf("failed to resolve edges to %s: %w", toID, err)
	}
	return nil
}

// Dependents returns symbol ids with a resolved edge pointing at symbolID
// (who depends on this symbol). Read-only, uses the read pool.
func (e *Engine) Dependents(ctx context.Context, symbolID string) ([]string, error) {
	return e.queryLinked(ctx, `SELECT from_id FROM edges WHERE to_id = ? AND resolved = 1`, symbolID)
}

// Dependencies returns symbol ids symbolID has a resolved edge pointing at
// (what this symbol depends on).
func (e *Engine) Dependencies(ctx context.Context, symbolID string) ([]string, error) {
	return e.queryLinked(ctx, `SELECT to_id FROM edges WHERE from_id = ? AND resolved = 1`, symbolID)
}

// queryLinked is the shared single-hop lookup backing Dependents and
// Dependencies. The traversal helpers below keep their own visited set and
// call queryLinked directly, once per node they expand.
func (e *Engine) queryLinked(ctx context.Context, query, id string) ([]string, error) {
	rows, err := e.readDB.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query graph: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DependentFilesOf returns the distinct file paths containing a symbol
// with a resolved edge into any symbol defined in path, used by the
// Indexer's changed_and_dependents reindex scope. A file with no resolved
// incoming edges (a leaf, or one only referenced by unresolved edges)
// returns an empty slice, not an error.
func (e *Engine) DependentFilesOf(ctx context.Context, path string) ([]string, error) {
	rows, err := e.readDB.QueryContext(ctx, `
		SELECT DISTINCT s.path FROM edges ed
		JOIN symbols s ON s.id = ed.from_id
		JOIN symbols t ON t.id = ed.to_id
		WHERE t.path = ? AND ed.resolved = 1 AND s.path != ?`, path, path)
	if err != nil {
		return nil, fmt.Errorf("failed to query dependent files of %s: %w", path, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// TraverseDependents performs a breadth-first walk of the dependents graph
// starting at symbolID, up to maxHops hops, returning every symbol reached
// (excluding the start) in discovery order. Used by the Retriever's L2
// one-hop (and occasionally deeper) graph expansion.
func (e *Engine) TraverseDependents(ctx context.Context, symbolID string, maxHops int) ([]string, error) {
	return e.traverse(ctx, symbolID, maxHops, `SELECT from_id FROM edges WHERE to_id = ? AND resolved = 1`)
}

// TraverseDependencies is the forward-direction counterpart of
// TraverseDependents.
func (e *Engine) TraverseDependencies(ctx context.Context, symbolID string, maxHops int) ([]string, error) {
	return e.traverse(ctx, symbolID, maxHops, `SELECT to_id FROM edges WHERE from_id = ? AND resolved = 1`)
}

func (e *Engine) traverse(ctx context.Context, start string, maxHops int, query string) ([]string, error) {
	visited := map[string]bool{start: true}
	frontier := []string{start}
	var order []string

	for hop := 0; hop < maxHops && len(frontier) > 0; hop++ {
		var next []string
		for _, id := range frontier {
			neighbors, err := e.queryLinked(ctx, query, id)
			if err != nil {
				return nil, err
			}
			for _, n := range neighbors {
				if visited[n] {
					continue
				}
				visited[n] = true
				order = append(order, n)
				next = append(next, n)
			}
		}
		frontier = next
	}
	return order, nil
}
