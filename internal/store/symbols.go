package store

import (
	"context"
	"fmt"

	"github.com/librarian-dev/librarian/internal/types"
)

// ListSymbols returns every indexed symbol, used by the Retriever to build
// its in-process inverted index. Read-only, uses the read pool.
func (e *Engine) ListSymbols(ctx context.Context) ([]types.Symbol, error) {
	rows, err := e.readDB.QueryContext(ctx, `
		SELECT id, path, kind, name, receiver, signature, visibility, start_line, end_line
		FROM symbols`)
	if err != nil {
		return nil, fmt.Errorf("failed to list symbols: %w", err)
	}
	defer rows.Close()

	var out []types.Symbol
	for rows.Next() {
		var s types.Symbol
		var kind string
		if err := rows.Scan(&s.ID, &s.Path, &kind, &s.Name, &s.Receiver, &s.Signature,
			&s.Visibility, &s.StartLine, &s.EndLine); err != nil {
			return nil, err
		}
		s.Kind = types.SymbolKind(kind)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Counts reports the size of the indexed workspace for status/doctor
// reporting: row counts of the files, symbols, edges, vectors and
// evidence_entries tables.
type Counts struct {
	Files    int
	Symbols  int
	Edges    int
	Vectors  int
	Evidence int
}

// CountAll returns the current row counts across the workspace's core
// tables. Read-only, uses the read pool.
func (e *Engine) CountAll(ctx context.Context) (Counts, error) {
	var c Counts
	queries := []struct {
		table string
		dest  *int
	}{
		{"files", &c.Files},
		{"symbols", &c.Symbols},
		{"edges", &c.Edges},
		{"vectors", &c.Vectors},
		{"evidence_entries", &c.Evidence},
	}
	for _, q := range queries {
		if err := e.readDB.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", q.table)).Scan(q.dest); err != nil {
			return Counts{}, fmt.Errorf("failed to count %s: %w", q.table, err)
		}
	}
	return c, nil
}

// GetSymbol loads a single symbol by id.
func (e *Engine) GetSymbol(ctx context.Context, id string) (types.Symbol, error) {
	var s types.Symbol
	var kind string
	err := e.readDB.QueryRowContext(ctx, `
		SELECT id, path, kind, name, receiver, signature, visibility, start_line, end_line
		FROM symbols WHERE id = ?`, id).
		Scan(&s.ID, &s.Path, &kind, &s.Name, &s.Receiver, &s.Signature, &s.Visibility, &s.StartLine, &s.EndLine)
	if err != nil {
		return types.Symbol{}, fmt.Errorf("failed to load symbol %s: %w", id, err)
	}
	s.Kind = types.SymbolKind(kind)
	return s, nil
}
