// Package graph projects the storage engine's resolved edge table into an
// in-process Datalog fact store so impact-analysis queries can ask for the
// full, cycle-safe transitive closure of a symbol's dependents or
// dependencies instead of a manually hop-bounded walk. Grounded on
// internal/mangle/engine.go's Engine.ReplaceFactsForFile /
// Engine.QueryFacts pattern (the teacher's own Datalog wrapper around
// github.com/google/mangle), rebuilt wholesale on every storage version
// change the same way internal/retrieval's inverted index is.
package graph

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/librarian-dev/librarian/internal/mangle"
	"github.com/librarian-dev/librarian/internal/store"
)

// schema declares one EDB predicate (depends_on, populated straight from
// the edges table) and two IDB rules computing its transitive closure.
// Mangle's bottom-up fixpoint evaluation over a finite, deduplicated fact
// store makes reaches/depends_on cycle-safe without any visited-set
// bookkeeping on this package's side.
const schema = `
Decl depends_on(From, To).
Decl reaches(From, To).
reaches(X, Y) :- depends_on(X, Y).
reaches(X, Y) :- depends_on(X, Z), reaches(Z, Y).
`

// Projection holds a Datalog view of the dependency graph, rebuilt from an
// Engine whenever the storage engine's coordination counter advances.
type Projection struct {
	engine *store.Engine

	mu      sync.RWMutex
	mangle  *mangle.Engine
	version int64
}

// New constructs a Projection over an already-open storage engine. The
// underlying Datalog engine is created lazily on first Refresh so a
// Projection that is never queried never pays for schema compilation.
func New(engine *store.Engine) *Projection {
	return &Projection{engine: engine}
}

func (p *Projection) ensureEngine() (*mangle.Engine, error) {
	if p.mangle != nil {
		return p.mangle, nil
	}
	eng, err := mangle.NewEngine(mangle.DefaultConfig(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create graph projection engine: %w", err)
	}
	if err := eng.LoadSchemaString(schema); err != nil {
		return nil, fmt.Errorf("failed to load graph projection schema: %w", err)
	}
	p.mangle = eng
	return eng, nil
}

// Refresh reloads every resolved edge into the Datalog store and
// recomputes the transitive closure. Called lazily by TransitiveDependents
// and TransitiveDependencies when the storage engine's version has moved
// past what was last projected.
func (p *Projection) Refresh(ctx context.Context) error {
	eng, err := p.ensureEngine()
	if err != nil {
		return err
	}

	symbols, err := p.engine.ListSymbols(ctx)
	if err != nil {
		return fmt.Errorf("failed to list symbols for graph projection: %w", err)
	}
	version, err := p.engine.CurrentVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to read coordination counter: %w", err)
	}

	facts := make([]mangle.Fact, 0, len(symbols))
	for _, s := range symbols {
		deps, err := p.engine.Dependencies(ctx, s.ID)
		if err != nil {
			return fmt.Errorf("failed to read dependencies of %s: %w", s.ID, err)
		}
		for _, to := range deps {
			facts = append(facts, mangle.Fact{Predicate: "depends_on", Args: []interface{}{s.ID, to}})
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	eng.Clear()
	// AutoEval (set by DefaultConfig) recomputes reaches/2 as part of
	// AddFacts; an empty edge set needs no explicit recomputation.
	if len(facts) > 0 {
		if err := eng.AddFacts(facts); err != nil {
			return fmt.Errorf("failed to load graph projection facts: %w", err)
		}
	}
	p.version = version
	return nil
}

func (p *Projection) ensureFresh(ctx context.Context) error {
	current, err := p.engine.CurrentVersion(ctx)
	if err != nil {
		return err
	}
	p.mu.RLock()
	stale := p.mangle == nil || current != p.version
	p.mu.RUnlock()
	if stale {
		return p.Refresh(ctx)
	}
	return nil
}

// TransitiveDependencies returns every symbol id reachable by following
// depends_on edges forward from symbolID, however many hops away, with no
// risk of infinite looping through a dependency cycle.
func (p *Projection) TransitiveDependencies(ctx context.Context, symbolID string) ([]string, error) {
	if err := p.ensureFresh(ctx); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return matchColumn(p.mangle.QueryFacts("reaches", symbolID, ""), 1), nil
}

// TransitiveDependents returns every symbol id that transitively depends
// on symbolID (the reverse direction of TransitiveDependencies).
func (p *Projection) TransitiveDependents(ctx context.Context, symbolID string) ([]string, error) {
	if err := p.ensureFresh(ctx); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return matchColumn(p.mangle.QueryFacts("reaches", "", symbolID), 0), nil
}

func matchColumn(facts []mangle.Fact, column int) []string {
	out := make([]string, 0, len(facts))
	for _, f := range facts {
		if column >= len(f.Args) {
			continue
		}
		// Mangle hands identifier-like strings back as name constants with a
		// leading "/"; stored symbol ids never start with one.
		if s, ok := f.Args[column].(string); ok {
			out = append(out, strings.TrimPrefix(s, "/"))
		}
	}
	return out
}
