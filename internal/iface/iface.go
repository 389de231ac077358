// Package iface declares the capability interfaces that separate the
// Librarian's components from each other and from external collaborators
// (a CLI driver, an agent-dispatch sandbox, a review harness, doc tooling,
// calibration dashboards, packaging, specific LLM vendors). Those
// collaborators are reached only through the interfaces here; nothing in
// this package depends on a concrete implementation.
package iface

import (
	"context"

	"github.com/librarian-dev/librarian/internal/types"
)

// Extractor turns file content into facts (symbols + edges).
type Extractor interface {
	Extract(ctx context.Context, path, language string, content []byte) (FactSet, error)
}

// FactSet is everything one extraction pass produced for one file.
type FactSet struct {
	File        types.File
	Symbols     []types.Symbol
	Edges       []types.Edge
	Diagnostics []string
}

// EmbeddingProvider generates vector embeddings for text.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
}

// Storage is the durable record + coordination-counter surface the rest
// of the system depends on.
type Storage interface {
	Dependents(ctx context.Context, symbolID string) ([]string, error)
	Dependencies(ctx context.Context, symbolID string) ([]string, error)
	GetChangeEvents(ctx context.Context, sinceVersion int64, selectors ...string) ([]types.ChangeEvent, error)
}

// Ledger is the append-only evidence log.
type Ledger interface {
	Append(ctx context.Context, e types.Evidence) (types.Evidence, error)
	AssessStaleness(ctx context.Context, claimID string) (bool, []string, error)
}

// EvidenceSource looks up a single evidence entry by id -- the minimal
// capability the Coordinator needs to check a pack's cited evidence for a
// release-critical-grade provenance marker without depending on the full
// storage engine.
type EvidenceSource interface {
	GetEvidenceByID(ctx context.Context, id string) (types.Evidence, error)
}

// Indexer drives extraction + storage + resolution.
type Indexer interface {
	Bootstrap(ctx context.Context) error
	Reindex(ctx context.Context, changedPaths []string, scope string) error
	Remove(ctx context.Context, paths []string) error
}

// Retriever finds candidate symbols/files for a query at a given depth.
type Retriever interface {
	Search(ctx context.Context, query string, depth string) ([]RetrievalHit, error)
}

// RetrievalHit is one scored candidate from a Retriever.Search call.
type RetrievalHit struct {
	SymbolID   string
	Score      float64
	Confidence float64
}

// PackAssembler builds token-budgeted, citation-bearing context packs.
type PackAssembler interface {
	Build(ctx context.Context, intent string, hits []RetrievalHit, tokenBudget int) (types.Pack, error)
}

// ToolSurface is the thin, interface-only boundary an external
// agent-dispatch/tool-calling layer would use to invoke the Librarian
// without this module depending on that layer's implementation.
type ToolSurface interface {
	Call(ctx context.Context, tool string, args map[string]interface{}) (Envelope, error)
}

// Envelope is the wire-shaped response of a ToolSurface call.
type Envelope struct {
	OK      bool                   `json:"ok"`
	Result  map[string]interface{} `json:"result,omitempty"`
	Error   string                 `json:"error,omitempty"`
}
