// Package coordinator implements the Query Coordinator: the single
// entrypoint that classifies a query's intent, drives L0->L1->L2
// escalation against depth-dependent confidence floors, assembles the
// resulting context pack, and enforces the release-critical evidence
// policy gate before handing a pack back to a caller. Grounded on the
// teacher's TieredContextBuilder escalation shape (internal/retrieval/
// tiered_context.go in the source repo this was adapted from, generalized
// from fixed percentage tiers into confidence-floor-driven depth
// escalation) and on internal/errs for the typed failure surface.
package coordinator

import (
	"context"
	"sort"
	"strings"

	"github.com/librarian-dev/librarian/internal/errs"
	"github.com/librarian-dev/librarian/internal/iface"
	"github.com/librarian-dev/librarian/internal/logging"
	"github.com/librarian-dev/librarian/internal/retrieval"
	"github.com/librarian-dev/librarian/internal/types"
)

// Intent is the classified purpose of a query.
type Intent string

const (
	IntentLookup  Intent = "lookup"
	IntentExplain Intent = "explain"
	IntentImpact  Intent = "impact"
	IntentWhere   Intent = "where"
)

// ClassifyIntent applies a small keyword heuristic to a query string.
// Order matters: "impact" and "where" are checked before "explain" since
// their trigger words are more specific; a query matching none of them is
// classified as a lookup.
func ClassifyIntent(query string) Intent {
	q := strings.ToLower(query)
	switch {
	case strings.Contains(q, "impact") || strings.Contains(q, "affect") || strings.Contains(q, "break"):
		return IntentImpact
	case strings.Contains(q, "where") || strings.Contains(q, "located") || strings.Contains(q, "find"):
		return IntentWhere
	case strings.Contains(q, "why") || strings.Contains(q, "how") || strings.Contains(q, "explain"):
		return IntentExplain
	default:
		return IntentLookup
	}
}

// ConfidenceFloors maps each retrieval depth to the minimum confidence a
// depth's top hit must clear before the Coordinator stops escalating.
type ConfidenceFloors struct {
	L0 float64
	L1 float64
	L2 float64
}

// DefaultConfidenceFloors mirrors internal/config.CoordinatorConfig's
// defaults: L2 never escalates further since it has no floor to clear.
func DefaultConfidenceFloors() ConfidenceFloors {
	return ConfidenceFloors{L0: 0.75, L1: 0.55, L2: 0.0}
}

func (f ConfidenceFloors) forDepth(depth string) float64 {
	switch depth {
	case retrieval.DepthL0:
		return f.L0
	case retrieval.DepthL1:
		return f.L1
	default:
		return f.L2
	}
}

// Warning is one degraded-operation notice attached to a Response. Priority
// controls sort order: lower values sort first.
type Warning struct {
	Code     string
	Message  string
	Priority int
}

const (
	priorityDegradedStorage      = 0
	prioritySynthesisUnavailable = 0
	priorityCoverageGap          = 10
)

func warnDegradedStorage(msg string) Warning {
	return Warning{Code: "degraded_storage", Message: msg, Priority: priorityDegradedStorage}
}

func warnSynthesisUnavailable(msg string) Warning {
	return Warning{Code: "synthesis_unavailable", Message: msg, Priority: prioritySynthesisUnavailable}
}

func warnCoverageGap(msg string) Warning {
	return Warning{Code: "coverage_gap", Message: msg, Priority: priorityCoverageGap}
}

// Query is one request to the Coordinator.
type Query struct {
	Text            string
	ReleaseCritical bool
	TokenBudget     int
}

// Validate checks the required fields of a Query before any storage access
// happens, per §4.9(c)'s "missing required fields fail before the store is
// touched".
func (q Query) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return errs.Wrap(errs.KindInvalidArgument, "query text is required", nil)
	}
	return nil
}

// Response is the Coordinator's answer to a Query.
type Response struct {
	Pack         types.Pack
	Intent       Intent
	DepthReached string
	Warnings     []Warning

	// ImpactedSymbols is populated only for IntentImpact queries: the full
	// transitive blast radius of the pack's top hit, per the Datalog
	// projection in internal/graph. Empty for every other intent.
	ImpactedSymbols []string
}

// Coordinator wires a Retriever and PackAssembler together with the
// escalation and evidence-gate policy of §4.9.
type Coordinator struct {
	retriever *retrieval.Retriever
	packs     iface.PackAssembler
	floors    ConfidenceFloors
	embedding iface.EmbeddingProvider
	evidence  iface.EvidenceSource
}

// New constructs a Coordinator. embedding may be nil, which routes every
// query through the structural (non-vector) strategy and attaches a
// provider_unavailable-flavored warning. evidence backs the
// release-critical wet-evidence gate (§4.9(c)); a nil evidence source
// makes every release-critical query fail that gate, since it has no way
// to confirm a cited entry's provenance.
func New(r *retrieval.Retriever, p iface.PackAssembler, floors ConfidenceFloors, embedding iface.EmbeddingProvider, evidence iface.EvidenceSource) *Coordinator {
	return &Coordinator{retriever: r, packs: p, floors: floors, embedding: embedding, evidence: evidence}
}

// Query classifies intent, escalates depth until a floor is cleared or L2
// is exhausted, builds the resulting pack, and enforces the
// release-critical evidence gate.
func (c *Coordinator) Query(ctx context.Context, q Query) (Response, error) {
	if err := q.Validate(); err != nil {
		return Response{}, err
	}

	resp := Response{Intent: ClassifyIntent(q.Text)}
	if c.embedding == nil {
		resp.Warnings = append(resp.Warnings, warnSynthesisUnavailable("no embedding provider configured; using structural search only"))
	}

	depths := []string{retrieval.DepthL0, retrieval.DepthL1, retrieval.DepthL2}
	var hits []iface.RetrievalHit
	var reached string

	for _, depth := range depths {
		found, err := c.retriever.Search(ctx, q.Text, depth)
		if err != nil {
			logging.CoordinatorWarn("search at depth %s failed: %v", depth, err)
			resp.Warnings = append(resp.Warnings, warnDegradedStorage("retrieval backend returned an error during "+depth+" search"))
			continue
		}
		hits = found
		reached = depth

		if topConfidence(hits) >= c.floors.forDepth(depth) {
			break
		}
	}
	resp.DepthReached = reached

	if len(hits) == 0 {
		resp.Warnings = append(resp.Warnings, warnCoverageGap("no candidates found at any depth for this query"))
	}

	budget := q.TokenBudget
	if budget <= 0 {
		budget = 4000
	}
	pack, err := c.packs.Build(ctx, string(resp.Intent), hits, budget)
	if err != nil {
		return Response{}, errs.Wrap(errs.KindValidationFailed, "failed to assemble context pack", err)
	}
	pack.Depth = reached
	resp.Pack = pack

	if q.ReleaseCritical {
		wet, err := c.hasWetEvidence(ctx, pack.EvidenceIDs)
		if err != nil {
			logging.CoordinatorWarn("wet-evidence check failed: %v", err)
			return Response{}, errs.ErrInsufficientEvidence
		}
		if !wet {
			return Response{}, errs.ErrInsufficientEvidence
		}
	}

	if resp.Intent == IntentImpact && len(hits) > 0 {
		impacted, err := c.retriever.ImpactRadius(ctx, topHit(hits).SymbolID)
		if err != nil {
			logging.CoordinatorWarn("impact radius computation failed: %v", err)
			resp.Warnings = append(resp.Warnings, warnDegradedStorage("could not compute the full dependency closure for this impact query"))
		} else {
			resp.ImpactedSymbols = impacted
		}
	}

	sort.SliceStable(resp.Warnings, func(i, j int) bool { return resp.Warnings[i].Priority < resp.Warnings[j].Priority })
	return resp, nil
}

// hasWetEvidence reports whether at least one of ids names an evidence
// entry with a non-empty "wet evidence" provenance marker -- the §4.9(c)
// release-critical requirement, which is stricter than merely citing some
// evidence: a pack built entirely from synthesized/inferred entries must
// still fail this gate.
func (c *Coordinator) hasWetEvidence(ctx context.Context, ids []string) (bool, error) {
	if c.evidence == nil {
		return false, nil
	}
	for _, id := range ids {
		e, err := c.evidence.GetEvidenceByID(ctx, id)
		if err != nil {
			logging.CoordinatorWarn("failed to load evidence %s for provenance check: %v", id, err)
			continue
		}
		if e.Provenance == types.ProvenanceWet {
			return true, nil
		}
	}
	return false, nil
}

// topHit returns the highest-confidence hit, the seed impact analysis
// expands outward from.
func topHit(hits []iface.RetrievalHit) iface.RetrievalHit {
	best := hits[0]
	for _, h := range hits[1:] {
		if h.Confidence > best.Confidence {
			best = h
		}
	}
	return best
}

func topConfidence(hits []iface.RetrievalHit) float64 {
	var best float64
	for _, h := range hits {
		if h.Confidence > best {
			best = h.Confidence
		}
	}
	return best
}
