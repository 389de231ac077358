// Package mcp adapts the Librarian's core (Coordinator, Store) to an
// MCP-style tool surface: a single Call(ctx, tool, args) entrypoint that an
// external agent-dispatch layer can invoke without this module depending on
// that layer's own types. Grounded on the teacher's chat command dispatcher
// (cmd/nerd/chat/commands.go's switch over slash-command names) generalized
// from string-keyed chat commands into string-keyed tool names, each
// returning a JSON-shaped envelope instead of writing to a terminal.
package mcp

import (
	"context"
	"fmt"

	"github.com/librarian-dev/librarian/internal/coordinator"
	"github.com/librarian-dev/librarian/internal/iface"
	"github.com/librarian-dev/librarian/internal/store"
)

// Tool names this surface recognizes.
const (
	ToolSemanticSearch = "semantic_search"
	ToolGetContextPack = "get_context_pack"
	ToolStatus         = "status"
)

// Server implements iface.ToolSurface as a thin adapter over a Coordinator
// and the Store it was built from. It holds no state of its own beyond
// those two collaborators.
type Server struct {
	coord  *coordinator.Coordinator
	engine *store.Engine
}

// New constructs a Server. engine may be the same Engine the coordinator's
// Retriever/PackAssembler were built from; it is used directly only by the
// status tool, which needs row counts the Coordinator has no reason to
// expose.
func New(coord *coordinator.Coordinator, engine *store.Engine) *Server {
	return &Server{coord: coord, engine: engine}
}

var _ iface.ToolSurface = (*Server)(nil)

// Call dispatches to one of the three named tools. An unrecognized tool
// name or a missing required argument returns a well-formed error Envelope
// rather than a Go error, matching the "always one JSON document" contract
// this surface exists to offer external callers.
func (s *Server) Call(ctx context.Context, tool string, args map[string]interface{}) (iface.Envelope, error) {
	switch tool {
	case ToolSemanticSearch:
		return s.semanticSearch(ctx, args)
	case ToolGetContextPack:
		return s.getContextPack(ctx, args)
	case ToolStatus:
		return s.status(ctx, args)
	default:
		return errEnvelope(fmt.Sprintf("unknown tool %q", tool)), nil
	}
}

func stringArg(args map[string]interface{}, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

func intArg(args map[string]interface{}, key string, fallback int) int {
	v, ok := args[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case int:
		return n
	case float64: // the common shape once args round-trips through encoding/json
		return int(n)
	default:
		return fallback
	}
}

func boolArg(args map[string]interface{}, key string) bool {
	v, ok := args[key].(bool)
	return ok && v
}

func errEnvelope(msg string) iface.Envelope {
	return iface.Envelope{OK: false, Error: msg}
}

// semanticSearch runs a query through the Coordinator at whatever depth it
// escalates to and returns the resulting key facts, without enforcing the
// release-critical evidence gate -- that gate is a get_context_pack concern,
// since a bare search is exploratory by nature.
func (s *Server) semanticSearch(ctx context.Context, args map[string]interface{}) (iface.Envelope, error) {
	text, ok := stringArg(args, "query")
	if !ok {
		return errEnvelope("semantic_search requires a non-empty \"query\" argument"), nil
	}

	resp, err := s.coord.Query(ctx, coordinator.Query{
		Text:        text,
		TokenBudget: intArg(args, "tokenBudget", 0),
	})
	if err != nil {
		return errEnvelope(err.Error()), nil
	}

	facts := make([]map[string]interface{}, 0, len(resp.Pack.KeyFacts))
	for _, f := range resp.Pack.KeyFacts {
		facts = append(facts, map[string]interface{}{
			"symbolId":    f.SymbolID,
			"text":        f.Text,
			"evidenceIds": f.EvidenceIDs,
			"unverified":  f.Unverified,
		})
	}

	return iface.Envelope{
		OK: true,
		Result: map[string]interface{}{
			"intent":       string(resp.Intent),
			"depthReached": resp.DepthReached,
			"keyFacts":     facts,
			"confidence":   resp.Pack.Confidence,
		},
	}, nil
}

// getContextPack runs a query through the Coordinator and returns the full
// assembled pack, honoring the releaseCritical argument's evidence gate.
func (s *Server) getContextPack(ctx context.Context, args map[string]interface{}) (iface.Envelope, error) {
	text, ok := stringArg(args, "query")
	if !ok {
		return errEnvelope("get_context_pack requires a non-empty \"query\" argument"), nil
	}

	resp, err := s.coord.Query(ctx, coordinator.Query{
		Text:            text,
		ReleaseCritical: boolArg(args, "releaseCritical"),
		TokenBudget:     intArg(args, "tokenBudget", 0),
	})
	if err != nil {
		return errEnvelope(err.Error()), nil
	}

	warnings := make([]string, 0, len(resp.Warnings))
	for _, w := range resp.Warnings {
		warnings = append(warnings, w.Message)
	}

	return iface.Envelope{
		OK: true,
		Result: map[string]interface{}{
			"pack":     resp.Pack,
			"warnings": warnings,
		},
	}, nil
}

// status reports the size and health of the indexed workspace, independent
// of any query -- it never touches the Coordinator.
func (s *Server) status(ctx context.Context, args map[string]interface{}) (iface.Envelope, error) {
	counts, err := s.engine.CountAll(ctx)
	if err != nil {
		return errEnvelope(err.Error()), nil
	}
	version, err := s.engine.CurrentVersion(ctx)
	if err != nil {
		return errEnvelope(err.Error()), nil
	}

	return iface.Envelope{
		OK: true,
		Result: map[string]interface{}{
			"indexVersion": version,
			"files":        counts.Files,
			"symbols":      counts.Symbols,
			"edges":        counts.Edges,
			"vectors":      counts.Vectors,
			"evidence":     counts.Evidence,
			"vecAvailable": s.engine.VecAvailable(),
		},
	}, nil
}
