package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/librarian-dev/librarian/internal/logging"
)

// =============================================================================
// LOCAL HASH EMBEDDING ENGINE
// =============================================================================

// LocalHashEngine produces deterministic, fixed-dimension vectors without
// any network dependency: a feature-hashed bag of character trigrams,
// L2-normalized. Two calls with the same text always return the same
// vector; no library in the pack supplies a local embedding model, so this
// one component is deliberately stdlib-only (see DESIGN.md).
type LocalHashEngine struct {
	dim int
}

// NewLocalHashEngine returns an engine that emits vectors of the given
// dimension.
func NewLocalHashEngine(dim int) *LocalHashEngine {
	if dim <= 0 {
		dim = 256
	}
	return &LocalHashEngine{dim: dim}
}

// Embed hashes the trigrams of text into a fixed-width vector.
func (e *LocalHashEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)
	trigrams := trigramsOf(normalizeForHash(text))
	for _, tri := range trigrams {
		h := fnv.New32a()
		h.Write([]byte(tri))
		idx := int(h.Sum32()) % e.dim
		if idx < 0 {
			idx += e.dim
		}
		sign := float32(1)
		if (h.Sum32()>>31)&1 == 1 {
			sign = -1
		}
		vec[idx] += sign
	}
	return Normalize(vec), nil
}

// EmbedBatch embeds each text independently.
func (e *LocalHashEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Dimensions returns the configured output width.
func (e *LocalHashEngine) Dimensions() int { return e.dim }

// Name returns the engine name.
func (e *LocalHashEngine) Name() string { return "local:hash-trigram" }

// HealthCheck always succeeds; there is no external dependency to probe.
func (e *LocalHashEngine) HealthCheck(ctx context.Context) error { return nil }

func normalizeForHash(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastWasSpace := true
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				b.WriteByte(' ')
			}
			lastWasSpace = true
			continue
		}
		b.WriteRune(unicode.ToLower(r))
		lastWasSpace = false
	}
	return strings.TrimSpace(b.String())
}

func trigramsOf(s string) []string {
	if len(s) < 3 {
		if s == "" {
			return nil
		}
		return []string{s}
	}
	runes := []rune(s)
	out := make([]string, 0, len(runes)-2)
	for i := 0; i+3 <= len(runes); i++ {
		out = append(out, string(runes[i:i+3]))
	}
	return out
}

// =============================================================================
// NOOP (DISABLED) ENGINE
// =============================================================================

// NoopEngine represents an explicitly disabled embedding service:
// Dimensions() is 0 and Embed/EmbedBatch return no vectors.
type NoopEngine struct{}

// NewNoopEngine returns the disabled embedding engine.
func NewNoopEngine() *NoopEngine {
	logging.EmbeddingDebug("noop embedding engine active: vector retrieval disabled")
	return &NoopEngine{}
}

func (e *NoopEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, nil
}

func (e *NoopEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, nil
}

func (e *NoopEngine) Dimensions() int { return 0 }

func (e *NoopEngine) Name() string { return "disabled" }
