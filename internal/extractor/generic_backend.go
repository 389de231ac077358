package extractor

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"

	"github.com/librarian-dev/librarian/internal/types"
)

// genericBackend is the fallback extractor for any language without a
// dedicated tree-sitter grammar registered above: a line-oriented regex
// scan for common function/class/def-shaped declarations. It produces
// coarser symbols (no receivers, no resolved edges) but never fails.
type genericBackend struct{}

var genericDeclPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\s*(?:public |private |protected |static |func |function |def |fn )*(?:func|function|def|fn)\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`),
	regexp.MustCompile(`^\s*(?:public |private |protected |abstract |final )*class\s+([A-Za-z_][A-Za-z0-9_]*)`),
	regexp.MustCompile(`^\s*(?:public |private |protected )*interface\s+([A-Za-z_][A-Za-z0-9_]*)`),
}

func (genericBackend) extract(path string, content []byte) ([]types.Symbol, []types.Edge, []string) {
	var symbols []types.Symbol
	diagnostics := []string{"extracted with generic regex backend (no tree-sitter grammar for this language)"}

	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		for _, re := range genericDeclPatterns {
			m := re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			name := m[1]
			sig := fmt.Sprintf("%s:%d: %s", path, line, text)
			symbols = append(symbols, types.Symbol{
				ID: SymbolID(path, name, sig), Path: path, Kind: types.SymbolFunction,
				Name: name, Signature: sig, Visibility: visibilityOf(name),
				StartLine: line, EndLine: line,
			})
			break
		}
	}
	if err := scanner.Err(); err != nil {
		diagnostics = append(diagnostics, fmt.Sprintf("scan error: %v", err))
	}
	return symbols, nil, diagnostics
}
