package extractor

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/librarian-dev/librarian/internal/types"
)

type jsBackend struct{}

func (jsBackend) language() *sitter.Language { return javascript.GetLanguage() }
func (jsBackend) parse(root *sitter.Node, path string, content []byte) ([]types.Symbol, []types.Edge) {
	return parseJSFamily(root, path, content)
}

type tsBackend struct{}

func (tsBackend) language() *sitter.Language { return typescript.GetLanguage() }
func (tsBackend) parse(root *sitter.Node, path string, content []byte) ([]types.Symbol, []types.Edge) {
	return parseJSFamily(root, path, content)
}

// parseJSFamily extracts symbols shared by the JS and TS grammars: they
// differ mainly in type annotations, which this extractor does not need
// to model since types.Symbol.Signature is already just descriptive text.
func parseJSFamily(root *sitter.Node, path string, content []byte) ([]types.Symbol, []types.Edge) {
	var symbols []types.Symbol
	var edges []types.Edge
	text := func(n *sitter.Node) string { return n.Content(content) }

	var currentClass string
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "class_declaration":
			if name := n.ChildByFieldName("name"); name != nil {
				canonical := text(name)
				sig := "class " + canonical
				symbols = append(symbols, types.Symbol{
					ID: SymbolID(path, canonical, sig), Path: path, Kind: types.SymbolType,
					Name: canonical, Signature: sig, Visibility: "public",
					StartLine: int(n.StartPoint().Row) + 1, EndLine: int(n.EndPoint().Row) + 1,
				})
				prev := currentClass
				currentClass = canonical
				for i := 0; i < int(n.ChildCount()); i++ {
					walk(n.Child(i))
				}
				currentClass = prev
				return
			}

		case "function_declaration":
			if name := n.ChildByFieldName("name"); name != nil {
				fnName := text(name)
				params := ""
				if p := n.ChildByFieldName("parameters"); p != nil {
					params = text(p)
				}
				sig := "function " + fnName + params
				symbols = append(symbols, types.Symbol{
					ID: SymbolID(path, fnName, sig), Path: path, Kind: types.SymbolFunction,
					Name: fnName, Signature: sig, Visibility: "public",
					StartLine: int(n.StartPoint().Row) + 1, EndLine: int(n.EndPoint().Row) + 1,
				})
			}

		case "method_definition":
			if name := n.ChildByFieldName("name"); name != nil && currentClass != "" {
				methodName := text(name)
				canonical := currentClass + "." + methodName
				params := ""
				if p := n.ChildByFieldName("parameters"); p != nil {
					params = text(p)
				}
				sig := methodName + params
				symbols = append(symbols, types.Symbol{
					ID: SymbolID(path, canonical, sig), Path: path, Kind: types.SymbolMethod,
					Name: methodName, Receiver: currentClass, Signature: sig, Visibility: "public",
					StartLine: int(n.StartPoint().Row) + 1, EndLine: int(n.EndPoint().Row) + 1,
				})
			}

		case "import_statement":
			if src := n.ChildByFieldName("source"); src != nil {
				edges = append(edges, types.Edge{
					FromID: path, ToID: "pkg:" + trimQuotes(text(src)), Kind: types.EdgeImports, Resolved: false,
				})
			}
		}

		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
	return symbols, edges
}
