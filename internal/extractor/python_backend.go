package extractor

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/librarian-dev/librarian/internal/types"
)

type pythonBackend struct{}

func (pythonBackend) language() *sitter.Language { return python.GetLanguage() }

func (pythonBackend) parse(root *sitter.Node, path string, content []byte) ([]types.Symbol, []types.Edge) {
	var symbols []types.Symbol
	var edges []types.Edge
	text := func(n *sitter.Node) string { return n.Content(content) }

	visibility := func(name string) string {
		switch {
		case strings.HasPrefix(name, "__") && !strings.HasSuffix(name, "__"):
			return "private"
		case strings.HasPrefix(name, "_"):
			return "protected"
		default:
			return "public"
		}
	}

	var currentClass string
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "class_definition":
			if name := n.ChildByFieldName("name"); name != nil {
				canonical := text(name)
				sig := "class " + canonical
				symbols = append(symbols, types.Symbol{
					ID: SymbolID(path, canonical, sig), Path: path, Kind: types.SymbolType,
					Name: canonical, Signature: sig, Visibility: visibility(canonical),
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

		case "function_definition":
			if name := n.ChildByFieldName("name"); name != nil {
				fnName := text(name)
				kind := types.SymbolFunction
				canonical := fnName
				receiver := ""
				if currentClass != "" {
					kind = types.SymbolMethod
					receiver = currentClass
					canonical = currentClass + "." + fnName
				}
				params := ""
				if p := n.ChildByFieldName("parameters"); p != nil {
					params = text(p)
				}
				sig := "def " + canonical + params
				symbols = append(symbols, types.Symbol{
					ID: SymbolID(path, canonical, sig), Path: path, Kind: kind,
					Name: fnName, Receiver: receiver, Signature: sig, Visibility: visibility(fnName),
					StartLine: int(n.StartPoint().Row) + 1, EndLine: int(n.EndPoint().Row) + 1,
				})
			}

		case "import_statement", "import_from_statement":
			edges = append(edges, types.Edge{
				FromID: path, ToID: "pkg:" + strings.TrimSpace(text(n)), Kind: types.EdgeImports, Resolved: false,
			})
		}

		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
	return symbols, edges
}
