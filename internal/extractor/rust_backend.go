package extractor

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"

	"github.com/librarian-dev/librarian/internal/types"
)

type rustBackend struct{}

func (rustBackend) language() *sitter.Language { return rust.GetLanguage() }

func (rustBackend) parse(root *sitter.Node, path string, content []byte) ([]types.Symbol, []types.Edge) {
	var symbols []types.Symbol
	var edges []types.Edge
	text := func(n *sitter.Node) string { return n.Content(content) }

	rustVisibility := func(n *sitter.Node, name string) string {
		for i := 0; i < int(n.ChildCount()); i++ {
			if n.Child(i).Type() == "visibility_modifier" {
				return "public"
			}
		}
		return visibilityOf(name)
	}

	var currentImpl string
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "struct_item", "enum_item", "trait_item":
			if name := n.ChildByFieldName("name"); name != nil {
				canonical := text(name)
				sig := n.Type() + " " + canonical
				symbols = append(symbols, types.Symbol{
					ID: SymbolID(path, canonical, sig), Path: path, Kind: types.SymbolType,
					Name: canonical, Signature: sig, Visibility: rustVisibility(n, canonical),
					StartLine: int(n.StartPoint().Row) + 1, EndLine: int(n.EndPoint().Row) + 1,
				})
			}

		case "impl_item":
			if t := n.ChildByFieldName("type"); t != nil {
				prev := currentImpl
				currentImpl = text(t)
				for i := 0; i < int(n.ChildCount()); i++ {
					walk(n.Child(i))
				}
				currentImpl = prev
				return
			}

		case "function_item":
			if name := n.ChildByFieldName("name"); name != nil {
				fnName := text(name)
				kind := types.SymbolFunction
				canonical := fnName
				receiver := ""
				if currentImpl != "" {
					kind = types.SymbolMethod
					receiver = currentImpl
					canonical = currentImpl + "::" + fnName
				}
				params := ""
				if p := n.ChildByFieldName("parameters"); p != nil {
					params = text(p)
				}
				sig := "fn " + canonical + params
				symbols = append(symbols, types.Symbol{
					ID: SymbolID(path, canonical, sig), Path: path, Kind: kind,
					Name: fnName, Receiver: receiver, Signature: sig, Visibility: rustVisibility(n, fnName),
					StartLine: int(n.StartPoint().Row) + 1, EndLine: int(n.EndPoint().Row) + 1,
				})
			}

		case "use_declaration":
			edges = append(edges, types.Edge{
				FromID: path, ToID: "pkg:" + text(n), Kind: types.EdgeImports, Resolved: false,
			})
		}

		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
	return symbols, edges
}
