package extractor

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/librarian-dev/librarian/internal/types"
)

type goBackend struct{}

func (goBackend) language() *sitter.Language { return golang.GetLanguage() }

func (goBackend) parse(root *sitter.Node, path string, content []byte) ([]types.Symbol, []types.Edge) {
	var symbols []types.Symbol
	var edges []types.Edge
	text := func(n *sitter.Node) string { return n.Content(content) }

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "function_declaration":
			if name := n.ChildByFieldName("name"); name != nil {
				signature := signatureOf(text, "func "+text(name), n)
				symbols = append(symbols, types.Symbol{
					ID: SymbolID(path, text(name), signature), Path: path,
					Kind: types.SymbolFunction, Name: text(name), Signature: signature,
					Visibility: visibilityOf(text(name)),
					StartLine:  int(n.StartPoint().Row) + 1, EndLine: int(n.EndPoint().Row) + 1,
				})
			}

		case "method_declaration":
			name := n.ChildByFieldName("name")
			receiver := n.ChildByFieldName("receiver")
			if name != nil && receiver != nil {
				canonical := text(receiver) + "." + text(name)
				signature := signatureOf(text, "func "+canonical, n)
				symbols = append(symbols, types.Symbol{
					ID: SymbolID(path, canonical, signature), Path: path,
					Kind: types.SymbolMethod, Name: text(name), Receiver: text(receiver),
					Signature: signature, Visibility: visibilityOf(text(name)),
					StartLine: int(n.StartPoint().Row) + 1, EndLine: int(n.EndPoint().Row) + 1,
				})
			}

		case "type_declaration":
			for i := 0; i < int(n.NamedChildCount()); i++ {
				spec := n.NamedChild(i)
				if spec.Type() != "type_spec" {
					continue
				}
				nameNode := spec.ChildByFieldName("name")
				typeNode := spec.ChildByFieldName("type")
				if nameNode == nil {
					continue
				}
				name := text(nameNode)
				kind := types.SymbolType
				if typeNode != nil && typeNode.Type() == "interface_type" {
					kind = types.SymbolInterface
				}
				signature := "type " + name
				symbols = append(symbols, types.Symbol{
					ID: SymbolID(path, name, signature), Path: path,
					Kind: kind, Name: name, Signature: signature, Visibility: visibilityOf(name),
					StartLine: int(spec.StartPoint().Row) + 1, EndLine: int(spec.EndPoint().Row) + 1,
				})

				if typeNode != nil && typeNode.Type() == "struct_type" {
					if fields := typeNode.ChildByFieldName("fields"); fields != nil {
						for j := 0; j < int(fields.NamedChildCount()); j++ {
							fd := fields.NamedChild(j)
							if fd.Type() != "field_declaration" {
								continue
							}
							fieldName := fd.ChildByFieldName("name")
							if fieldName == nil {
								continue
							}
							canonical := name + "." + text(fieldName)
							fieldSig := text(fd)
							symbols = append(symbols, types.Symbol{
								ID: SymbolID(path, canonical, fieldSig), Path: path,
								Kind: types.SymbolField, Name: text(fieldName), Receiver: name,
								Signature: fieldSig, Visibility: visibilityOf(text(fieldName)),
								StartLine: int(fd.StartPoint().Row) + 1, EndLine: int(fd.EndPoint().Row) + 1,
							})
						}
					}
				}
			}

		case "import_spec":
			if pathNode := n.ChildByFieldName("path"); pathNode != nil {
				importPath := trimQuotes(text(pathNode))
				edges = append(edges, types.Edge{
					FromID: path, ToID: "pkg:" + importPath, Kind: types.EdgeImports, Resolved: false,
				})
			}

		case "call_expression":
			if fn := n.ChildByFieldName("function"); fn != nil {
				edges = append(edges, types.Edge{
					FromID: fmt.Sprintf("file:%s:%d", path, n.StartPoint().Row+1),
					ToID:   "name:" + text(fn), Kind: types.EdgeCalls, Resolved: false,
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

func signatureOf(text func(*sitter.Node) string, prefix string, n *sitter.Node) string {
	sig := prefix
	if params := n.ChildByFieldName("parameters"); params != nil {
		sig += text(params)
	}
	if result := n.ChildByFieldName("result"); result != nil {
		sig += " " + text(result)
	}
	return sig
}

func trimQuotes(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'' || s[0] == '`') {
		return s[1 : len(s)-1]
	}
	return s
}
