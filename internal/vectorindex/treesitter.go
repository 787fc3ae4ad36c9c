package vectorindex

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
)

// TreeSitterExtractor is a SymbolExtractor backed by tree-sitter grammars —
// the opaque extractor spec.md's Non-goals call for, wrapped so the parser
// internals never leak past this file. Only Go is wired; any other
// extension falls back to whatever extractor the caller composes it with
// (see NewExtractor).
type TreeSitterExtractor struct{}

var goTopLevelKinds = map[string]ChunkType{
	"function_declaration": ChunkFunction,
	"method_declaration":   ChunkMethod,
	"type_declaration":     ChunkStruct,
}

func (TreeSitterExtractor) Extract(path string, content []byte) ([]Symbol, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(golang.GetLanguage())
	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("vectorindex.TreeSitterExtractor: %w", err)
	}
	root := tree.RootNode()

	var symbols []Symbol
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		kind, ok := goTopLevelKinds[child.Type()]
		if !ok {
			continue
		}
		if kind == ChunkStruct {
			kind = classifyTypeDecl(child, content)
		}
		symbols = append(symbols, Symbol{
			Name:      symbolName(child, content),
			Type:      kind,
			ByteStart: int(child.StartByte()),
			ByteEnd:   int(child.EndByte()),
			LineStart: int(child.StartPoint().Row),
			LineEnd:   int(child.EndPoint().Row),
		})
	}
	return symbols, nil
}

// classifyTypeDecl distinguishes struct vs. interface (treated as Enum,
// the closest of spec.md's closed ChunkType set) vs. a plain alias
// (Generic) by looking at the type_spec's child node type.
func classifyTypeDecl(n *sitter.Node, content []byte) ChunkType {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		spec := n.NamedChild(i)
		if spec.Type() != "type_spec" {
			continue
		}
		for j := 0; j < int(spec.NamedChildCount()); j++ {
			switch spec.NamedChild(j).Type() {
			case "struct_type":
				return ChunkStruct
			case "interface_type":
				return ChunkEnum
			}
		}
	}
	return ChunkGeneric
}

func symbolName(n *sitter.Node, content []byte) string {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() == "identifier" || child.Type() == "field_identifier" || child.Type() == "type_identifier" {
			return string(content[child.StartByte():child.EndByte()])
		}
		if child.Type() == "type_spec" {
			return symbolName(child, content)
		}
	}
	return ""
}
