package analyzer

import (
	"fmt"
	"sync"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
)

// Definition kinds.
const (
	KindClass    = "class"
	KindFunction = "function"
)

// Definition is a top-level class or function in a Python module.
type Definition struct {
	Name   string
	Kind   string
	Line   int // 1-based
	Offset int // byte offset of the definition keyword
}

// PythonAnalyzer parses Python source with tree-sitter. It is safe for
// concurrent use.
type PythonAnalyzer struct {
	lang *sitter.Language
	pool sync.Pool
}

func NewPythonAnalyzer() *PythonAnalyzer {
	a := &PythonAnalyzer{lang: sitter.NewLanguage(tree_sitter_python.Language())}
	a.pool.New = func() any {
		p := sitter.NewParser()
		_ = p.SetLanguage(a.lang)
		return p
	}
	return a
}

// TopLevel returns the module's top-level class and function definitions in
// source order. Decorated definitions are included.
func (a *PythonAnalyzer) TopLevel(source []byte) ([]Definition, error) {
	p := a.pool.Get().(*sitter.Parser)
	defer a.pool.Put(p)

	tree := p.Parse(source, nil)
	if tree == nil {
		return nil, fmt.Errorf("parse failed")
	}
	defer tree.Close()

	root := tree.RootNode()
	var defs []Definition
	for i := uint(0); i < root.NamedChildCount(); i++ {
		node := root.NamedChild(i)
		if node.Kind() == "decorated_definition" {
			node = node.ChildByFieldName("definition")
			if node == nil {
				continue
			}
		}

		var kind string
		switch node.Kind() {
		case "class_definition":
			kind = KindClass
		case "function_definition":
			kind = KindFunction
		default:
			continue
		}

		name := node.ChildByFieldName("name")
		if name == nil {
			continue
		}
		defs = append(defs, Definition{
			Name:   string(source[name.StartByte():name.EndByte()]),
			Kind:   kind,
			Line:   int(node.StartPosition().Row) + 1,
			Offset: int(node.StartByte()),
		})
	}
	return defs, nil
}
