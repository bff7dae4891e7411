package js

import (
	"strings"

	es "github.com/tdewolff/parse/v2/js"
)

// Import describes what a local name is bound to: a whole module (Export is
// empty) or one export of it.
type Import struct {
	Module string
	Export string
}

// Imports maps local names to the module bindings they were assigned from,
// covering ES imports, require() declarations, destructuring and plain
// assignments. Module names lose any "node:" prefix.
func (p *Program) Imports() map[string]Import {
	v := &importVisitor{imports: map[string]Import{}}
	es.Walk(v, &p.AST.BlockStmt)
	return v.imports
}

type importVisitor struct {
	imports map[string]Import
}

func (v *importVisitor) Enter(n es.INode) es.IVisitor {
	switch n := n.(type) {
	case *es.ImportStmt:
		v.importStmt(n)
	case *es.BindingElement:
		if mod, ok := requiredModule(n.Default); ok {
			v.bind(n.Binding, mod)
		}
	case *es.BinaryExpr:
		if n.Op == es.EqToken {
			if mod, ok := requiredModule(n.Y); ok {
				if name, ok := n.X.(*es.Var); ok {
					v.imports[string(name.Name())] = Import{Module: mod}
				}
			}
		}
	}
	return v
}

func (v *importVisitor) Exit(es.INode) {}

func (v *importVisitor) importStmt(n *es.ImportStmt) {
	mod := normalizeModule(unquote(n.Module))
	if n.Default != nil {
		v.imports[string(n.Default)] = Import{Module: mod}
	}
	for _, alias := range n.List {
		if alias.Binding == nil {
			continue
		}
		switch {
		case string(alias.Name) == "*":
			v.imports[string(alias.Binding)] = Import{Module: mod}
		case alias.Name != nil:
			v.imports[string(alias.Binding)] = Import{Module: mod, Export: unquote(alias.Name)}
		default:
			v.imports[string(alias.Binding)] = Import{Module: mod, Export: string(alias.Binding)}
		}
	}
}

func (v *importVisitor) bind(b es.IBinding, mod string) {
	switch b := b.(type) {
	case *es.Var:
		v.imports[string(b.Name())] = Import{Module: mod}
	case *es.BindingObject:
		for _, item := range b.List {
			local, ok := item.Value.Binding.(*es.Var)
			if !ok {
				continue
			}
			export := string(local.Name())
			if item.Key != nil && item.Key.Computed == nil && len(item.Key.Literal.Data) > 0 {
				export = unquote(item.Key.Literal.Data)
			}
			v.imports[string(local.Name())] = Import{Module: mod, Export: export}
		}
	}
}

// requiredModule matches require("<literal>") and returns the module name.
func requiredModule(e es.IExpr) (string, bool) {
	call, ok := e.(*es.CallExpr)
	if !ok || len(call.Args.List) != 1 {
		return "", false
	}
	callee, ok := call.X.(*es.Var)
	if !ok || string(callee.Name()) != "require" {
		return "", false
	}
	lit, ok := call.Args.List[0].Value.(*es.LiteralExpr)
	if !ok || lit.TokenType != es.StringToken {
		return "", false
	}
	return normalizeModule(unquote(lit.Data)), true
}

func normalizeModule(m string) string {
	return strings.TrimPrefix(m, "node:")
}

// NormalizeModule strips the "node:" scheme from a core module specifier.
func NormalizeModule(m string) string {
	return normalizeModule(m)
}

func unquote(b []byte) string {
	if len(b) >= 2 && (b[0] == '"' || b[0] == '\'' || b[0] == '`') && b[len(b)-1] == b[0] {
		return Unescape(string(b[1 : len(b)-1]))
	}
	return string(b)
}
