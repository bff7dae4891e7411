package js

import (
	"path/filepath"
	"strings"

	es "github.com/tdewolff/parse/v2/js"
)

// HasTypedSyntax reports whether the extension of path admits TypeScript or
// JSX syntax, which the parser rejects.
func HasTypedSyntax(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ts", ".tsx", ".mts", ".cts", ".jsx":
		return true
	}
	return false
}

// IsDeclarationFile reports whether path is a TypeScript declaration file
// (.d.ts, .d.mts or .d.cts). Declaration files hold types only.
func IsDeclarationFile(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	for _, suffix := range []string{".d.ts", ".d.mts", ".d.cts"} {
		if strings.HasSuffix(base, suffix) {
			return true
		}
	}
	return false
}

// TokenImports recovers module bindings from a token stream, for sources
// that only tokenize. It understands import declarations (type-only imports
// are ignored), TypeScript "import x = require(...)", and const/let/var
// declarations or assignments of require("<literal>"), with or without a
// type annotation.
func TokenImports(tokens []Token) map[string]Import {
	imports := map[string]Import{}
	for i, t := range tokens {
		c := &cursor{tokens: tokens, i: i + 1}
		switch {
		case t.Type == es.ImportToken:
			c.importDecl(imports)
		case t.Type == es.ConstToken, t.Type == es.LetToken, t.Type == es.VarToken:
			c.requireDecl(imports)
		case es.IsIdentifier(t.Type) && c.peek(0).Type == es.EqToken && c.peek(-2).Type != es.DotToken:
			// plain assignment
			c.next()
			if mod, ok := c.requireCall(); ok {
				imports[t.Text()] = Import{Module: mod}
			}
		}
	}
	return imports
}

type cursor struct {
	tokens []Token
	i      int
}

func (c *cursor) peek(n int) Token {
	if j := c.i + n; j >= 0 && j < len(c.tokens) {
		return c.tokens[j]
	}
	return Token{Type: es.ErrorToken}
}

func (c *cursor) next() Token {
	t := c.peek(0)
	c.i++
	return t
}

func (c *cursor) accept(tt es.TokenType) bool {
	if c.peek(0).Type != tt {
		return false
	}
	c.i++
	return true
}

type binding struct {
	local, export string
}

func (c *cursor) importDecl(imports map[string]Import) {
	if c.peek(0).Is("type") && !c.peek(1).Is("from") && c.peek(1).Type != es.CommaToken && c.peek(1).Type != es.EqToken {
		return
	}

	var bindings []binding
	if t := c.peek(0); es.IsIdentifier(t.Type) {
		c.next()
		if c.accept(es.EqToken) {
			if mod, ok := c.requireCall(); ok {
				imports[t.Text()] = Import{Module: mod}
			}
			return
		}
		bindings = append(bindings, binding{local: t.Text()})
		if !c.accept(es.CommaToken) {
			c.fromClause(imports, bindings)
			return
		}
	}

	switch {
	case c.accept(es.MulToken):
		if !c.next().Is("as") {
			return
		}
		ns := c.next()
		if !es.IsIdentifierName(ns.Type) {
			return
		}
		bindings = append(bindings, binding{local: ns.Text()})
	case c.accept(es.OpenBraceToken):
		named, ok := c.namedImports()
		if !ok {
			return
		}
		bindings = append(bindings, named...)
	}
	c.fromClause(imports, bindings)
}

// namedImports reads "a, b as c, type D }" after the opening brace.
func (c *cursor) namedImports() ([]binding, bool) {
	var out []binding
	for !c.accept(es.CloseBraceToken) {
		if c.peek(0).Is("type") && es.IsIdentifierName(c.peek(1).Type) && !c.peek(1).Is("as") {
			// type-only specifier
			c.i += 2
			c.accept(es.CommaToken)
			continue
		}
		name := c.next()
		var export string
		switch {
		case es.IsIdentifierName(name.Type):
			export = name.Text()
		case name.Type == es.StringToken:
			export, _ = StringValue(name)
		default:
			return nil, false
		}
		local := export
		if c.peek(0).Is("as") {
			c.next()
			l := c.next()
			if !es.IsIdentifierName(l.Type) {
				return nil, false
			}
			local = l.Text()
		}
		out = append(out, binding{local: local, export: export})
		if !c.accept(es.CommaToken) && c.peek(0).Type != es.CloseBraceToken {
			return nil, false
		}
	}
	return out, true
}

func (c *cursor) fromClause(imports map[string]Import, bindings []binding) {
	if !c.next().Is("from") {
		return
	}
	spec := c.next()
	if spec.Type != es.StringToken {
		return
	}
	mod, _ := StringValue(spec)
	mod = normalizeModule(mod)
	for _, b := range bindings {
		imports[b.local] = Import{Module: mod, Export: b.export}
	}
}

// requireDecl reads "x = require(...)" or "{ a, b: c } = require(...)" after
// a declaration keyword.
func (c *cursor) requireDecl(imports map[string]Import) {
	var bindings []binding
	switch t := c.peek(0); {
	case es.IsIdentifier(t.Type):
		c.next()
		bindings = append(bindings, binding{local: t.Text()})
	case t.Type == es.OpenBraceToken:
		c.next()
		var ok bool
		if bindings, ok = c.objectPattern(); !ok {
			return
		}
	default:
		return
	}
	if !c.skipAnnotation() {
		return
	}
	mod, ok := c.requireCall()
	if !ok {
		return
	}
	for _, b := range bindings {
		imports[b.local] = Import{Module: mod, Export: b.export}
	}
}

// objectPattern reads "a, b: c, d = 1 }" after the opening brace. Whole
// module bindings have an empty export; destructured names keep theirs.
func (c *cursor) objectPattern() ([]binding, bool) {
	var out []binding
	for !c.accept(es.CloseBraceToken) {
		key := c.next()
		if !es.IsIdentifierName(key.Type) {
			return nil, false
		}
		b := binding{local: key.Text(), export: key.Text()}
		if c.accept(es.ColonToken) {
			l := c.next()
			if !es.IsIdentifier(l.Type) {
				return nil, false
			}
			b.local = l.Text()
		}
		// default value
		for depth := 0; depth > 0 || (c.peek(0).Type != es.CommaToken && c.peek(0).Type != es.CloseBraceToken); {
			switch c.next().Type {
			case es.ErrorToken:
				return nil, false
			case es.OpenParenToken, es.OpenBracketToken, es.OpenBraceToken:
				depth++
			case es.CloseParenToken, es.CloseBracketToken, es.CloseBraceToken:
				depth--
			}
		}
		out = append(out, b)
		c.accept(es.CommaToken)
	}
	return out, true
}

// maxAnnotationTokens bounds the type annotation skipped before "=".
const maxAnnotationTokens = 64

// skipAnnotation consumes an optional ": Type" and the "=" that follows.
func (c *cursor) skipAnnotation() bool {
	if c.accept(es.EqToken) {
		return true
	}
	if !c.accept(es.ColonToken) {
		return false
	}
	depth := 0
	for n := 0; n < maxAnnotationTokens; n++ {
		t := c.next()
		switch t.Type {
		case es.ErrorToken, es.SemicolonToken:
			return false
		case es.OpenParenToken, es.OpenBracketToken, es.OpenBraceToken, es.LtToken:
			depth++
		case es.CloseParenToken, es.CloseBracketToken, es.CloseBraceToken, es.GtToken:
			depth--
		case es.GtGtToken:
			depth -= 2
		case es.EqToken:
			if depth <= 0 {
				return true
			}
		}
	}
	return false
}

// requireCall reads require("<literal>") not followed by a member access or
// a further call, and returns the module name.
func (c *cursor) requireCall() (string, bool) {
	if !c.next().Is("require") || !c.accept(es.OpenParenToken) {
		return "", false
	}
	spec := c.next()
	if spec.Type != es.StringToken || !c.accept(es.CloseParenToken) {
		return "", false
	}
	switch c.peek(0).Type {
	case es.DotToken, es.OptChainToken, es.OpenParenToken, es.OpenBracketToken:
		return "", false
	}
	mod, _ := StringValue(spec)
	return normalizeModule(mod), true
}
