// Package behavior detects dangerous runtime behaviour in JavaScript sources:
// dynamic code evaluation, process spawning, network and filesystem access,
// environment harvesting and encoded payloads.
//
// Each file is parsed once to resolve which local names are bound to which
// modules, then its token stream is scanned for call sites.
package behavior

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	es "github.com/tdewolff/parse/v2/js"

	"github.com/AnishDe12020/unsus/internal/staticanalysis/detections"
	"github.com/AnishDe12020/unsus/internal/staticanalysis/parsing/js"
	"github.com/AnishDe12020/unsus/pkg/api/finding"
)

const codeExcerptLen = 120

// Analyze returns the behavioural findings for one source file. A file that
// cannot be parsed yields a single parse-error finding, except TypeScript and
// JSX sources, whose imports are then recovered from the token stream.
// TypeScript declaration files are skipped.
func Analyze(path string, src []byte) []finding.Finding {
	if js.IsDeclarationFile(path) {
		return nil
	}
	lines := bytes.Split(src, []byte("\n"))
	tokens := js.Tokenize(src)

	var imports map[string]js.Import
	prog, err := js.Parse(src)
	switch {
	case err == nil:
		imports = prog.Imports()
	case js.HasTypedSyntax(path):
		imports = js.TokenImports(tokens)
	default:
		line := 0
		var serr *js.SyntaxError
		if errors.As(err, &serr) {
			line = serr.Line
		}
		return []finding.Finding{{
			Type:     finding.ParseError,
			Severity: finding.Info,
			Message:  fmt.Sprintf("could not parse file: %v", err),
			File:     path,
			Line:     line,
		}}
	}

	s := &scanner{
		path:    path,
		lines:   lines,
		tokens:  tokens,
		imports: imports,
	}
	s.scanEscapes()
	s.scanTokens()
	s.flushBareEnv()
	return finding.Dedupe(s.findings)
}

type scanner struct {
	path     string
	lines    [][]byte
	tokens   []js.Token
	imports  map[string]js.Import
	findings []finding.Finding

	namedEnvLines map[int]bool
	bareEnvLines  []int
}

func (s *scanner) add(typ finding.Type, sev finding.Severity, line int, format string, args ...any) {
	s.findings = append(s.findings, finding.Finding{
		Type:     typ,
		Severity: sev,
		Message:  fmt.Sprintf(format, args...),
		File:     s.path,
		Line:     line,
		Code:     s.excerpt(line),
	})
}

func (s *scanner) excerpt(line int) string {
	if line < 1 || line > len(s.lines) {
		return ""
	}
	return finding.TruncateCode(strings.TrimSpace(string(s.lines[line-1])), codeExcerptLen)
}

// scanEscapes reports lines carrying chains of hex or unicode escapes.
func (s *scanner) scanEscapes() {
	for i, l := range s.lines {
		chains := detections.FindEscapeChains(string(l))
		if len(chains) == 0 {
			continue
		}
		s.add(finding.HexEscape, finding.Danger, i+1, "escaped string decodes to %q", finding.TruncateCode(chains[0].Decoded, 60))
	}
}

func (s *scanner) tok(i int) js.Token {
	if i < 0 || i >= len(s.tokens) {
		return js.Token{Type: es.ErrorToken}
	}
	return s.tokens[i]
}

func (s *scanner) isMember(i int) bool {
	tt := s.tok(i - 1).Type
	return tt == es.DotToken || tt == es.OptChainToken
}

func (s *scanner) isCall(i int) bool {
	return s.tok(i+1).Type == es.OpenParenToken
}

// isMethodDefinition reports whether the name at tokens[i] starts a method
// of an object literal or class body, e.g. "{ eval(x) { ... } }". The
// parameter list must be followed by a body or a return type annotation.
func (s *scanner) isMethodDefinition(i int) bool {
	switch s.tok(i - 1).Type {
	case es.OpenBraceToken, es.CommaToken, es.SemicolonToken, es.CloseBraceToken,
		es.StaticToken, es.AsyncToken, es.GetToken, es.SetToken, es.MulToken:
	default:
		return false
	}
	_, end := s.callArgs(i + 1)
	if end < 0 {
		return false
	}
	next := s.tok(end + 1).Type
	return next == es.OpenBraceToken || next == es.ColonToken
}

func (s *scanner) scanTokens() {
	for i, t := range s.tokens {
		switch {
		case t.Type == es.CloseBracketToken:
			s.computedCall(i)
		case t.Type == es.ImportToken:
			s.importSite(i)
		case es.IsIdentifierName(t.Type):
			if s.isMember(i) {
				s.memberSite(i)
			} else {
				s.identifierSite(i)
			}
		}
	}
}

// identifierSite handles a free (non-member) identifier at tokens[i].
func (s *scanner) identifierSite(i int) {
	t := s.tokens[i]
	name := t.Text()
	line := t.Line

	if name == "process" {
		s.processEnv(i)
		return
	}
	if !s.isCall(i) {
		return
	}
	// function declarations and method definitions are not calls
	if s.tok(i-1).Type == es.FunctionToken || s.isMethodDefinition(i) {
		return
	}

	switch name {
	case "eval":
		s.add(finding.Eval, finding.Critical, line, "eval() executes a string as code")
		return
	case "Function":
		s.functionConstructor(i)
		return
	case "require":
		s.requireCall(i)
		return
	case "fetch":
		s.networkCall(i, "fetch")
		return
	case "atob":
		s.add(finding.Base64, finding.Danger, line, "atob() decodes base64 data")
		return
	case "Buffer":
		if s.tok(i-1).Type == es.NewToken {
			s.bufferDecode(i, "new Buffer")
		}
		return
	}

	if alwaysShell[name] {
		s.add(finding.Exec, finding.Critical, line, "%s() spawns a process", name)
		return
	}

	imp, ok := s.imports[name]
	if !ok {
		return
	}
	switch {
	case imp.Module == childProcessModule && shellMethods[imp.Export]:
		s.add(finding.Exec, finding.Critical, line, "%s() from child_process spawns a process", name)
	case networkModules[imp.Module] && networkMethods[imp.Export]:
		s.networkCall(i, imp.Module+"."+imp.Export)
	case callableClients[imp.Module] && (imp.Export == "" || imp.Export == "default"):
		s.networkCall(i, imp.Module)
	case fsModules[imp.Module]:
		s.fsCall(i, imp.Export)
	}
}

// memberSite handles the property name at tokens[i] of a member expression.
func (s *scanner) memberSite(i int) {
	t := s.tokens[i]
	name := t.Text()
	line := t.Line
	recv := s.receiverName(i)

	switch {
	case name == "fromCharCode" && recv == "String" && s.isCall(i):
		s.add(finding.CharCode, finding.Warning, line, "String.fromCharCode() builds a string from character codes")
		return
	case name == "from" && recv == "Buffer" && s.isCall(i):
		s.bufferDecode(i, "Buffer.from")
		return
	case name == "eval" && globalObjects[recv] && s.isCall(i):
		s.add(finding.Eval, finding.Critical, line, "%s.eval() executes a string as code", recv)
		return
	case name == "DateTimeFormat" && recv == "Intl",
		name == "resolvedOptions" && s.isCall(i),
		name == "getTimezoneOffset" && s.isCall(i),
		(name == "language" || name == "languages") && recv == "navigator":
		s.add(finding.GeoTrigger, finding.Warning, line, "reads the host locale or timezone (%s)", name)
		return
	}

	if !s.isCall(i) {
		return
	}
	mod, ok := s.receiverModule(i)
	if !ok {
		return
	}
	switch {
	case mod == childProcessModule && shellMethods[name]:
		s.add(finding.Exec, finding.Critical, line, "child_process.%s() spawns a process", name)
	case networkModules[mod] && networkMethods[name]:
		s.networkCall(i, mod+"."+name)
	case fsModules[mod]:
		s.fsCall(i, name)
	}
}

// receiverName returns the identifier immediately before the dot preceding
// tokens[i], if it is the root of the member chain.
func (s *scanner) receiverName(i int) string {
	r := s.tok(i - 2)
	if !es.IsIdentifierName(r.Type) || s.isMember(i-2) {
		return ""
	}
	return r.Text()
}

// receiverModule resolves the object of the member call at tokens[i] to a
// module: an alias (cp.exec), a require call (require('fs').readFileSync) or
// a promises namespace (fs.promises.writeFile).
func (s *scanner) receiverModule(i int) (string, bool) {
	r := s.tok(i - 2)
	switch {
	case r.Type == es.CloseParenToken:
		open := s.matchingOpen(i - 2)
		if open > 0 && s.tok(open-1).Is("require") && !s.isMember(open-1) {
			args, _ := s.callArgs(open)
			if len(args) == 1 {
				if v, ok := literalString(args[0]); ok {
					return js.NormalizeModule(v), true
				}
			}
		}
	case r.Is("promises") && s.isMember(i-2):
		if base, ok := s.receiverModule(i - 2); ok && base == "fs" {
			return "fs/promises", true
		}
	case es.IsIdentifierName(r.Type) && !s.isMember(i-2):
		if imp, ok := s.imports[r.Text()]; ok && imp.Export == "" {
			return imp.Module, true
		}
		if r.Text() == "fs" {
			return "fs", true
		}
	}
	return "", false
}

func (s *scanner) functionConstructor(i int) {
	args, _ := s.callArgs(i + 1)
	for _, arg := range args {
		if !isLiteral(arg) {
			s.add(finding.FunctionConstructor, finding.Critical, s.tokens[i].Line, "Function constructor builds code from a computed string")
			return
		}
	}
	s.add(finding.FunctionConstructor, finding.Warning, s.tokens[i].Line, "Function constructor builds code from a literal string")
}

func (s *scanner) requireCall(i int) {
	args, _ := s.callArgs(i + 1)
	if len(args) == 0 {
		return
	}
	s.moduleLoad(s.tokens[i].Line, "require", args[0])
}

// moduleLoad checks the specifier argument of require() or import().
func (s *scanner) moduleLoad(line int, how string, arg []js.Token) {
	v, ok := literalString(arg)
	if !ok {
		s.add(finding.DynamicRequire, finding.Danger, line, "%s() with a computed module name", how)
		return
	}
	s.moduleUse(line, js.NormalizeModule(v))
}

func (s *scanner) moduleUse(line int, mod string) {
	switch mod {
	case childProcessModule:
		s.add(finding.ChildProcess, finding.Critical, line, "loads the child_process module")
	case vmModule:
		s.add(finding.VMModule, finding.Critical, line, "loads the vm module")
	}
}

// importSite handles import(...) expressions and import declarations.
func (s *scanner) importSite(i int) {
	line := s.tokens[i].Line
	next := s.tok(i + 1)
	switch {
	case next.Type == es.OpenParenToken:
		args, _ := s.callArgs(i + 1)
		if len(args) > 0 {
			s.moduleLoad(line, "import", args[0])
		}
	case next.Type == es.DotToken:
		// import.meta
	default:
		for j := i + 1; j < len(s.tokens) && j < i+256; j++ {
			t := s.tokens[j]
			if t.Type == es.SemicolonToken || t.Type == es.ImportToken {
				return
			}
			if t.IsString() {
				if v, ok := js.StringValue(t); ok {
					s.moduleUse(line, js.NormalizeModule(v))
				}
				return
			}
		}
	}
}

func (s *scanner) networkCall(i int, what string) {
	args, _ := s.callArgs(i + 1)
	line := s.tokens[i].Line
	if len(args) > 0 && isLiteral(args[0]) {
		s.add(finding.Network, finding.Warning, line, "%s() request to a fixed destination", what)
		return
	}
	s.add(finding.Network, finding.Danger, line, "%s() request to a computed destination", what)
}

func (s *scanner) fsCall(i int, method string) {
	line := s.tokens[i].Line
	switch {
	case fsWriteMethods[method]:
		s.add(finding.FSWrite, finding.Warning, line, "fs.%s() modifies the filesystem", method)
	case fsReadMethods[method]:
		s.add(finding.FSRead, finding.Warning, line, "fs.%s() reads the filesystem", method)
	}
}

// bufferDecode reports Buffer.from(x, 'base64') and new Buffer(x, 'base64').
func (s *scanner) bufferDecode(i int, how string) {
	args, _ := s.callArgs(i + 1)
	if len(args) < 2 {
		return
	}
	if enc, ok := literalString(args[1]); ok && strings.EqualFold(enc, "base64") {
		s.add(finding.Base64, finding.Danger, s.tokens[i].Line, "%s() decodes base64 data", how)
	}
}

// computedCall reports obj[<expression>](...) where tokens[i] is the
// closing bracket.
func (s *scanner) computedCall(i int) {
	if !s.isCall(i) {
		return
	}
	open := s.matchingOpen(i)
	if open <= 0 {
		return
	}
	// an array literal, not a member access
	switch prev := s.tok(open - 1); {
	case es.IsIdentifierName(prev.Type),
		prev.Type == es.CloseParenToken,
		prev.Type == es.CloseBracketToken,
		prev.Type == es.OptChainToken:
	default:
		return
	}
	inner := s.tokens[open+1 : i]
	if isLiteral(inner) {
		return
	}
	s.add(finding.ComputedCall, finding.Warning, s.tokens[i].Line, "calls a method chosen by a computed property name")
}

// processEnv classifies process.env accesses starting at tokens[i].
func (s *scanner) processEnv(i int) {
	if s.tok(i+1).Type != es.DotToken || !s.tok(i+2).Is("env") {
		return
	}
	line := s.tokens[i].Line
	after := s.tok(i + 3)
	switch {
	case after.Type == es.DotToken && es.IsIdentifierName(s.tok(i+4).Type):
		s.namedEnv(line, s.tok(i+4).Text())
	case after.Type == es.OpenBracketToken:
		if v, ok := js.StringValue(s.tok(i + 4)); ok && s.tok(i+5).Type == es.CloseBracketToken {
			s.namedEnv(line, v)
			return
		}
		s.add(finding.EnvAccess, finding.Warning, line, "reads an environment variable chosen at runtime")
	default:
		s.bareEnvLines = append(s.bareEnvLines, line)
	}
}

func (s *scanner) namedEnv(line int, name string) {
	if s.namedEnvLines == nil {
		s.namedEnvLines = map[int]bool{}
	}
	s.namedEnvLines[line] = true

	switch classifyEnv(name) {
	case finding.Danger:
		s.add(finding.EnvAccessSensitive, finding.Danger, line, "reads sensitive environment variable %s", name)
	case finding.Info:
		s.add(finding.EnvAccess, finding.Info, line, "reads environment variable %s", name)
	default:
		s.add(finding.EnvAccess, finding.Warning, line, "reads environment variable %s", name)
	}
}

// flushBareEnv reports whole-environment reads, once per line and only on
// lines without a named access.
func (s *scanner) flushBareEnv() {
	seen := map[int]bool{}
	for _, line := range s.bareEnvLines {
		if seen[line] || s.namedEnvLines[line] {
			continue
		}
		seen[line] = true
		s.add(finding.EnvAccess, finding.Warning, line, "reads the whole process environment")
	}
}

// classifyEnv maps an environment variable name to the severity of reading it.
func classifyEnv(name string) finding.Severity {
	switch {
	case sensitiveEnvName.MatchString(name):
		return finding.Danger
	case benignEnvNames[name], benignEnvName.MatchString(name):
		return finding.Info
	default:
		return finding.Warning
	}
}

// callArgs splits the argument list opened at tokens[open] into top-level
// arguments, returning them with the index of the closing parenthesis.
func (s *scanner) callArgs(open int) ([][]js.Token, int) {
	if s.tok(open).Type != es.OpenParenToken {
		return nil, -1
	}
	var args [][]js.Token
	depth := 0
	start := open + 1
	for j := open; j < len(s.tokens); j++ {
		switch s.tokens[j].Type {
		case es.OpenParenToken, es.OpenBracketToken, es.OpenBraceToken:
			depth++
		case es.CloseParenToken, es.CloseBracketToken, es.CloseBraceToken:
			depth--
			if depth == 0 {
				if j > start {
					args = append(args, s.tokens[start:j])
				}
				return args, j
			}
		case es.CommaToken:
			if depth == 1 {
				args = append(args, s.tokens[start:j])
				start = j + 1
			}
		}
	}
	return args, -1
}

// matchingOpen returns the index of the bracket or parenthesis that the
// closing token at tokens[end] matches, or -1.
func (s *scanner) matchingOpen(end int) int {
	depth := 0
	for j := end; j >= 0; j-- {
		switch s.tokens[j].Type {
		case es.CloseParenToken, es.CloseBracketToken, es.CloseBraceToken:
			depth++
		case es.OpenParenToken, es.OpenBracketToken, es.OpenBraceToken:
			depth--
			if depth == 0 {
				return j
			}
		}
	}
	return -1
}

// isLiteral reports whether arg is a single literal token.
func isLiteral(arg []js.Token) bool {
	if len(arg) != 1 {
		return false
	}
	switch tt := arg[0].Type; {
	case tt == es.StringToken, tt == es.TemplateToken, tt == es.RegExpToken,
		tt == es.TrueToken, tt == es.FalseToken, tt == es.NullToken,
		es.IsNumeric(tt):
		return true
	}
	return false
}

func literalString(arg []js.Token) (string, bool) {
	if len(arg) != 1 {
		return "", false
	}
	return js.StringValue(arg[0])
}
