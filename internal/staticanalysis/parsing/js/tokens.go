package js

import (
	"github.com/tdewolff/parse/v2"
	es "github.com/tdewolff/parse/v2/js"
)

// Token is a significant lexical token (whitespace and comments are dropped)
// with the 1-based line it starts on.
type Token struct {
	Type es.TokenType
	Data []byte
	Line int
}

func (t Token) Text() string {
	return string(t.Data)
}

// Is reports whether t is an identifier-like token spelled name.
func (t Token) Is(name string) bool {
	return es.IsIdentifierName(t.Type) && string(t.Data) == name
}

// IsString reports whether t is a string literal or a template literal
// without substitutions.
func (t Token) IsString() bool {
	return t.Type == es.StringToken || t.Type == es.TemplateToken
}

// Tokenize lexes src into significant tokens. A lexing error ends the stream
// early; the tokens read up to that point are returned.
func Tokenize(src []byte) []Token {
	l := es.NewLexer(parse.NewInputBytes(clone(maskShebang(src))))
	var tokens []Token
	line := 1
	for {
		tt, data := l.Next()
		if (tt == es.DivToken || tt == es.DivEqToken) && regexpAllowed(tokens) {
			tt, data = l.RegExp()
		}
		switch tt {
		case es.ErrorToken:
			// io.EOF, or a lexing error the parser did not hit
			return tokens
		case es.WhitespaceToken:
			continue
		case es.LineTerminatorToken, es.CommentToken, es.CommentLineTerminatorToken:
			line += countNewlines(data)
			continue
		}
		tokens = append(tokens, Token{Type: tt, Data: data, Line: line})
		line += countNewlines(data)
	}
}

// regexpAllowed applies the usual heuristic for telling a regular expression
// literal apart from a division: a slash starts a regexp unless it follows
// something that ends an expression.
func regexpAllowed(prev []Token) bool {
	if len(prev) == 0 {
		return true
	}
	last := prev[len(prev)-1]
	switch last.Type {
	case es.CloseParenToken, es.CloseBracketToken, es.StringToken, es.TemplateToken,
		es.TemplateEndToken, es.RegExpToken, es.IncrToken, es.DecrToken,
		es.ThisToken, es.SuperToken, es.TrueToken, es.FalseToken, es.NullToken:
		return false
	case es.LtToken:
		// "</" closes a JSX element
		return false
	}
	if es.IsNumeric(last.Type) {
		return false
	}
	if es.IsIdentifier(last.Type) {
		return false
	}
	return true
}

func countNewlines(b []byte) int {
	n := 0
	for i, c := range b {
		switch c {
		case '\n':
			n++
		case '\r':
			if i+1 >= len(b) || b[i+1] != '\n' {
				n++
			}
		}
	}
	return n
}

// Literal is a string-valued literal with its decoded value.
type Literal struct {
	Raw   string
	Value string
	Line  int
}

// Literals returns every string literal and template literal chunk in
// tokens, decoded.
func Literals(tokens []Token) []Literal {
	var lits []Literal
	for _, t := range tokens {
		var body []byte
		switch t.Type {
		case es.StringToken, es.TemplateToken:
			body = t.Data[1 : len(t.Data)-1]
		case es.TemplateStartToken:
			// `...${
			body = t.Data[1 : len(t.Data)-2]
		case es.TemplateMiddleToken:
			// }...${
			body = t.Data[1 : len(t.Data)-2]
		case es.TemplateEndToken:
			// }...`
			body = t.Data[1 : len(t.Data)-1]
		default:
			continue
		}
		lits = append(lits, Literal{Raw: t.Text(), Value: Unescape(string(body)), Line: t.Line})
	}
	return lits
}

// StringValue returns the decoded value of a string token.
func StringValue(t Token) (string, bool) {
	if !t.IsString() || len(t.Data) < 2 {
		return "", false
	}
	return Unescape(string(t.Data[1 : len(t.Data)-1])), true
}
