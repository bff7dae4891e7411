// Package js parses JavaScript and TypeScript-like sources for the static
// analyzers. Sources are parsed as ES modules first and as scripts second;
// the token stream keeps 1-based line numbers, which the AST does not.
package js

import (
	"errors"
	"fmt"

	"github.com/tdewolff/parse/v2"
	es "github.com/tdewolff/parse/v2/js"
)

// ErrParseFailure is wrapped by the error returned when a source cannot be
// parsed as either a module or a script.
var ErrParseFailure = errors.New("failed to parse source")

// SyntaxError describes why a source failed to parse.
type SyntaxError struct {
	Line    int
	Column  int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%v: %s (line %d, column %d)", ErrParseFailure, e.Message, e.Line, e.Column)
}

func (e *SyntaxError) Unwrap() error {
	return ErrParseFailure
}

// Program is a successfully parsed source.
type Program struct {
	AST *es.AST

	// Script is true when the source only parsed as a classic script, e.g. a
	// CommonJS file with a top-level return.
	Script bool
}

// Parse parses src as a module, then as a script. When both fail the error
// of the script attempt is returned as a *SyntaxError.
func Parse(src []byte) (*Program, error) {
	src = maskShebang(src)

	ast, err := es.Parse(parse.NewInputBytes(clone(src)), es.Options{})
	if err == nil {
		return &Program{AST: ast}, nil
	}

	ast, err = es.Parse(parse.NewInputBytes(clone(src)), es.Options{Inline: true})
	if err == nil {
		return &Program{AST: ast, Script: true}, nil
	}

	var perr *parse.Error
	if errors.As(err, &perr) {
		return nil, &SyntaxError{Line: perr.Line, Column: perr.Column, Message: perr.Message}
	}
	return nil, &SyntaxError{Message: err.Error()}
}

// maskShebang turns a leading "#!" line into a line comment so both parse
// modes accept it without shifting line numbers.
func maskShebang(src []byte) []byte {
	if len(src) < 2 || src[0] != '#' || src[1] != '!' {
		return src
	}
	out := clone(src)
	out[0], out[1] = '/', '/'
	return out
}

// clone copies src with room for the NUL terminator the lexer appends.
func clone(src []byte) []byte {
	out := make([]byte, len(src), len(src)+1)
	copy(out, src)
	return out
}
