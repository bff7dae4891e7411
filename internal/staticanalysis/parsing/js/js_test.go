package js

import (
	"errors"
	"reflect"
	"testing"

	es "github.com/tdewolff/parse/v2/js"
)

func TestParse(t *testing.T) {
	tests := map[string]struct {
		src     string
		wantErr bool
	}{
		"module": {
			src: "import fs from 'fs';\nexport const x = 1;\n",
		},
		"commonjs": {
			src: "const fs = require('fs');\nmodule.exports = fs;\n",
		},
		"shebang": {
			src: "#!/usr/bin/env node\nconsole.log('hi');\n",
		},
		"syntax error": {
			src:     "function (\n",
			wantErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			prog, err := Parse([]byte(test.src))
			if test.wantErr {
				if !errors.Is(err, ErrParseFailure) {
					t.Fatalf("Parse() error = %v; want %v", err, ErrParseFailure)
				}
				var serr *SyntaxError
				if !errors.As(err, &serr) {
					t.Fatalf("Parse() error type = %T; want *SyntaxError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error = %v; want nil", err)
			}
			if prog.AST == nil {
				t.Errorf("Parse().AST = nil; want non-nil")
			}
		})
	}
}

func TestTokenizeLines(t *testing.T) {
	src := "// header\nconst a = 1;\n/* two\nlines */\neval(a);\nconst s = `x\ny`;\nfetch(u);\n"
	tokens := Tokenize([]byte(src))

	lines := map[string]int{}
	for _, tok := range tokens {
		if _, ok := lines[tok.Text()]; !ok {
			lines[tok.Text()] = tok.Line
		}
	}
	want := map[string]int{"const": 2, "eval": 5, "fetch": 8}
	for name, line := range want {
		if lines[name] != line {
			t.Errorf("Tokenize() line of %q = %d; want %d", name, lines[name], line)
		}
	}
}

func TestTokenizeRegExp(t *testing.T) {
	tokens := Tokenize([]byte("const r = /ab+c/g; const d = a / b;"))
	var regexps []string
	for _, tok := range tokens {
		if tok.Type == es.RegExpToken {
			regexps = append(regexps, tok.Text())
		}
	}
	if want := []string{"/ab+c/g"}; !reflect.DeepEqual(regexps, want) {
		t.Errorf("Tokenize() regexps = %v; want %v", regexps, want)
	}
}

func TestLiterals(t *testing.T) {
	src := "const a = 'plain';\nconst b = \"\\x68\\x69\";\nconst c = `pre${x}post`;\n"
	var got []string
	for _, lit := range Literals(Tokenize([]byte(src))) {
		got = append(got, lit.Value)
	}
	want := []string{"plain", "hi", "pre", "post"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Literals() = %q; want %q", got, want)
	}
}

func TestUnescape(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`plain`, "plain"},
		{`a\nb`, "a\nb"},
		{`\x41\x42`, "AB"},
		{`\u0041`, "A"},
		{`\u{1F600}`, "\U0001F600"},
		{`\'q\'`, "'q'"},
		{`bad\xZZ`, `bad\xZZ`},
	}
	for _, test := range tests {
		if got := Unescape(test.in); got != test.want {
			t.Errorf("Unescape(%q) = %q; want %q", test.in, got, test.want)
		}
	}
}

func TestImports(t *testing.T) {
	src := `
import cp from "node:child_process";
import * as http from "http";
import { exec as run, spawn } from "child_process";
const vm = require("vm");
const { execSync, spawnSync: ss } = require("child_process");
let req;
req = require("https");
`
	prog, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	want := map[string]Import{
		"cp":       {Module: "child_process"},
		"http":     {Module: "http"},
		"run":      {Module: "child_process", Export: "exec"},
		"spawn":    {Module: "child_process", Export: "spawn"},
		"vm":       {Module: "vm"},
		"execSync": {Module: "child_process", Export: "execSync"},
		"ss":       {Module: "child_process", Export: "spawnSync"},
		"req":      {Module: "https"},
	}
	if got := prog.Imports(); !reflect.DeepEqual(got, want) {
		t.Errorf("Imports() = %v; want %v", got, want)
	}
}

func TestTokenImports(t *testing.T) {
	src := `
import cp from "node:child_process";
import * as http from "http";
import { exec as run, spawn, type ExecOptions } from "child_process";
import type { Agent } from "https";
import fs = require("fs");
const vm: typeof import("vm") = require("vm");
const { execSync, spawnSync: ss }: Record<string, Function> = require("child_process");
const helper = require("./helper").default;
let req: any;
req = require("https");
export function run2<T>(x: T): T { return x as T; }
`
	want := map[string]Import{
		"cp":       {Module: "child_process"},
		"http":     {Module: "http"},
		"run":      {Module: "child_process", Export: "exec"},
		"spawn":    {Module: "child_process", Export: "spawn"},
		"fs":       {Module: "fs"},
		"vm":       {Module: "vm"},
		"execSync": {Module: "child_process", Export: "execSync"},
		"ss":       {Module: "child_process", Export: "spawnSync"},
		"req":      {Module: "https"},
	}
	if got := TokenImports(Tokenize([]byte(src))); !reflect.DeepEqual(got, want) {
		t.Errorf("TokenImports() = %v; want %v", got, want)
	}
}

func TestTypedPaths(t *testing.T) {
	tests := []struct {
		path               string
		typed, declaration bool
	}{
		{"index.js", false, false},
		{"src/index.ts", true, false},
		{"src/App.TSX", true, false},
		{"lib/view.jsx", true, false},
		{"esm/index.mts", true, false},
		{"types/index.d.ts", true, true},
		{"types/index.d.mts", true, true},
		{"types/index.d.cts", true, true},
	}
	for _, test := range tests {
		if got := HasTypedSyntax(test.path); got != test.typed {
			t.Errorf("HasTypedSyntax(%q) = %v; want %v", test.path, got, test.typed)
		}
		if got := IsDeclarationFile(test.path); got != test.declaration {
			t.Errorf("IsDeclarationFile(%q) = %v; want %v", test.path, got, test.declaration)
		}
	}
}

func TestTokenizeJSXClosingTag(t *testing.T) {
	src := "const v = <div>{x}</div>;\neval(y);\n"
	var line int
	for _, tok := range Tokenize([]byte(src)) {
		if tok.Is("eval") {
			line = tok.Line
		}
	}
	if line != 2 {
		t.Errorf("eval token line = %d; want 2", line)
	}
}
