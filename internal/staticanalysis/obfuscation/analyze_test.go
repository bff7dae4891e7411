package obfuscation

import (
	"testing"

	"github.com/AnishDe12020/unsus/pkg/api/finding"
)

func TestAnalyze(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		wantSev  []finding.Severity
		wantLine int
	}{
		{
			name: "short literal",
			src:  `const k = "aZ9$kq!";`,
		},
		{
			name:     "warning entropy",
			src:      "// key\nconst k = \"ABCDEFGHIJKLMNOPQRSTUVWXYZ234567ABCDEFGH\";\n",
			wantSev:  []finding.Severity{finding.Warning},
			wantLine: 2,
		},
		{
			name:     "danger entropy",
			src:      "\n\nconst p = 'ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/';",
			wantSev:  []finding.Severity{finding.Danger},
			wantLine: 3,
		},
		{
			name: "url",
			src:  `fetch("https://cdn.example.com/assets/v2/Xk3pQ9zL7mR2wT5yB8nV4cF6hJ1gD0sA.js")`,
		},
		{
			name: "prose",
			src:  `throw new Error("Unexpected token, expected one of: Identifier, Keyword (got EOF)")`,
		},
		{
			name: "regex class",
			src:  `const re = new RegExp("[A-Za-z0-9_$]+\\s*[=:]\\s*[^,;]+", "g");`,
		},
		{
			name:     "payload with an unknown suffix",
			src:      `const p = "Jk3L9qPz7Xv2Wm8Rt5Ys1Nb4Hc6Gd0Fa+/Qe.Ab";`,
			wantSev:  []finding.Severity{finding.Danger},
			wantLine: 1,
		},
		{
			name:     "base64 payload with a lowercase suffix",
			src:      `const p = "aGVsbG8gd29ybGQgZXZpbCBwYXlsb2FkIGhlcmUgMTIzNDU2Nzg5MA.ab";`,
			wantSev:  []finding.Severity{finding.Warning},
			wantLine: 1,
		},
		{
			name: "low entropy",
			src:  `const s = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa";`,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := Analyze("index.js", []byte(test.src), DefaultThresholds)
			if len(got) != len(test.wantSev) {
				t.Fatalf("Analyze() = %v; want %d findings", got, len(test.wantSev))
			}
			for i, f := range got {
				if f.Type != finding.Obfuscation || f.Severity != test.wantSev[i] || f.Line != test.wantLine {
					t.Errorf("Analyze()[%d] = %v; want %s obfuscation at line %d", i, f, test.wantSev[i], test.wantLine)
				}
			}
		})
	}
}

func TestIsAllowed(t *testing.T) {
	tests := map[string]bool{
		"getElementByIdFromDocumentRoot":       true,
		"import { a as b } from './module.js'": true,
		"../../node_modules/pkg/dist/index":    true,
		"assets/vendor.bundle.min.js":          true,
		"Zk9yZWlnbiBwYXlsb2FkIGZvciB0ZXN0aW5n": false,
		"Jk3L9qPz7Xv2Wm8Rt5Ys1Nb4Hc6Gd0Fa.Ab":  false,
		"Jk3L9qPz7Xv2Wm8Rt5Ys1Nb4Hc6Gd0Fa.JS":  false,
		"telemetry-collector.example-cdn.io":   true,
	}
	for s, want := range tests {
		if got := isAllowed(s); got != want {
			t.Errorf("isAllowed(%q) = %v; want %v", s, got, want)
		}
	}
}
