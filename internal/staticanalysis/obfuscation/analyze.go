// Package obfuscation flags string literals whose character distribution
// suggests packed, encrypted or encoded payloads.
package obfuscation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/AnishDe12020/unsus/internal/staticanalysis/detections"
	"github.com/AnishDe12020/unsus/internal/staticanalysis/parsing/js"
	"github.com/AnishDe12020/unsus/internal/staticanalysis/stringentropy"
	"github.com/AnishDe12020/unsus/pkg/api/finding"
)

// Thresholds calibrates the analyzer. Entropy values are in bits per character.
type Thresholds struct {
	MinLength int     `yaml:"min_length"`
	Warning   float64 `yaml:"warning"`
	Danger    float64 `yaml:"danger"`
}

var DefaultThresholds = Thresholds{
	MinLength: 20,
	Warning:   4.2,
	Danger:    5.2,
}

const codeExcerptLen = 80

// Analyze reports every string or template literal in src whose entropy
// reaches the warning threshold, unless it matches a benign shape.
func Analyze(path string, src []byte, th Thresholds) []finding.Finding {
	var findings []finding.Finding
	for _, lit := range js.Literals(js.Tokenize(src)) {
		if utf8.RuneCountInString(lit.Value) < th.MinLength || isAllowed(lit.Value) {
			continue
		}

		entropy := stringentropy.Calculate(lit.Value)
		var sev finding.Severity
		switch {
		case entropy >= th.Danger:
			sev = finding.Danger
		case entropy >= th.Warning:
			sev = finding.Warning
		default:
			continue
		}

		findings = append(findings, finding.Finding{
			Type:     finding.Obfuscation,
			Severity: sev,
			Message:  fmt.Sprintf("high-entropy string literal (%.2f bits/char, %d chars)", entropy, utf8.RuneCountInString(lit.Value)),
			File:     path,
			Line:     lit.Line,
			Code:     finding.TruncateCode(lit.Raw, codeExcerptLen),
		})
	}
	return findings
}

var (
	regexClass    = regexp.MustCompile(`\[[^\]]*\w-\w[^\]]*\]|\\[dwsbDWSB][+*?]?`)
	urlLike       = regexp.MustCompile(`^(?i:[a-z][a-z0-9+.-]*)://\S+$`)
	camelCase     = regexp.MustCompile(`^[a-z]+(?:[A-Z][a-z0-9]+)+$`)
	moduleSyntax  = regexp.MustCompile(`^\s*(?:import|export)\s`)
	pathLike      = regexp.MustCompile(`^(?:\.{1,2}/|~/|/|[A-Za-z]:\\)[\w.@/\\ -]*$`)
	proseWordLike = regexp.MustCompile(`^[\p{L}'(),.:;!?-]+$`)
)

// isAllowed reports whether s has a benign shape that tends to carry high
// entropy without being a payload.
func isAllowed(s string) bool {
	switch {
	case regexClass.MatchString(s),
		urlLike.MatchString(s),
		camelCase.MatchString(s),
		moduleSyntax.MatchString(s),
		detections.HasKnownSuffix(s),
		pathLike.MatchString(s):
		return true
	}
	return isProse(s)
}

// isProse reports whether most whitespace-separated words of s are words of
// natural language.
func isProse(s string) bool {
	words := strings.Fields(s)
	if len(words) < 3 {
		return false
	}
	wordy := 0
	for _, w := range words {
		if proseWordLike.MatchString(w) {
			wordy++
		}
	}
	return wordy*2 >= len(words)
}
