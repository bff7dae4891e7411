// Package finding defines the evidence records every analyzer emits.
package finding

import "fmt"

// SandboxFile is the File value of findings that are not tied to a source
// file, such as behaviour observed during dynamic analysis.
const SandboxFile = "<sandbox>"

// Finding is one discrete piece of evidence. Findings are values and are not
// modified after an analyzer creates them.
type Finding struct {
	Type     Type     `json:"type"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	File     string   `json:"file"`
	Line     int      `json:"line"`
	Code     string   `json:"code"`
}

// Key identifies a Finding for deduplication.
type Key struct {
	Type Type
	File string
	Line int
}

func (f Finding) Key() Key {
	return Key{Type: f.Type, File: f.File, Line: f.Line}
}

func (f Finding) String() string {
	return fmt.Sprintf("[%s] %s %s:%d %s", f.Severity, f.Type, f.File, f.Line, f.Message)
}

// Dedupe returns findings with later duplicates (same Key) removed. Order is
// preserved and the input is not modified.
func Dedupe(findings []Finding) []Finding {
	seen := make(map[Key]bool, len(findings))
	out := make([]Finding, 0, len(findings))
	for _, f := range findings {
		k := f.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, f)
	}
	return out
}

// CountBySeverity tallies findings per severity.
func CountBySeverity(findings []Finding) map[Severity]int {
	counts := make(map[Severity]int)
	for _, f := range findings {
		counts[f.Severity]++
	}
	return counts
}

// TruncateCode shortens an excerpt to at most n bytes, marking the cut.
func TruncateCode(code string, n int) string {
	if len(code) <= n {
		return code
	}
	return code[:n] + "..."
}
