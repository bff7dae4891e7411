package scan

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/AnishDe12020/unsus/internal/scoring"
	"github.com/AnishDe12020/unsus/pkg/api/finding"
	"github.com/AnishDe12020/unsus/pkg/api/scanresult"
)

// maxHighlights bounds how many finding types the summary names.
const maxHighlights = 3

// Summarize describes a scan outcome in one line, for example:
//
//	high risk (6.8/10): 4 findings (2 critical, 1 danger, 1 warning); install-script, exec, network; compound: install script with execution or network
func Summarize(findings []finding.Finding, b scoring.Breakdown, dynamic *scanresult.DynamicResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s risk (%.1f/10)", b.Level, b.Score)

	if len(findings) == 0 {
		sb.WriteString(": no suspicious behaviour found")
	} else {
		counts := finding.CountBySeverity(findings)
		var parts []string
		for i := len(finding.Severities) - 1; i >= 0; i-- {
			sev := finding.Severities[i]
			if counts[sev] > 0 {
				parts = append(parts, fmt.Sprintf("%d %s", counts[sev], sev))
			}
		}
		fmt.Fprintf(&sb, ": %d findings (%s)", len(findings), strings.Join(parts, ", "))
		if h := highlights(findings); len(h) > 0 {
			sb.WriteString("; " + strings.Join(h, ", "))
		}
	}

	if len(b.Applied) > 0 {
		names := make([]string, 0, len(b.Applied))
		for _, r := range b.Applied {
			names = append(names, r.Name)
		}
		sb.WriteString("; compound: " + strings.Join(names, ", "))
	}

	if dynamic != nil && len(dynamic.Connections) > 0 {
		fmt.Fprintf(&sb, "; sandbox saw %d connection attempts", len(dynamic.Connections))
	}
	return sb.String()
}

// highlights returns the most severe distinct finding types, most severe
// first and in order of appearance within a severity. Info findings are never
// highlighted.
func highlights(findings []finding.Finding) []string {
	ordered := slices.Clone(findings)
	slices.SortStableFunc(ordered, func(a, b finding.Finding) int {
		return b.Severity.Rank() - a.Severity.Rank()
	})
	var out []string
	for _, f := range ordered {
		if len(out) == maxHighlights || f.Severity == finding.Info {
			break
		}
		if !slices.Contains(out, string(f.Type)) {
			out = append(out, string(f.Type))
		}
	}
	return out
}
