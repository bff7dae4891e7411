package scan

import (
	"testing"

	"github.com/AnishDe12020/unsus/internal/scoring"
	"github.com/AnishDe12020/unsus/pkg/api/finding"
	"github.com/AnishDe12020/unsus/pkg/api/scanresult"
)

func TestSummarize(t *testing.T) {
	installCurl := []finding.Finding{
		{Type: finding.InstallScript, Severity: finding.Critical, File: "package.json", Line: 4},
		{Type: finding.Exec, Severity: finding.Critical, File: "package.json", Line: 4},
		{Type: finding.Network, Severity: finding.Danger, File: "package.json", Line: 4},
		{Type: finding.EnvAccess, Severity: finding.Info, File: "index.js", Line: 1},
	}
	tests := []struct {
		name     string
		findings []finding.Finding
		dynamic  *scanresult.DynamicResult
		want     string
	}{
		{
			name: "clean",
			want: "safe risk (0.0/10): no suspicious behaviour found",
		},
		{
			name:     "install script piped to shell",
			findings: installCurl,
			want: "critical risk (9.8/10): 4 findings (2 critical, 1 danger, 1 info); " +
				"install-script, exec, network; compound: install script with execution or network",
		},
		{
			name: "highlights ordered by severity",
			findings: []finding.Finding{
				{Type: finding.FSRead, Severity: finding.Warning, File: "a.js", Line: 1},
				{Type: finding.Eval, Severity: finding.Critical, File: "a.js", Line: 2},
				{Type: finding.FSRead, Severity: finding.Warning, File: "a.js", Line: 3},
			},
			want: "medium risk (3.8/10): 3 findings (1 critical, 2 warning); eval, fs-read",
		},
		{
			name: "sandbox connections",
			findings: []finding.Finding{
				{Type: finding.DynamicNetwork, Severity: finding.Danger, File: finding.SandboxFile, Line: 1},
			},
			dynamic: &scanresult.DynamicResult{Connections: []scanresult.Connection{{Host: "203.0.113.9", Port: 443}}},
			want:    "low risk (1.5/10): 1 findings (1 danger); dynamic-network; sandbox saw 1 connection attempts",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := Summarize(test.findings, scoring.Explain(test.findings), test.dynamic)
			if got != test.want {
				t.Errorf("Summarize() = %q; want %q", got, test.want)
			}
		})
	}
}
