package binary

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"

	"github.com/AnishDe12020/unsus/pkg/api/finding"
)

type minerPattern struct {
	re       *regexp.Regexp
	severity finding.Severity
	message  string
}

// minerPatterns are checked in order; a line reports only its first match.
var minerPatterns = []minerPattern{
	{
		re:       regexp.MustCompile(`(?i)stratum\+(?:tcp|ssl|tls)://`),
		severity: finding.Critical,
		message:  "connects to a mining pool over the stratum protocol",
	},
	{
		re:       regexp.MustCompile(`(?i)(?:pool\.minexmr\.com|minergate\.com|monerohash\.com|moneropool\.com|nanopool\.org|supportxmr\.com|hashvault\.pro|2miners\.com|f2pool\.com|antpool\.com|nicehash\.com|herominers\.com|c3pool\.com)`),
		severity: finding.Critical,
		message:  "references a known mining pool",
	},
	{
		re:       minerName,
		severity: finding.Danger,
		message:  "references a known miner binary",
	},
	{
		re:       regexp.MustCompile(`\bos\.cpus\s*\(|\bhardwareConcurrency\b|\bWebAssembly\.(?:instantiate|instantiateStreaming|compile)\b|\bnew\s+Worker\s*\(`),
		severity: finding.Warning,
		message:  "probes CPU, worker or WebAssembly capacity",
	},
}

// AnalyzeSource scans a source file line by line for mining indicators.
func AnalyzeSource(p string, src []byte) []finding.Finding {
	var findings []finding.Finding
	sc := bufio.NewScanner(bytes.NewReader(src))
	sc.Buffer(make([]byte, 64*1024), len(src)+1)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		for _, pat := range minerPatterns {
			if !pat.re.MatchString(text) {
				continue
			}
			findings = append(findings, finding.Finding{
				Type:     finding.Cryptominer,
				Severity: pat.severity,
				Message:  pat.message,
				File:     p,
				Line:     line,
				Code:     finding.TruncateCode(strings.TrimSpace(text), 120),
			})
			break
		}
	}
	return findings
}
