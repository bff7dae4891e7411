// Package scoring turns a list of findings into a 0-10 risk score and tier.
//
// Each finding adds a delta that shrinks as more findings of the same severity
// are seen, so that one noisy analyzer cannot dominate the total. The sum is
// then multiplied by a factor for every dangerous combination of finding
// types present.
package scoring

import (
	"math"

	"github.com/AnishDe12020/unsus/pkg/api/finding"
	"github.com/AnishDe12020/unsus/pkg/api/scanresult"
)

const (
	MaxScore = 10.0

	// infoDelta is the flat contribution of each info finding.
	infoDelta = 0.05
)

// deltas holds the contribution of the 1st, 2nd, ... finding of a severity.
// The last value repeats for every further finding.
var deltas = map[finding.Severity][]float64{
	finding.Critical: {3.0, 2.0, 1.0, 0.5},
	finding.Danger:   {1.5, 1.0, 0.5, 0.25},
	finding.Warning:  {0.5, 0.3, 0.2, 0.1},
}

// Rule multiplies the score when a type from Any and, if All is non-empty, a
// type from All are both present.
type Rule struct {
	Name   string
	Any    []finding.Type
	All    []finding.Type
	Factor float64
}

var (
	networkTypes   = []finding.Type{finding.Network, finding.DynamicNetwork, finding.DynamicDNS}
	executionTypes = []finding.Type{finding.Eval, finding.Exec, finding.FunctionConstructor, finding.ChildProcess}
	encodingTypes  = []finding.Type{finding.Obfuscation, finding.Base64, finding.HexEscape, finding.CharCode}
)

// Rules are the compound multipliers, applied in order.
var Rules = []Rule{
	{
		Name:   "install script with execution or network",
		Any:    []finding.Type{finding.InstallScript},
		All:    append([]finding.Type{finding.Exec}, networkTypes...),
		Factor: 1.5,
	},
	{
		Name:   "obfuscation with code execution",
		Any:    encodingTypes,
		All:    executionTypes,
		Factor: 1.4,
	},
	{
		Name:   "credential access with network",
		Any:    []finding.Type{finding.EnvAccessSensitive},
		All:    networkTypes,
		Factor: 1.5,
	},
	{
		Name:   "cryptominer with network",
		Any:    []finding.Type{finding.Cryptominer},
		All:    networkTypes,
		Factor: 1.5,
	},
	{
		Name:   "locale trigger with file writes",
		Any:    []finding.Type{finding.GeoTrigger},
		All:    []finding.Type{finding.FSWrite},
		Factor: 1.3,
	},
	{
		Name:   "install-time network activity",
		Any:    []finding.Type{finding.DynamicNetwork},
		All:    []finding.Type{finding.InstallScript},
		Factor: 1.5,
	},
	{
		Name:   "threat intelligence match",
		Any:    []finding.Type{finding.ThreatIntel},
		Factor: 2.0,
	},
	{
		Name:   "known vulnerability",
		Any:    []finding.Type{finding.KnownCVE},
		Factor: 1.2,
	},
}

func (r Rule) holds(present map[finding.Type]bool) bool {
	return anyPresent(present, r.Any) && (len(r.All) == 0 || anyPresent(present, r.All))
}

func anyPresent(present map[finding.Type]bool, types []finding.Type) bool {
	for _, t := range types {
		if present[t] {
			return true
		}
	}
	return false
}

// Breakdown explains how a score was reached.
type Breakdown struct {
	Base    float64
	Applied []Rule
	Score   float64
	Level   scanresult.RiskLevel
}

// Explain scores findings and records the additive base and the rules that
// fired.
func Explain(findings []finding.Finding) Breakdown {
	var b Breakdown
	seen := make(map[finding.Severity]int)
	present := make(map[finding.Type]bool)

	for _, f := range findings {
		present[f.Type] = true
		b.Base += delta(f.Severity, seen[f.Severity])
		seen[f.Severity]++
	}

	total := b.Base
	for _, r := range Rules {
		if r.holds(present) {
			total *= r.Factor
			b.Applied = append(b.Applied, r)
		}
	}

	b.Score = round(clamp(total))
	b.Level = Level(b.Score)
	return b
}

func delta(sev finding.Severity, n int) float64 {
	switch sev {
	case finding.Info:
		return infoDelta
	case finding.Warning, finding.Danger, finding.Critical:
		seq := deltas[sev]
		return seq[min(n, len(seq)-1)]
	default:
		return 0
	}
}

// Score returns the risk score of findings, in [0, 10] with one decimal.
func Score(findings []finding.Finding) float64 {
	return Explain(findings).Score
}

// Level maps a score to its tier.
func Level(score float64) scanresult.RiskLevel {
	switch {
	case score <= 1:
		return scanresult.Safe
	case score <= 3:
		return scanresult.Low
	case score <= 5:
		return scanresult.Medium
	case score <= 7.5:
		return scanresult.High
	default:
		return scanresult.Critical
	}
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(MaxScore, v))
}

func round(v float64) float64 {
	return math.Round(v*10) / 10
}
