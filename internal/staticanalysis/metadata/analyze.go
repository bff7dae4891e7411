package metadata

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"
	"golang.org/x/exp/slices"

	"github.com/AnishDe12020/unsus/internal/staticanalysis/detections"
	"github.com/AnishDe12020/unsus/pkg/api/finding"
	"github.com/AnishDe12020/unsus/pkg/api/ioc"
)

// ManifestFile is the File value of every metadata finding.
const ManifestFile = "package.json"

// InstallHooks are the lifecycle scripts npm runs without being asked.
var InstallHooks = []string{"preinstall", "install", "postinstall", "preuninstall"}

// dependencySections hold version ranges and registry specs, not payloads.
var dependencySections = map[string]bool{
	"dependencies":         true,
	"devDependencies":      true,
	"peerDependencies":     true,
	"optionalDependencies": true,
	"bundledDependencies":  true,
	"bundleDependencies":   true,
	"resolutions":          true,
	"overrides":            true,
	"integrity":            true,
	"_integrity":           true,
	"_shasum":              true,
	"shasum":               true,
}

var (
	downloadCommand = regexp.MustCompile(`(?i)\b(?:curl|wget|Invoke-WebRequest|iwr)\b|https?://`)
	shellCommand    = regexp.MustCompile(`\|\s*(?:sudo\s+)?(?:ba|z|da|k)?sh\b|\beval\b|\b(?:ba|z)?sh\s+-c\b|\bnode\s+-e\b|\bpowershell\b.*-(?:enc|e|c)\b`)
)

// Options configures the analyzer.
type Options struct {
	// ExtraPopular extends the built-in list of typosquatting targets.
	ExtraPopular []string
}

// Analyze inspects a parsed manifest.
func Analyze(m *Manifest, opts Options) ([]finding.Finding, []ioc.IOC) {
	var findings []finding.Finding
	var iocs []ioc.IOC

	findings = append(findings, hookFindings(m)...)

	b64Findings, b64IOCs := encodedValues(m)
	findings = append(findings, b64Findings...)
	iocs = append(iocs, b64IOCs...)

	if f, ok := typosquat(m, append(slices.Clone(popularPackages), opts.ExtraPopular...)); ok {
		findings = append(findings, f)
	}

	return findings, iocs
}

// ManifestError is the finding recorded when the manifest cannot be used.
func ManifestError(err error) finding.Finding {
	return finding.Finding{
		Type:     finding.ManifestError,
		Severity: finding.Info,
		Message:  fmt.Sprintf("could not read package manifest: %v", err),
		File:     ManifestFile,
	}
}

func hookFindings(m *Manifest) []finding.Finding {
	var findings []finding.Finding
	for _, hook := range InstallHooks {
		cmd, ok := m.Scripts[hook]
		if !ok {
			continue
		}
		line := m.KeyLine(hook)
		add := func(typ finding.Type, sev finding.Severity, msg string) {
			findings = append(findings, finding.Finding{
				Type:     typ,
				Severity: sev,
				Message:  msg,
				File:     ManifestFile,
				Line:     line,
				Code:     finding.TruncateCode(cmd, 200),
			})
		}

		add(finding.InstallScript, finding.Critical, fmt.Sprintf("%s script runs on install", hook))
		if shellCommand.MatchString(cmd) {
			add(finding.Exec, finding.Critical, fmt.Sprintf("%s script hands code to a shell or evaluator", hook))
		}
		if downloadCommand.MatchString(cmd) {
			add(finding.Network, finding.Danger, fmt.Sprintf("%s script downloads from the network", hook))
		}
	}
	return findings
}

// encodedValues reports manifest strings that look like base64 payloads, and
// any URLs hidden inside them.
func encodedValues(m *Manifest) ([]finding.Finding, []ioc.IOC) {
	var findings []finding.Finding
	var iocs []ioc.IOC

	keys := make([]string, 0, len(m.Fields))
	for k := range m.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if dependencySections[k] {
			continue
		}
		walkStrings(m.Fields[k], func(s string) {
			if !detections.IsBase64Value(s) {
				return
			}
			line := m.ValueLine(s)
			findings = append(findings, finding.Finding{
				Type:     finding.Base64,
				Severity: finding.Danger,
				Message:  fmt.Sprintf("manifest field %q holds a base64 encoded value", k),
				File:     ManifestFile,
				Line:     line,
				Code:     finding.TruncateCode(s, 80),
			})
			if decoded, ok := detections.DecodeBase64(s); ok {
				for _, u := range detections.FindURLs(string(decoded)) {
					iocs = append(iocs, ioc.IOC{Type: ioc.URL, Value: u, Context: ioc.FormatContext(ManifestFile, line)})
				}
			}
		})
	}
	return findings, iocs
}

// walkStrings calls fn for every string in a decoded JSON value, visiting
// object members in key order.
func walkStrings(v any, fn func(string)) {
	switch v := v.(type) {
	case string:
		fn(v)
	case []any:
		for _, e := range v {
			walkStrings(e, fn)
		}
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walkStrings(v[k], fn)
		}
	}
}

// typosquat compares the package name with popular names. Distance 2 is
// only considered for names of five or more characters, distance 1 for three
// or more.
func typosquat(m *Manifest, popular []string) (finding.Finding, bool) {
	name := strings.ToLower(strings.TrimSpace(m.Name))
	if name == "" || slices.Contains(popular, name) {
		return finding.Finding{}, false
	}

	best, bestDist := "", 3
	for _, p := range popular {
		d := levenshtein.DistanceForStrings([]rune(name), []rune(p), levenshtein.DefaultOptionsWithSub)
		if d < 1 || d > 2 || d >= bestDist {
			continue
		}
		if (d == 1 && len(p) < 3) || (d == 2 && len(p) < 5) {
			continue
		}
		best, bestDist = p, d
	}
	if best == "" {
		return finding.Finding{}, false
	}
	return finding.Finding{
		Type:     finding.Typosquat,
		Severity: finding.Danger,
		Message:  fmt.Sprintf("package name %q is %d edit(s) away from popular package %q", m.Name, bestDist, best),
		File:     ManifestFile,
		Line:     m.KeyLine("name"),
		Code:     m.Name,
	}, true
}
