package dynamicanalysis

import (
	"fmt"
	"net"
	"path"
	"strings"

	"github.com/AnishDe12020/unsus/internal/config"
	"github.com/AnishDe12020/unsus/pkg/api/finding"
	"github.com/AnishDe12020/unsus/pkg/api/scanresult"
)

// Thresholds tune the translation of a DynamicResult into findings.
type Thresholds struct {
	CPUWarning    float64
	CPUCritical   float64
	MaxFSFindings int
}

// ThresholdsFrom extracts the translation thresholds from the sandbox config.
func ThresholdsFrom(cfg config.Sandbox) Thresholds {
	return Thresholds{
		CPUWarning:    cfg.CPUWarning,
		CPUCritical:   cfg.CPUCritical,
		MaxFSFindings: cfg.MaxFSFindings,
	}
}

// findingList numbers findings of the same type so that each keeps a
// distinct identity under finding.Dedupe.
type findingList struct {
	findings []finding.Finding
	lines    map[finding.Type]int
}

func (l *findingList) add(t finding.Type, sev finding.Severity, msg, code string) {
	if l.lines == nil {
		l.lines = make(map[finding.Type]int)
	}
	l.lines[t]++
	l.findings = append(l.findings, finding.Finding{
		Type:     t,
		Severity: sev,
		Message:  msg,
		File:     finding.SandboxFile,
		Line:     l.lines[t],
		Code:     code,
	})
}

// Findings translates a sandbox run into findings. It is a pure function of
// its arguments.
func Findings(result *scanresult.DynamicResult, th Thresholds) []finding.Finding {
	if result == nil {
		return nil
	}
	var l findingList

	seen := make(map[scanresult.Connection]bool)
	for _, c := range result.Connections {
		if seen[c] || isLoopback(c.Host) {
			continue
		}
		seen[c] = true
		target := net.JoinHostPort(c.Host, fmt.Sprint(c.Port))
		msg := "Install script attempted a network connection to " + target
		if c.Hostname != "" {
			msg += " (" + c.Hostname + ")"
		}
		l.add(finding.DynamicNetwork, finding.Danger, msg, target)
	}

	for _, q := range result.DNSQueries {
		l.add(finding.DynamicDNS, finding.Warning, "Install script resolved "+q, q)
	}

	if avg := result.AverageCPU(); len(result.Resources) > 0 {
		usage := fmt.Sprintf("%.1f%%", avg)
		switch {
		case avg >= th.CPUCritical:
			l.add(finding.DynamicResource, finding.Critical,
				"Sustained CPU usage of "+usage+" during install, consistent with cryptomining", usage)
		case avg >= th.CPUWarning:
			l.add(finding.DynamicResource, finding.Warning, "Elevated CPU usage of "+usage+" during install", usage)
		}
	}

	fsCount := 0
	for _, p := range result.FilesChanged {
		if fsCount >= th.MaxFSFindings {
			break
		}
		if inNodeModules(p) {
			continue
		}
		fsCount++
		l.add(finding.DynamicFS, finding.Warning, "Install script wrote "+p, p)
	}

	if result.TimedOut {
		l.add(finding.DynamicResource, finding.Danger, "Install scripts did not finish before the sandbox timeout", "")
	}
	return l.findings
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && (ip.IsLoopback() || ip.IsUnspecified())
}

func inNodeModules(p string) bool {
	p = path.Clean(strings.TrimPrefix(p, "./"))
	return p == "node_modules" || strings.HasPrefix(p, "node_modules/")
}
