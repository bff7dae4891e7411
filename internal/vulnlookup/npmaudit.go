// Package vulnlookup reports known vulnerabilities in a package's dependency
// tree using npm audit.
package vulnlookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/AnishDe12020/unsus/internal/externalcmd"
	"github.com/AnishDe12020/unsus/pkg/api/finding"
)

const (
	// DefaultTimeout bounds lockfile generation and the audit together.
	DefaultTimeout = 60 * time.Second

	// LockfileName is the file the audit findings are attributed to.
	LockfileName = "package-lock.json"

	manifestName = "package.json"
)

var lockfiles = []string{LockfileName, "npm-shrinkwrap.json"}

// severityOrder lists npm severities from most to least severe.
var severityOrder = []string{"critical", "high", "moderate", "low", "info"}

var severityMap = map[string]finding.Severity{
	"critical": finding.Critical,
	"high":     finding.Danger,
	"moderate": finding.Warning,
	"low":      finding.Info,
	"info":     finding.Info,
}

// Dependency is one vulnerable package in the tree.
type Dependency struct {
	Name     string
	Severity string
	Direct   bool

	// Titles holds advisory titles; for transitive entries it holds the
	// names of the dependencies the vulnerability comes through.
	Titles []string
	Path   string
}

// Report is the parsed outcome of npm audit.
type Report struct {
	Counts       map[string]int
	Total        int
	Dependencies []Dependency
}

type auditReport struct {
	Vulnerabilities map[string]auditVuln `json:"vulnerabilities"`
	Metadata        struct {
		Vulnerabilities map[string]int `json:"vulnerabilities"`
	} `json:"metadata"`
}

type auditVuln struct {
	Name     string            `json:"name"`
	Severity string            `json:"severity"`
	IsDirect bool              `json:"isDirect"`
	Via      []json.RawMessage `json:"via"`
	Nodes    []string          `json:"nodes"`
}

type viaDetail struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// ParseReport decodes npm audit --json output (report version 2, npm 7+).
func ParseReport(data []byte) (*Report, error) {
	var raw auditReport
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal npm audit json: %w", err)
	}
	if raw.Vulnerabilities == nil && raw.Metadata.Vulnerabilities == nil {
		return nil, errors.New("npm audit output has no vulnerabilities section")
	}

	r := &Report{Counts: make(map[string]int)}
	for sev, n := range raw.Metadata.Vulnerabilities {
		if sev == "total" {
			r.Total = n
			continue
		}
		r.Counts[sev] = n
	}

	names := maps.Keys(raw.Vulnerabilities)
	slices.Sort(names)
	for _, name := range names {
		v := raw.Vulnerabilities[name]
		dep := Dependency{
			Name:     name,
			Severity: v.Severity,
			Direct:   v.IsDirect,
			Path:     "node_modules/" + name,
		}
		if len(v.Nodes) > 0 {
			dep.Path = v.Nodes[0]
		}
		for _, rv := range v.Via {
			var s string
			if err := json.Unmarshal(rv, &s); err == nil {
				dep.Titles = append(dep.Titles, s)
				continue
			}
			var d viaDetail
			if err := json.Unmarshal(rv, &d); err == nil && d.Title != "" && !slices.Contains(dep.Titles, d.Title) {
				dep.Titles = append(dep.Titles, d.Title)
			}
		}
		r.Dependencies = append(r.Dependencies, dep)
	}
	if r.Total == 0 {
		r.Total = len(r.Dependencies)
	}
	return r, nil
}

// Findings turns a report into one npm-audit summary finding plus one
// known-cve finding per vulnerable dependency.
func (r *Report) Findings() []finding.Finding {
	if r.Total == 0 {
		return nil
	}
	var parts []string
	for _, sev := range severityOrder {
		if n := r.Counts[sev]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, sev))
		}
	}
	findings := []finding.Finding{{
		Type:     finding.NPMAudit,
		Severity: finding.Info,
		Message:  fmt.Sprintf("npm audit reports %d vulnerabilities (%s)", r.Total, strings.Join(parts, ", ")),
		File:     LockfileName,
	}}

	for _, dep := range r.Dependencies {
		sev, ok := severityMap[dep.Severity]
		if !ok {
			sev = finding.Info
		}
		msg := fmt.Sprintf("%s has a %s severity vulnerability", dep.Name, dep.Severity)
		if len(dep.Titles) > 0 {
			msg += ": " + strings.Join(dep.Titles, "; ")
		}
		findings = append(findings, finding.Finding{
			Type:     finding.KnownCVE,
			Severity: sev,
			Message:  msg,
			File:     dep.Path,
		})
	}
	return findings
}

// NPMAudit runs npm audit in the package directory.
type NPMAudit struct {
	runner  externalcmd.Runner
	timeout time.Duration
}

func New(runner externalcmd.Runner, timeout time.Duration) *NPMAudit {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &NPMAudit{runner: runner, timeout: timeout}
}

// Lookup audits the package at dir. npm runs in a scratch directory holding
// copies of the manifest and any lockfile, so dir is never written to; a
// lockfile is generated there first when the package has none. Any failure
// is logged and yields no findings.
func (a *NPMAudit) Lookup(ctx context.Context, dir string) (*Report, []finding.Finding) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	work, err := os.MkdirTemp("", "unsus-audit-")
	if err != nil {
		slog.WarnContext(ctx, "cannot create vulnerability lookup directory", "error", err)
		return nil, nil
	}
	defer os.RemoveAll(work)
	if err := copyAuditFiles(dir, work); err != nil {
		slog.InfoContext(ctx, "skipping vulnerability lookup", "error", err)
		return nil, nil
	}

	if !hasLockfile(work) {
		res, err := a.runner.Run(ctx, externalcmd.Command{
			Name: "npm",
			Args: []string{"install", "--package-lock-only", "--ignore-scripts", "--no-audit", "--no-fund"},
			Dir:  work,
		})
		if err != nil {
			slog.InfoContext(ctx, "npm unavailable, skipping vulnerability lookup", "error", err)
			return nil, nil
		}
		if !res.Success() {
			slog.WarnContext(ctx, "lockfile generation failed", "exit_code", res.ExitCode,
				"timed_out", res.TimedOut, "stderr", lastLine(res.Stderr))
			return nil, nil
		}
	}

	res, err := a.runner.Run(ctx, externalcmd.Command{
		Name: "npm",
		Args: []string{"audit", "--json"},
		Dir:  work,
	})
	if err != nil {
		slog.InfoContext(ctx, "npm unavailable, skipping vulnerability lookup", "error", err)
		return nil, nil
	}
	if res.TimedOut {
		slog.WarnContext(ctx, "npm audit timed out", "timeout", a.timeout)
		return nil, nil
	}

	// npm audit exits non-zero when it finds vulnerabilities.
	report, err := ParseReport(res.Stdout)
	if err != nil {
		slog.WarnContext(ctx, "could not parse npm audit output", "error", err,
			"exit_code", res.ExitCode, "stderr", lastLine(res.Stderr))
		return nil, nil
	}
	return report, report.Findings()
}

// copyAuditFiles copies the manifest and any lockfiles from src to dst. A
// missing manifest is an error.
func copyAuditFiles(src, dst string) error {
	for _, name := range append([]string{manifestName}, lockfiles...) {
		b, err := os.ReadFile(filepath.Join(src, name))
		if errors.Is(err, fs.ErrNotExist) && name != manifestName {
			continue
		}
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dst, name), b, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func hasLockfile(dir string) bool {
	for _, name := range lockfiles {
		if _, err := os.Stat(filepath.Join(dir, name)); !errors.Is(err, fs.ErrNotExist) {
			return true
		}
	}
	return false
}

func lastLine(b []byte) string {
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	return lines[len(lines)-1]
}
