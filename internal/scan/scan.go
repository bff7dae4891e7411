// Package scan composes the analyzers into a single scan of a package
// directory.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AnishDe12020/unsus/internal/dynamicanalysis"
	"github.com/AnishDe12020/unsus/internal/log"
	"github.com/AnishDe12020/unsus/internal/scoring"
	"github.com/AnishDe12020/unsus/internal/staticanalysis"
	"github.com/AnishDe12020/unsus/internal/vulnlookup"
	"github.com/AnishDe12020/unsus/pkg/api/finding"
	"github.com/AnishDe12020/unsus/pkg/api/ioc"
	"github.com/AnishDe12020/unsus/pkg/api/scanresult"
	"github.com/AnishDe12020/unsus/pkg/pkgidentifier"
)

// VulnLookup reports dependencies with known vulnerabilities. Implementations
// never fail: an unavailable tool yields no findings.
type VulnLookup interface {
	Lookup(ctx context.Context, dir string) (*vulnlookup.Report, []finding.Finding)
}

// Enricher checks IOCs against reputation data.
type Enricher interface {
	Enrich(ctx context.Context, iocs []ioc.IOC) ([]ioc.IOC, []finding.Finding)
}

// Sandbox runs the package's install lifecycle in isolation.
type Sandbox interface {
	Run(ctx context.Context, pkgDir string) (*scanresult.DynamicResult, error)
	Thresholds() dynamicanalysis.Thresholds
}

// Consumer receives every completed ScanResult.
type Consumer interface {
	Consume(ctx context.Context, result *scanresult.ScanResult) error
}

// ConsumerFunc adapts a function to the Consumer interface.
type ConsumerFunc func(ctx context.Context, result *scanresult.ScanResult) error

func (f ConsumerFunc) Consume(ctx context.Context, result *scanresult.ScanResult) error {
	return f(ctx, result)
}

type Scanner struct {
	tasks     []staticanalysis.Task
	static    staticanalysis.Config
	vuln      VulnLookup
	enricher  Enricher
	sandbox   Sandbox
	consumers []Consumer
	now       func() time.Time
}

type (
	Option interface{ set(*Scanner) }
	option func(*Scanner) // option implements Option.
)

func (o option) set(s *Scanner) { o(s) }

// Tasks restricts the static analysis tasks. The default runs all of them.
func Tasks(tasks ...staticanalysis.Task) Option {
	return option(func(s *Scanner) { s.tasks = tasks })
}

func StaticConfig(cfg staticanalysis.Config) Option {
	return option(func(s *Scanner) { s.static = cfg })
}

func WithVulnLookup(v VulnLookup) Option {
	return option(func(s *Scanner) { s.vuln = v })
}

func WithEnricher(e Enricher) Option {
	return option(func(s *Scanner) { s.enricher = e })
}

// WithSandbox enables dynamic analysis.
func WithSandbox(sb Sandbox) Option {
	return option(func(s *Scanner) { s.sandbox = sb })
}

func WithConsumer(c Consumer) Option {
	return option(func(s *Scanner) { s.consumers = append(s.consumers, c) })
}

func clock(now func() time.Time) Option {
	return option(func(s *Scanner) { s.now = now })
}

func New(options ...Option) *Scanner {
	s := &Scanner{
		tasks:  staticanalysis.AllTasks(),
		static: staticanalysis.DefaultConfig(),
		now:    time.Now,
	}
	for _, o := range options {
		o.set(s)
	}
	return s
}

/*
Scan analyzes the package rooted at dir.

Static analysis and the vulnerability lookup run concurrently. Their IOCs are
enriched, the sandbox runs if configured, and the deduplicated findings are
scored. Reduced coverage (a failing sandbox, an unavailable lookup) is logged
and reflected in fewer findings; an error is returned only when the package
cannot be loaded or ctx is cancelled.
*/
func (s *Scanner) Scan(ctx context.Context, dir string) (*scanresult.ScanResult, error) {
	start := s.now()
	ctx = log.ContextWithAttrs(ctx, log.LabelAttr("scan_id", uuid.NewString()))

	pkg, err := staticanalysis.LoadPackage(ctx, dir)
	if err != nil {
		return nil, err
	}

	var (
		static       *staticanalysis.Result
		vulnFindings []finding.Finding
		vulnReport   *vulnlookup.Report
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		static, err = staticanalysis.Analyze(gctx, pkg, s.tasks, s.static)
		return err
	})
	if s.vuln != nil && pkg.ManifestErr == nil {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					slog.ErrorContext(gctx, "Vulnerability lookup panicked", "panic", r, "stack", string(debug.Stack()))
				}
			}()
			vulnReport, vulnFindings = s.vuln.Lookup(gctx, pkg.Root)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("static analysis failed: %w", err)
	}

	if m := static.Manifest; m != nil {
		ctx = log.ContextWithAttrs(ctx, log.LabelAttr("name", m.Name), log.LabelAttr("version", m.Version))
	}
	if vulnReport != nil {
		slog.InfoContext(ctx, "Vulnerability lookup complete", "vulnerable_dependencies", vulnReport.Total)
	}

	findings := append(static.Findings, vulnFindings...)
	iocs := ioc.Dedupe(static.IOCs)
	if s.enricher != nil {
		var intel []finding.Finding
		iocs, intel = s.enricher.Enrich(ctx, iocs)
		findings = append(findings, intel...)
	}

	var dynamic *scanresult.DynamicResult
	if s.sandbox != nil {
		dynamic, err = s.sandbox.Run(ctx, pkg.Root)
		switch {
		case err == nil:
			findings = append(findings, dynamicanalysis.Findings(dynamic, s.sandbox.Thresholds())...)
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return nil, err
		default:
			slog.WarnContext(ctx, "Dynamic analysis unavailable", "error", err)
			dynamic = nil
		}
	}

	findings = finding.Dedupe(findings)
	breakdown := scoring.Explain(findings)

	id := identify(pkg, static)
	result := &scanresult.ScanResult{
		Name:      id.Name,
		Version:   id.Version,
		PURL:      id.PURL(),
		RiskScore: breakdown.Score,
		RiskLevel: breakdown.Level,
		Findings:  findings,
		IOCs:      iocs,
		Dynamic:   dynamic,
		Summary:   Summarize(findings, breakdown, dynamic),
		ScannedAt: start.UTC(),
		Duration:  s.now().Sub(start),
	}

	slog.InfoContext(ctx, "Scan complete",
		"risk_score", result.RiskScore,
		"risk_level", result.RiskLevel,
		"findings", len(result.Findings),
		"iocs", len(result.IOCs),
		"duration", result.Duration)

	for _, c := range s.consumers {
		if err := c.Consume(ctx, result); err != nil {
			slog.ErrorContext(ctx, "Result consumer failed", "error", err)
		}
	}
	return result, nil
}

// identify names the package from its manifest, falling back to the
// directory name.
func identify(pkg *staticanalysis.Package, static *staticanalysis.Result) pkgidentifier.PkgIdentifier {
	if m := static.Manifest; m != nil && m.Name != "" {
		return pkgidentifier.PkgIdentifier{Name: m.Name, Version: m.Version}
	}
	return pkgidentifier.PkgIdentifier{Name: filepath.Base(filepath.Clean(pkg.Root))}
}
