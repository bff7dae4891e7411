package threatintel

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/AnishDe12020/unsus/pkg/api/finding"
	"github.com/AnishDe12020/unsus/pkg/api/ioc"
)

// DefaultMaxLookups bounds host API calls per scan.
const DefaultMaxLookups = 5

// Enricher matches IOCs against the cached feed and, for the remainder, the
// host lookup API.
type Enricher struct {
	cache      *Cache
	lookup     *Lookup
	maxLookups int
}

type (
	Option interface{ set(*Enricher) }
	option func(*Enricher) // option implements Option.
)

func (o option) set(e *Enricher) { o(e) }

// WithLookup enables host API lookups for IOCs the feed does not match.
func WithLookup(l *Lookup) Option {
	return option(func(e *Enricher) { e.lookup = l })
}

// MaxLookups sets the per-scan host API budget.
func MaxLookups(n int) Option {
	return option(func(e *Enricher) { e.maxLookups = n })
}

func NewEnricher(cache *Cache, options ...Option) *Enricher {
	e := &Enricher{cache: cache, maxLookups: DefaultMaxLookups}
	for _, o := range options {
		o.set(e)
	}
	return e
}

func enrichable(t ioc.Type) bool {
	return t == ioc.URL || t == ioc.Domain || t == ioc.IP
}

/*
Enrich returns a copy of iocs with ThreatMatch set on every known-bad
indicator, and one threat-intel finding per match, located at the IOC's
context.

Feed matches are critical. Host API matches are graded by HostReport.Severity.
Lookup errors are logged and never returned.
*/
func (e *Enricher) Enrich(ctx context.Context, iocs []ioc.IOC) ([]ioc.IOC, []finding.Finding) {
	out := make([]ioc.IOC, len(iocs))
	copy(out, iocs)

	var findings []finding.Finding
	var pending []int

	var db *Database
	if e.cache != nil {
		db = e.cache.Database(ctx)
	}
	for idx, i := range out {
		if !enrichable(i.Type) {
			continue
		}
		if db != nil {
			if m, ok := db.Match(i); ok {
				out[idx].ThreatMatch = m
				findings = append(findings, matchFinding(out[idx], finding.Critical))
				continue
			}
		}
		pending = append(pending, idx)
	}

	if e.lookup == nil || e.lookup.apiKey == "" {
		return out, findings
	}

	reports := make(map[string]*HostReport)
	lookups := 0
	for _, idx := range pending {
		host := lookupHost(out[idx])
		if host == "" {
			continue
		}
		report, seen := reports[host]
		if !seen {
			if lookups >= e.maxLookups {
				continue
			}
			lookups++
			var err error
			report, err = e.lookup.Host(ctx, host)
			if err != nil {
				slog.WarnContext(ctx, "reputation lookup failed", "host", host, "error", err)
			}
			reports[host] = report
		}
		if report == nil {
			continue
		}
		sev, ok := report.Severity()
		if !ok {
			continue
		}
		out[idx].ThreatMatch = &ioc.ThreatMatch{Source: LookupSource, Detail: report.Detail()}
		findings = append(findings, matchFinding(out[idx], sev))
	}
	return out, findings
}

func lookupHost(i ioc.IOC) string {
	if i.Type != ioc.URL {
		return i.Value
	}
	u, err := url.Parse(i.Value)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func matchFinding(i ioc.IOC, sev finding.Severity) finding.Finding {
	file, line := i.Location()
	return finding.Finding{
		Type:     finding.ThreatIntel,
		Severity: sev,
		Message:  fmt.Sprintf("%s %s flagged by %s: %s", i.Type, i.Value, i.ThreatMatch.Source, i.ThreatMatch.Detail),
		File:     file,
		Line:     line,
		Code:     i.Value,
	}
}
