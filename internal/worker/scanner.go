package worker

import (
	"context"
	"fmt"
	"log/slog"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/AnishDe12020/unsus/internal/config"
	"github.com/AnishDe12020/unsus/internal/dynamicanalysis"
	"github.com/AnishDe12020/unsus/internal/externalcmd"
	"github.com/AnishDe12020/unsus/internal/featureflags"
	"github.com/AnishDe12020/unsus/internal/sandbox"
	"github.com/AnishDe12020/unsus/internal/scan"
	"github.com/AnishDe12020/unsus/internal/staticanalysis"
	"github.com/AnishDe12020/unsus/internal/staticanalysis/metadata"
	"github.com/AnishDe12020/unsus/internal/threatintel"
	"github.com/AnishDe12020/unsus/internal/vulnlookup"
)

// ScannerOptions selects the optional parts of a scan.
type ScannerOptions struct {
	// Dynamic enables the sandbox.
	Dynamic bool

	// Offline disables every component that needs the network outside the
	// sandbox: the reputation feed and lookup, and npm audit.
	Offline bool

	Tasks     []staticanalysis.Task
	Consumers []scan.Consumer
}

// NewScanner wires a scan.Scanner from the config file and the feature
// flags. The returned func releases the reputation cache bucket.
func NewScanner(ctx context.Context, cfg config.Config, opts ScannerOptions) (*scan.Scanner, func(), error) {
	cleanup := func() {}
	scanOpts := []scan.Option{
		scan.StaticConfig(staticanalysis.Config{
			Obfuscation: cfg.Obfuscation,
			Metadata:    metadata.Options{ExtraPopular: cfg.ExtraPopular},
		}),
	}
	if len(opts.Tasks) > 0 {
		scanOpts = append(scanOpts, scan.Tasks(opts.Tasks...))
	}

	if !opts.Offline {
		enricher, closeBucket, err := newEnricher(ctx, cfg.ThreatIntel)
		if err != nil {
			return nil, cleanup, err
		}
		cleanup = closeBucket
		scanOpts = append(scanOpts, scan.WithEnricher(enricher))

		if featureflags.VulnLookup.Enabled() {
			scanOpts = append(scanOpts, scan.WithVulnLookup(vulnlookup.New(externalcmd.Exec{}, cfg.VulnLookup.Timeout)))
		}
	}

	if opts.Dynamic {
		scanOpts = append(scanOpts, scan.WithSandbox(NewOrchestrator(cfg.Sandbox)))
	}

	for _, c := range opts.Consumers {
		scanOpts = append(scanOpts, scan.WithConsumer(c))
	}
	return scan.New(scanOpts...), cleanup, nil
}

// NewOrchestrator returns the sandbox orchestrator for cfg, honouring the
// DNSCapture and StraceDebugLogging feature flags.
func NewOrchestrator(cfg config.Sandbox) *dynamicanalysis.Orchestrator {
	opts := []dynamicanalysis.Option{
		dynamicanalysis.DNSCapture(featureflags.DNSCapture.Enabled()),
	}
	if featureflags.StraceDebugLogging.Enabled() {
		opts = append(opts, dynamicanalysis.StraceLogger(slog.Default().With("component", "strace")))
	}
	return dynamicanalysis.New(sandbox.New(cfg.Runtime, externalcmd.Exec{}), cfg, opts...)
}

func newEnricher(ctx context.Context, cfg config.ThreatIntel) (*threatintel.Enricher, func(), error) {
	cleanup := func() {}
	var bucket *blob.Bucket
	if cfg.CacheURL != "" {
		var err error
		bucket, err = blob.OpenBucket(ctx, cfg.CacheURL)
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to open reputation cache %q: %w", cfg.CacheURL, err)
		}
		cleanup = func() {
			if err := bucket.Close(); err != nil {
				slog.WarnContext(ctx, "Failed to close reputation cache", "error", err)
			}
		}
	}

	cache := threatintel.NewCache(bucket, threatintel.NewURLhausFeed(cfg.FeedURL), threatintel.TTL(cfg.TTL))
	opts := []threatintel.Option{threatintel.MaxLookups(cfg.MaxLookups)}
	if featureflags.ReputationLookup.Enabled() && cfg.APIKey != "" {
		opts = append(opts, threatintel.WithLookup(threatintel.NewLookup(cfg.LookupURL, cfg.APIKey, cfg.RateLimit)))
	} else {
		slog.DebugContext(ctx, "Reputation lookup disabled")
	}
	return threatintel.NewEnricher(cache, opts...), cleanup, nil
}
