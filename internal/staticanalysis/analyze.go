package staticanalysis

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	"github.com/AnishDe12020/unsus/internal/log"
	"github.com/AnishDe12020/unsus/internal/staticanalysis/behavior"
	"github.com/AnishDe12020/unsus/internal/staticanalysis/binary"
	"github.com/AnishDe12020/unsus/internal/staticanalysis/iocextract"
	"github.com/AnishDe12020/unsus/internal/staticanalysis/metadata"
	"github.com/AnishDe12020/unsus/internal/staticanalysis/obfuscation"
	"github.com/AnishDe12020/unsus/pkg/api/finding"
	"github.com/AnishDe12020/unsus/pkg/api/ioc"
)

// Config calibrates the analyzers.
type Config struct {
	Obfuscation obfuscation.Thresholds
	Metadata    metadata.Options
}

// DefaultConfig returns the built-in calibration.
func DefaultConfig() Config {
	return Config{Obfuscation: obfuscation.DefaultThresholds}
}

type taskInput struct {
	pkg         *Package
	sources     []SourceFile
	manifest    *metadata.Manifest
	manifestErr error
}

type taskOutput struct {
	findings []finding.Finding
	iocs     []ioc.IOC
}

/*
Analyze runs the given tasks concurrently over the package file set and
combines their output in task order.

Tasks are isolated from each other: a task that panics is logged and
contributes nothing, while the others still complete. An error is returned
only for an unknown task or when ctx is cancelled.
*/
func Analyze(ctx context.Context, pkg *Package, tasks []Task, cfg Config) (*Result, error) {
	for _, t := range tasks {
		if _, ok := TaskFromString(string(t)); !ok {
			return nil, fmt.Errorf("static analysis task not implemented: %s", t)
		}
	}

	result := &Result{}
	manifestErr := pkg.ManifestErr
	if manifestErr == nil {
		result.Manifest, manifestErr = metadata.ParseManifest(pkg.Manifest)
	}
	in := taskInput{
		pkg:         pkg,
		sources:     SkipMinifiedDuplicates(pkg.Sources),
		manifest:    result.Manifest,
		manifestErr: manifestErr,
	}

	outputs := make([]taskOutput, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	for i, task := range tasks {
		g.Go(func() error {
			taskCtx := log.ContextWithAttrs(gctx, log.LabelAttr("task", string(task)))
			defer func() {
				if r := recover(); r != nil {
					slog.ErrorContext(taskCtx, "static analysis task panicked",
						"panic", r, "stack", string(debug.Stack()))
					outputs[i] = taskOutput{}
				}
			}()

			slog.DebugContext(taskCtx, "running static analysis task")
			out, err := runTask(taskCtx, task, in, cfg)
			if err != nil {
				return err
			}
			outputs[i] = out
			slog.DebugContext(taskCtx, "static analysis task complete",
				"findings", len(out.findings), "iocs", len(out.iocs))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, out := range outputs {
		result.Findings = append(result.Findings, out.findings...)
		result.IOCs = append(result.IOCs, out.iocs...)
	}
	return result, nil
}

func runTask(ctx context.Context, task Task, in taskInput, cfg Config) (taskOutput, error) {
	var out taskOutput
	sources := in.sources
	switch task {
	case Behavior:
		for _, f := range sources {
			if err := ctx.Err(); err != nil {
				return out, err
			}
			out.findings = append(out.findings, behavior.Analyze(f.Path, f.Content)...)
		}
	case Obfuscation:
		for _, f := range sources {
			if err := ctx.Err(); err != nil {
				return out, err
			}
			out.findings = append(out.findings, obfuscation.Analyze(f.Path, f.Content, cfg.Obfuscation)...)
		}
	case IOCs:
		for _, f := range sources {
			if err := ctx.Err(); err != nil {
				return out, err
			}
			out.iocs = append(out.iocs, iocextract.Extract(f.Path, f.Content)...)
		}
		if in.pkg.Manifest != nil {
			out.iocs = append(out.iocs, iocextract.Extract(ManifestName, in.pkg.Manifest)...)
		}
	case Binary:
		for _, f := range in.pkg.Binaries {
			out.findings = append(out.findings, binary.AnalyzeFile(f.Path, f.Header)...)
		}
		for _, f := range sources {
			if err := ctx.Err(); err != nil {
				return out, err
			}
			out.findings = append(out.findings, binary.AnalyzeSource(f.Path, f.Content)...)
		}
	case Metadata:
		if in.manifest == nil {
			out.findings = append(out.findings, metadata.ManifestError(in.manifestErr))
			return out, nil
		}
		out.findings, out.iocs = metadata.Analyze(in.manifest, cfg.Metadata)
	}
	return out, nil
}
