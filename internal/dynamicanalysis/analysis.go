// Package dynamicanalysis installs a package inside two isolated containers and
// records what its lifecycle scripts attempt to do.
package dynamicanalysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/AnishDe12020/unsus/internal/config"
	"github.com/AnishDe12020/unsus/internal/externalcmd"
	"github.com/AnishDe12020/unsus/internal/log"
	"github.com/AnishDe12020/unsus/internal/sandbox"
	"github.com/AnishDe12020/unsus/pkg/api/scanresult"
)

// Mount points inside the sandbox image.
const (
	packageMount   = "/package"
	workspaceMount = "/workspace"
	outputMount    = "/output"

	fetchCommand   = "/usr/local/bin/fetch.sh"
	executeCommand = "/usr/local/bin/execute.sh"

	scratchSize = "256m"
	killTimeout = 30 * time.Second
)

// ErrInfrastructure wraps failures of the sandbox itself, as opposed to
// misbehaviour of the package under analysis.
var ErrInfrastructure = errors.New("sandbox infrastructure failure")

// Orchestrator drives the fetch and execute stages of a sandbox run.
type Orchestrator struct {
	runtime    *sandbox.Runtime
	cfg        config.Sandbox
	dnsCapture bool
	straceLog  *slog.Logger
	workDir    string
}

type (
	Option interface{ set(*Orchestrator) }
	option func(*Orchestrator) // option implements Option.
)

func (o option) set(orc *Orchestrator) { o(orc) }

// DNSCapture makes the execute stage record DNS queries with tcpdump.
func DNSCapture(enabled bool) Option {
	return option(func(o *Orchestrator) { o.dnsCapture = enabled })
}

// StraceLogger receives debug output from parsing the connect() trace.
func StraceLogger(logger *slog.Logger) Option {
	return option(func(o *Orchestrator) { o.straceLog = logger })
}

// WorkDir sets the host directory under which per-run output directories are
// created. It defaults to os.TempDir().
func WorkDir(dir string) Option {
	return option(func(o *Orchestrator) { o.workDir = dir })
}

func New(runtime *sandbox.Runtime, cfg config.Sandbox, options ...Option) *Orchestrator {
	o := &Orchestrator{runtime: runtime, cfg: cfg}
	for _, opt := range options {
		opt.set(o)
	}
	return o
}

// Thresholds returns the finding thresholds from the orchestrator config.
func (o *Orchestrator) Thresholds() Thresholds {
	return ThresholdsFrom(o.cfg)
}

// Run analyzes the package in pkgDir.
//
// Package misbehaviour, including a stage timing out, is reported through the
// result. Errors wrap ErrInfrastructure.
func (o *Orchestrator) Run(ctx context.Context, pkgDir string) (*scanresult.DynamicResult, error) {
	pkgDir, err := filepath.Abs(pkgDir)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()[:8]
	ctx = log.ContextWithAttrs(ctx, log.LabelAttr("sandbox_id", id))

	if err := o.ensureImage(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInfrastructure, err)
	}

	outDir, err := os.MkdirTemp(o.workDir, "unsus-out-")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInfrastructure, err)
	}
	volume := "unsus-ws-" + id
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), killTimeout)
		defer cancel()
		cleanupErr := multierr.Combine(
			o.runtime.VolumeRemove(cleanupCtx, volume),
			os.RemoveAll(outDir),
		)
		if cleanupErr != nil {
			slog.WarnContext(ctx, "Sandbox cleanup failed", "error", cleanupErr)
		}
	}()

	// The container runs without CAP_DAC_OVERRIDE, so the output directory
	// must be writable by any uid.
	if err := os.Chmod(outDir, 0o777); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInfrastructure, err)
	}
	if err := o.runtime.VolumeCreate(ctx, volume); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInfrastructure, err)
	}

	result := &scanresult.DynamicResult{}
	start := time.Now()

	slog.InfoContext(ctx, "Running sandbox fetch stage", "package_dir", pkgDir)
	fetch, timedOut, err := o.runStage(ctx, "unsus-fetch-"+id, o.cfg.FetchTimeout, fetchCommand,
		sandbox.ReadOnlyVolume(pkgDir, packageMount),
		sandbox.Volume(volume, workspaceMount),
	)
	if err != nil {
		return nil, err
	}
	if timedOut {
		slog.WarnContext(ctx, "Sandbox fetch stage timed out")
		result.TimedOut = true
		result.ExitCode = externalcmd.ExitTimeout
		result.Duration = time.Since(start)
		return result, nil
	}
	if fetch.ExitCode != 0 {
		return nil, fmt.Errorf("%w: fetch stage exited with %d: %s", ErrInfrastructure,
			fetch.ExitCode, lastLines(fetch.Stderr, 5, 1024))
	}

	slog.InfoContext(ctx, "Running sandbox execute stage")
	exec, timedOut, err := o.runStage(ctx, "unsus-exec-"+id, o.cfg.ExecuteTimeout, executeCommand,
		o.executeOptions(volume, outDir)...)
	if err != nil {
		return nil, err
	}
	result.Duration = time.Since(start)
	result.ExitCode = exec.ExitCode
	result.TimedOut = timedOut

	if err := readOutput(ctx, outDir, result, o.straceLog); err != nil {
		return nil, fmt.Errorf("%w: reading sandbox output: %w", ErrInfrastructure, err)
	}

	slog.InfoContext(ctx, "Sandbox run complete",
		"connections", len(result.Connections),
		"files_changed", len(result.FilesChanged),
		"hooks", result.Hooks,
		"timed_out", result.TimedOut,
		"duration", result.Duration)
	return result, nil
}

func (o *Orchestrator) ensureImage(ctx context.Context) error {
	if err := o.runtime.Ping(ctx); err != nil {
		return err
	}
	exists, err := o.runtime.ImageExists(ctx, o.cfg.Image)
	if err != nil || exists {
		return err
	}
	return o.runtime.Build(ctx, o.cfg.Image, BuildContext())
}

func (o *Orchestrator) executeOptions(volume, outDir string) []sandbox.Option {
	opts := []sandbox.Option{
		sandbox.Network("none"),
		sandbox.ReadOnly(),
		sandbox.Volume(volume, workspaceMount),
		sandbox.Volume(outDir, outputMount),
		sandbox.Tmpfs("/tmp", scratchSize),
		sandbox.CapDrop("ALL"),
		sandbox.CapAdd("SYS_PTRACE"),
		sandbox.NoNewPrivileges(),
		sandbox.Limits(o.cfg.Memory, o.cfg.CPUs, o.cfg.PidsLimit),
		sandbox.Env("HOOK_TIMEOUT", strconv.Itoa(int(o.cfg.HookTimeout.Seconds()))),
	}
	if o.dnsCapture {
		opts = append(opts,
			sandbox.CapAdd("NET_RAW"),
			sandbox.Env("DNS_CAPTURE", "1"),
		)
	}
	return opts
}

// runStage runs one container and kills it when timeout expires or ctx is
// cancelled. The returned bool reports whether the timer fired.
func (o *Orchestrator) runStage(ctx context.Context, name string, timeout time.Duration, command string, options ...sandbox.Option) (externalcmd.Result, bool, error) {
	var fired atomic.Bool
	kill := func() {
		killCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), killTimeout)
		defer cancel()
		if err := o.runtime.Kill(killCtx, name); err != nil {
			slog.ErrorContext(ctx, "Failed to kill sandbox container", "container", name, "error", err)
		}
	}
	timer := time.AfterFunc(timeout, func() {
		fired.Store(true)
		slog.WarnContext(ctx, "Sandbox stage timed out, killing container", "container", name, "timeout", timeout)
		kill()
	})
	defer timer.Stop()
	stop := context.AfterFunc(ctx, kill)
	defer stop()

	out := log.NewWriter(ctx, slog.Default(), slog.LevelDebug)
	defer out.Close()

	options = append(options, sandbox.Name(name), sandbox.Output(out))
	res, err := o.runtime.Run(ctx, o.cfg.Image, []string{command}, options...)
	if err != nil {
		return res, false, fmt.Errorf("%w: %w", ErrInfrastructure, err)
	}
	if ctx.Err() != nil {
		return res, false, fmt.Errorf("%w: %w", ErrInfrastructure, ctx.Err())
	}
	return res, fired.Load(), nil
}
