// Package sandbox drives a container runtime (docker or podman) through its
// command line interface.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/AnishDe12020/unsus/internal/externalcmd"
)

const (
	Docker = "docker"
	Podman = "podman"
)

// ErrRuntimeUnavailable is returned when the container runtime binary is
// missing or its daemon does not respond.
var ErrRuntimeUnavailable = errors.New("container runtime unavailable")

// Runtime runs containers with a docker-compatible CLI.
type Runtime struct {
	bin    string
	runner externalcmd.Runner
}

// New returns a Runtime invoking bin (Docker or Podman) through runner.
func New(bin string, runner externalcmd.Runner) *Runtime {
	if bin == "" {
		bin = Docker
	}
	if runner == nil {
		runner = externalcmd.Exec{}
	}
	return &Runtime{bin: bin, runner: runner}
}

func (r *Runtime) String() string {
	return r.bin
}

func (r *Runtime) run(ctx context.Context, args ...string) (externalcmd.Result, error) {
	res, err := r.runner.Run(ctx, externalcmd.Command{Name: r.bin, Args: args})
	if errors.Is(err, externalcmd.ErrNotFound) {
		return res, fmt.Errorf("%w: %w", ErrRuntimeUnavailable, err)
	}
	return res, err
}

// check runs args and turns a non-zero exit into an error carrying stderr.
func (r *Runtime) check(ctx context.Context, args ...string) error {
	res, err := r.run(ctx, args...)
	if err != nil {
		return err
	}
	if !res.Success() {
		return fmt.Errorf("%s %s: exit %d: %s", r.bin, args[0], res.ExitCode,
			strings.TrimSpace(string(res.Stderr)))
	}
	return nil
}

// Ping verifies the runtime responds.
func (r *Runtime) Ping(ctx context.Context) error {
	if err := r.check(ctx, "version"); err != nil {
		if errors.Is(err, ErrRuntimeUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrRuntimeUnavailable, err)
	}
	return nil
}

// ImageExists reports whether image is present locally.
func (r *Runtime) ImageExists(ctx context.Context, image string) (bool, error) {
	res, err := r.run(ctx, "image", "inspect", image)
	if err != nil {
		return false, err
	}
	return res.ExitCode == 0, nil
}

// Build builds image from the files in buildContext, which must contain a
// Dockerfile at its root.
func (r *Runtime) Build(ctx context.Context, image string, buildContext fs.FS) error {
	dir, err := os.MkdirTemp("", "unsus-build-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	if err := os.CopyFS(dir, buildContext); err != nil {
		return fmt.Errorf("failed to write build context: %w", err)
	}

	slog.InfoContext(ctx, "Building sandbox image", "image", image, "runtime", r.bin)
	return r.check(ctx, "build", "-t", image, dir)
}

func (r *Runtime) VolumeCreate(ctx context.Context, name string) error {
	return r.check(ctx, "volume", "create", name)
}

func (r *Runtime) VolumeRemove(ctx context.Context, name string) error {
	return r.check(ctx, "volume", "rm", "-f", name)
}

// Kill forcibly stops the named container. A container that has already
// exited is not an error.
func (r *Runtime) Kill(ctx context.Context, name string) error {
	res, err := r.run(ctx, "kill", name)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 && !strings.Contains(strings.ToLower(string(res.Stderr)), "no such container") &&
		!strings.Contains(strings.ToLower(string(res.Stderr)), "is not running") {
		return fmt.Errorf("%s kill: exit %d: %s", r.bin, res.ExitCode, strings.TrimSpace(string(res.Stderr)))
	}
	return nil
}

// Run starts a container from image, waits for it to exit and removes it.
//
// A non-zero exit status of the containerised command is reported through
// the Result, not as an error.
func (r *Runtime) Run(ctx context.Context, image string, command []string, options ...Option) (externalcmd.Result, error) {
	spec := newRunSpec(options...)
	args := spec.Args(image, command)
	return r.runner.Run(ctx, externalcmd.Command{Name: r.bin, Args: args, Output: spec.output})
}

// runSpec collects the flags for a single `run` invocation.
type runSpec struct {
	name        string
	network     string
	readOnly    bool
	mounts      []mount
	tmpfs       []tmpfs
	capDrop     []string
	capAdd      []string
	securityOpt []string
	memory      string
	cpus        string
	pidsLimit   int
	env         []string
	workdir     string
	output      io.Writer
}

type (
	Option interface{ set(*runSpec) }
	option func(*runSpec) // option implements Option.
)

func (o option) set(s *runSpec) { o(s) }

func newRunSpec(options ...Option) *runSpec {
	s := &runSpec{}
	for _, o := range options {
		o.set(s)
	}
	return s
}

// Name sets the container name, which Kill uses to address it.
func Name(name string) Option {
	return option(func(s *runSpec) { s.name = name })
}

// Network sets the network mode, e.g. "none".
func Network(mode string) Option {
	return option(func(s *runSpec) { s.network = mode })
}

// ReadOnly mounts the container's root filesystem read-only.
func ReadOnly() Option {
	return option(func(s *runSpec) { s.readOnly = true })
}

// Volume can be used to specify an additional volume map into the container.
//
// src is the path in the host, or a volume name, that will be mapped to the
// dest path.
func Volume(src, dest string) Option {
	return option(func(s *runSpec) { s.mounts = append(s.mounts, mount{src: src, dest: dest}) })
}

// ReadOnlyVolume is Volume mounted read-only.
func ReadOnlyVolume(src, dest string) Option {
	return option(func(s *runSpec) {
		s.mounts = append(s.mounts, mount{src: src, dest: dest, readOnly: true})
	})
}

// Tmpfs mounts a writable tmpfs at path. An empty size uses the runtime
// default.
func Tmpfs(path, size string) Option {
	return option(func(s *runSpec) { s.tmpfs = append(s.tmpfs, tmpfs{path: path, size: size}) })
}

func CapDrop(caps ...string) Option {
	return option(func(s *runSpec) { s.capDrop = append(s.capDrop, caps...) })
}

func CapAdd(caps ...string) Option {
	return option(func(s *runSpec) { s.capAdd = append(s.capAdd, caps...) })
}

// NoNewPrivileges prevents processes from gaining privileges via setuid.
func NoNewPrivileges() Option {
	return option(func(s *runSpec) { s.securityOpt = append(s.securityOpt, "no-new-privileges") })
}

// Limits sets the memory, cpu and process-count limits. Zero values are
// omitted.
func Limits(memory, cpus string, pids int) Option {
	return option(func(s *runSpec) {
		s.memory = memory
		s.cpus = cpus
		s.pidsLimit = pids
	})
}

// Env sets an environment variable inside the container.
func Env(key, value string) Option {
	return option(func(s *runSpec) { s.env = append(s.env, key+"="+value) })
}

func Workdir(dir string) Option {
	return option(func(s *runSpec) { s.workdir = dir })
}

// Output receives the container's stdout and stderr as they are produced.
func Output(w io.Writer) Option {
	return option(func(s *runSpec) { s.output = w })
}

// Args returns the runtime arguments that run command in image.
func (s *runSpec) Args(image string, command []string) []string {
	args := []string{"run", "--rm"}
	if s.name != "" {
		args = append(args, "--name", s.name)
	}
	if s.network != "" {
		args = append(args, "--network", s.network)
	}
	if s.readOnly {
		args = append(args, "--read-only")
	}
	for _, m := range s.mounts {
		args = append(args, m.Args()...)
	}
	for _, t := range s.tmpfs {
		args = append(args, t.Args()...)
	}
	for _, c := range s.capDrop {
		args = append(args, "--cap-drop", c)
	}
	for _, c := range s.capAdd {
		args = append(args, "--cap-add", c)
	}
	for _, o := range s.securityOpt {
		args = append(args, "--security-opt", o)
	}
	if s.memory != "" {
		args = append(args, "--memory", s.memory)
	}
	if s.cpus != "" {
		args = append(args, "--cpus", s.cpus)
	}
	if s.pidsLimit > 0 {
		args = append(args, "--pids-limit", strconv.Itoa(s.pidsLimit))
	}
	for _, e := range s.env {
		args = append(args, "-e", e)
	}
	if s.workdir != "" {
		args = append(args, "-w", s.workdir)
	}
	args = append(args, image)
	return append(args, command...)
}
