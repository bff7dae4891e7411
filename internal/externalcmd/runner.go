// Package externalcmd runs external programs (npm, docker, podman) behind an
// interface so that callers can be tested without spawning processes.
package externalcmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"
)

const (
	// ExitTimeout is the exit code reported when the context deadline expired,
	// following the convention of timeout(1).
	ExitTimeout = 124

	// ExitNotFound is the exit code reported when the program does not exist.
	ExitNotFound = 127

	// waitDelay bounds how long Run waits for output pipes after the process
	// was killed.
	waitDelay = 2 * time.Second
)

// ErrNotFound is returned when the program could not be located.
var ErrNotFound = errors.New("command not found")

// Command describes one process invocation.
type Command struct {
	Name string
	Args []string
	Dir  string

	// Stdin, if set, is fed to the process.
	Stdin io.Reader

	// Output, if set, also receives stdout and stderr as they are produced.
	Output io.Writer
}

func (c Command) String() string {
	return fmt.Sprintf("%s %v", c.Name, c.Args)
}

// Result holds the outcome of a finished command.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
	TimedOut bool
}

// Success reports whether the command ran to completion with exit code 0.
func (r Result) Success() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// Runner executes commands.
//
// Run returns an error only when the command could not be started. A non-zero
// exit status is reported through Result.ExitCode, and an expired context
// through Result.TimedOut.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, cmd Command) (Result, error)

func (f RunnerFunc) Run(ctx context.Context, cmd Command) (Result, error) {
	return f(ctx, cmd)
}

// Exec is the Runner backed by os/exec.
type Exec struct{}

func (Exec) Run(ctx context.Context, c Command) (Result, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Stdin = c.Stdin
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if c.Output != nil {
		cmd.Stdout = io.MultiWriter(&stdout, c.Output)
		cmd.Stderr = io.MultiWriter(&stderr, c.Output)
	}

	slog.DebugContext(ctx, "running command", "command", c.Name, "args", c.Args)

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.ExitCode = ExitTimeout
		res.TimedOut = true
	case errors.Is(err, exec.ErrNotFound):
		res.ExitCode = ExitNotFound
		return res, fmt.Errorf("%w: %s", ErrNotFound, c.Name)
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return res, fmt.Errorf("failed to run %s: %w", c.Name, err)
	}

	slog.DebugContext(ctx, "command finished", "command", c.Name,
		"exit_code", res.ExitCode, "timed_out", res.TimedOut, "duration", res.Duration)
	return res, nil
}

// Available reports whether the named program can be found in PATH.
func Available(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
