package sandbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"testing/fstest"

	"github.com/AnishDe12020/unsus/internal/externalcmd"
)

type recorder struct {
	cmds    []externalcmd.Command
	results map[string]externalcmd.Result
	err     error
	onRun   func(externalcmd.Command)
}

func (r *recorder) Run(_ context.Context, cmd externalcmd.Command) (externalcmd.Result, error) {
	r.cmds = append(r.cmds, cmd)
	if r.onRun != nil {
		r.onRun(cmd)
	}
	if r.err != nil {
		return externalcmd.Result{ExitCode: externalcmd.ExitNotFound}, r.err
	}
	return r.results[cmd.Args[0]], nil
}

func TestRunSpecArgs(t *testing.T) {
	spec := newRunSpec(
		Name("unsus-exec-1"),
		Network("none"),
		ReadOnly(),
		Volume("unsus-ws-1", "/workspace"),
		ReadOnlyVolume("/src/pkg", "/package"),
		Tmpfs("/tmp", "64m"),
		CapDrop("ALL"),
		CapAdd("SYS_PTRACE"),
		NoNewPrivileges(),
		Limits("512m", "1", 256),
		Env("HOOK_TIMEOUT", "30"),
		Workdir("/workspace"),
	)
	got := spec.Args("unsus-sandbox:latest", []string{"/usr/local/bin/execute.sh"})
	want := []string{
		"run", "--rm",
		"--name", "unsus-exec-1",
		"--network", "none",
		"--read-only",
		"-v", "unsus-ws-1:/workspace",
		"-v", "/src/pkg:/package:ro",
		"--tmpfs", "/tmp:rw,size=64m",
		"--cap-drop", "ALL",
		"--cap-add", "SYS_PTRACE",
		"--security-opt", "no-new-privileges",
		"--memory", "512m",
		"--cpus", "1",
		"--pids-limit", "256",
		"-e", "HOOK_TIMEOUT=30",
		"-w", "/workspace",
		"unsus-sandbox:latest",
		"/usr/local/bin/execute.sh",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Args() = %v; want %v", got, want)
	}
}

func TestRunSpecArgsMinimal(t *testing.T) {
	got := newRunSpec().Args("img", nil)
	want := []string{"run", "--rm", "img"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Args() = %v; want %v", got, want)
	}
}

func TestImageExists(t *testing.T) {
	tests := []struct {
		name string
		exit int
		want bool
	}{
		{name: "present", exit: 0, want: true},
		{name: "absent", exit: 1, want: false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			rec := &recorder{results: map[string]externalcmd.Result{"image": {ExitCode: test.exit}}}
			rt := New(Podman, rec)
			got, err := rt.ImageExists(context.Background(), "img")
			if err != nil {
				t.Fatalf("ImageExists() error = %v", err)
			}
			if got != test.want {
				t.Errorf("ImageExists() = %v; want %v", got, test.want)
			}
			if rec.cmds[0].Name != Podman {
				t.Errorf("command = %q; want %q", rec.cmds[0].Name, Podman)
			}
		})
	}
}

func TestPingUnavailable(t *testing.T) {
	rec := &recorder{err: externalcmd.ErrNotFound}
	err := New(Docker, rec).Ping(context.Background())
	if !errors.Is(err, ErrRuntimeUnavailable) {
		t.Errorf("Ping() error = %v; want %v", err, ErrRuntimeUnavailable)
	}

	rec = &recorder{results: map[string]externalcmd.Result{"version": {ExitCode: 1, Stderr: []byte("daemon not running")}}}
	err = New(Docker, rec).Ping(context.Background())
	if !errors.Is(err, ErrRuntimeUnavailable) {
		t.Errorf("Ping() error = %v; want %v", err, ErrRuntimeUnavailable)
	}
}

func TestBuildWritesContext(t *testing.T) {
	files := fstest.MapFS{
		"Dockerfile":         {Data: []byte("FROM node:20-slim\n")},
		"scripts/execute.sh": {Data: []byte("#!/bin/sh\n")},
	}
	var seen []string
	rec := &recorder{onRun: func(cmd externalcmd.Command) {
		dir := cmd.Args[len(cmd.Args)-1]
		for _, name := range []string{"Dockerfile", "scripts/execute.sh"} {
			if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
				seen = append(seen, name)
			}
		}
	}}
	if err := New(Docker, rec).Build(context.Background(), "img", files); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	want := []string{"Dockerfile", "scripts/execute.sh"}
	if !reflect.DeepEqual(seen, want) {
		t.Errorf("build context = %v; want %v", seen, want)
	}
	if got := rec.cmds[0].Args[:3]; !reflect.DeepEqual(got, []string{"build", "-t", "img"}) {
		t.Errorf("build args = %v", got)
	}
}

func TestBuildFailure(t *testing.T) {
	rec := &recorder{results: map[string]externalcmd.Result{"build": {ExitCode: 1, Stderr: []byte("boom")}}}
	err := New(Docker, rec).Build(context.Background(), "img", fstest.MapFS{"Dockerfile": {}})
	if err == nil {
		t.Errorf("Build() error = nil; want error")
	}
}

func TestKill(t *testing.T) {
	tests := []struct {
		name    string
		result  externalcmd.Result
		wantErr bool
	}{
		{name: "killed", result: externalcmd.Result{}},
		{name: "already gone", result: externalcmd.Result{ExitCode: 1, Stderr: []byte("Error: No such container: x")}},
		{name: "not running", result: externalcmd.Result{ExitCode: 1, Stderr: []byte("container x is not running")}},
		{name: "failed", result: externalcmd.Result{ExitCode: 125, Stderr: []byte("permission denied")}, wantErr: true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			rec := &recorder{results: map[string]externalcmd.Result{"kill": test.result}}
			err := New(Docker, rec).Kill(context.Background(), "x")
			if (err != nil) != test.wantErr {
				t.Errorf("Kill() error = %v; wantErr %v", err, test.wantErr)
			}
		})
	}
}

func TestVolumeLifecycle(t *testing.T) {
	rec := &recorder{}
	rt := New(Docker, rec)
	ctx := context.Background()
	if err := rt.VolumeCreate(ctx, "ws"); err != nil {
		t.Fatalf("VolumeCreate() error = %v", err)
	}
	if err := rt.VolumeRemove(ctx, "ws"); err != nil {
		t.Fatalf("VolumeRemove() error = %v", err)
	}
	want := [][]string{{"volume", "create", "ws"}, {"volume", "rm", "-f", "ws"}}
	for i, cmd := range rec.cmds {
		if !reflect.DeepEqual(cmd.Args, want[i]) {
			t.Errorf("command %d = %v; want %v", i, cmd.Args, want[i])
		}
	}
}
