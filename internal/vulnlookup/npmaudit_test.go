package vulnlookup

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/AnishDe12020/unsus/internal/externalcmd"
	"github.com/AnishDe12020/unsus/pkg/api/finding"
)

const auditOutput = `{
  "auditReportVersion": 2,
  "vulnerabilities": {
    "minimist": {
      "name": "minimist",
      "severity": "critical",
      "isDirect": false,
      "via": [
        {"source": 1084, "name": "minimist", "title": "Prototype Pollution", "severity": "critical"},
        {"source": 1085, "name": "minimist", "title": "Prototype Pollution", "severity": "critical"}
      ],
      "nodes": ["node_modules/minimist"]
    },
    "mkdirp": {
      "name": "mkdirp",
      "severity": "moderate",
      "isDirect": true,
      "via": ["minimist"],
      "nodes": ["node_modules/mkdirp"]
    }
  },
  "metadata": {
    "vulnerabilities": {"info": 0, "low": 0, "moderate": 1, "high": 0, "critical": 1, "total": 2}
  }
}`

func TestParseReport(t *testing.T) {
	got, err := ParseReport([]byte(auditOutput))
	if err != nil {
		t.Fatalf("ParseReport() error = %v", err)
	}
	want := &Report{
		Counts: map[string]int{"info": 0, "low": 0, "moderate": 1, "high": 0, "critical": 1},
		Total:  2,
		Dependencies: []Dependency{
			{Name: "minimist", Severity: "critical", Titles: []string{"Prototype Pollution"}, Path: "node_modules/minimist"},
			{Name: "mkdirp", Severity: "moderate", Direct: true, Titles: []string{"minimist"}, Path: "node_modules/mkdirp"},
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseReport() = %+v; want %+v", got, want)
	}
}

func TestParseReportInvalid(t *testing.T) {
	for _, input := range []string{"", "npm ERR! code ENOLOCK", `{"error": {"code": "ENOLOCK"}}`} {
		if _, err := ParseReport([]byte(input)); err == nil {
			t.Errorf("ParseReport(%q) error = nil; want error", input)
		}
	}
}

func TestReportFindings(t *testing.T) {
	r, err := ParseReport([]byte(auditOutput))
	if err != nil {
		t.Fatal(err)
	}
	want := []finding.Finding{
		{
			Type:     finding.NPMAudit,
			Severity: finding.Info,
			Message:  "npm audit reports 2 vulnerabilities (1 critical, 1 moderate)",
			File:     LockfileName,
		},
		{
			Type:     finding.KnownCVE,
			Severity: finding.Critical,
			Message:  "minimist has a critical severity vulnerability: Prototype Pollution",
			File:     "node_modules/minimist",
		},
		{
			Type:     finding.KnownCVE,
			Severity: finding.Warning,
			Message:  "mkdirp has a moderate severity vulnerability: minimist",
			File:     "node_modules/mkdirp",
		},
	}
	if got := r.Findings(); !reflect.DeepEqual(got, want) {
		t.Errorf("Findings() = %v; want %v", got, want)
	}

	clean := &Report{Counts: map[string]int{}}
	if got := clean.Findings(); got != nil {
		t.Errorf("Findings() on a clean report = %v; want nil", got)
	}
}

// fakeNPM records the npm invocations and replies with canned audit output.
// Lockfile generation writes a lockfile into the working directory, as npm
// does.
type fakeNPM struct {
	calls [][]string
	dirs  []string
	audit externalcmd.Result
	err   error
}

func (f *fakeNPM) Run(_ context.Context, cmd externalcmd.Command) (externalcmd.Result, error) {
	f.calls = append(f.calls, cmd.Args)
	f.dirs = append(f.dirs, cmd.Dir)
	if f.err != nil {
		return externalcmd.Result{ExitCode: externalcmd.ExitNotFound}, f.err
	}
	if cmd.Args[0] == "audit" {
		return f.audit, nil
	}
	if err := os.WriteFile(filepath.Join(cmd.Dir, LockfileName), []byte("{}"), 0o644); err != nil {
		return externalcmd.Result{ExitCode: 1}, nil
	}
	return externalcmd.Result{}, nil
}

// packageDir returns a directory holding a manifest and the named extra
// files.
func packageDir(t *testing.T, extra ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range append([]string{"package.json"}, extra...) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestLookup(t *testing.T) {
	dir := packageDir(t)
	npm := &fakeNPM{audit: externalcmd.Result{ExitCode: 1, Stdout: []byte(auditOutput)}}

	report, findings := New(npm, 0).Lookup(context.Background(), dir)
	if report == nil || report.Total != 2 {
		t.Errorf("Lookup() report = %+v; want 2 vulnerabilities", report)
	}
	if len(findings) != 3 {
		t.Errorf("Lookup() returned %d findings; want 3", len(findings))
	}

	wantCalls := [][]string{
		{"install", "--package-lock-only", "--ignore-scripts", "--no-audit", "--no-fund"},
		{"audit", "--json"},
	}
	if !reflect.DeepEqual(npm.calls, wantCalls) {
		t.Errorf("npm calls = %v; want %v", npm.calls, wantCalls)
	}
}

func TestLookupExistingLockfile(t *testing.T) {
	dir := packageDir(t, LockfileName)
	npm := &fakeNPM{audit: externalcmd.Result{Stdout: []byte(`{"vulnerabilities": {}, "metadata": {"vulnerabilities": {"total": 0}}}`)}}

	_, findings := New(npm, 0).Lookup(context.Background(), dir)
	if len(findings) != 0 {
		t.Errorf("Lookup() = %v; want no findings", findings)
	}
	if len(npm.calls) != 1 || npm.calls[0][0] != "audit" {
		t.Errorf("npm calls = %v; want only audit", npm.calls)
	}
}

func TestLookupFailures(t *testing.T) {
	tests := map[string]*fakeNPM{
		"npm missing":    {err: externalcmd.ErrNotFound},
		"timeout":        {audit: externalcmd.Result{ExitCode: externalcmd.ExitTimeout, TimedOut: true}},
		"garbage output": {audit: externalcmd.Result{ExitCode: 1, Stdout: []byte("npm ERR!")}},
	}
	for name, npm := range tests {
		t.Run(name, func(t *testing.T) {
			report, findings := New(npm, 0).Lookup(context.Background(), packageDir(t))
			if report != nil || findings != nil {
				t.Errorf("Lookup() = %v, %v; want nil, nil", report, findings)
			}
		})
	}
}

func TestLookupLeavesPackageUntouched(t *testing.T) {
	dir := packageDir(t)
	npm := &fakeNPM{audit: externalcmd.Result{ExitCode: 1, Stdout: []byte(auditOutput)}}

	if _, findings := New(npm, 0).Lookup(context.Background(), dir); len(findings) == 0 {
		t.Fatalf("Lookup() returned no findings; want audit findings")
	}
	if got, want := dirEntries(t, dir), []string{"package.json"}; !reflect.DeepEqual(got, want) {
		t.Errorf("package directory = %v; want %v", got, want)
	}
	for _, d := range npm.dirs {
		if d == dir {
			t.Errorf("npm ran in the package directory %s", dir)
		}
		if _, err := os.Stat(d); !errors.Is(err, fs.ErrNotExist) {
			t.Errorf("scratch directory %s still exists (err = %v)", d, err)
		}
	}
}

func TestLookupNoManifest(t *testing.T) {
	npm := &fakeNPM{}
	report, findings := New(npm, 0).Lookup(context.Background(), t.TempDir())
	if report != nil || findings != nil {
		t.Errorf("Lookup() = %v, %v; want nil, nil", report, findings)
	}
	if len(npm.calls) != 0 {
		t.Errorf("npm calls = %v; want none", npm.calls)
	}
}
