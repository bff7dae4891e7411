package staticanalysis

import (
	"context"
	"fmt"
	"testing"

	"github.com/AnishDe12020/unsus/pkg/api/finding"
	"github.com/AnishDe12020/unsus/pkg/api/ioc"
)

const testManifest = `{
  "name": "demo",
  "version": "1.0.0",
  "scripts": {
    "postinstall": "node setup.js"
  }
}
`

func hasFinding(findings []finding.Finding, typ finding.Type, file string) bool {
	for _, f := range findings {
		if f.Type == typ && f.File == file {
			return true
		}
	}
	return false
}

func loadTestPackage(t *testing.T, files map[string]string) *Package {
	t.Helper()
	root := t.TempDir()
	writeFiles(t, root, files)
	pkg, err := LoadPackage(context.Background(), root)
	if err != nil {
		t.Fatalf("LoadPackage() error = %v", err)
	}
	return pkg
}

func TestAnalyze(t *testing.T) {
	pkg := loadTestPackage(t, map[string]string{
		"package.json": testManifest,
		"setup.js":     "eval(payload);\nfetch('http://evil.test/x');\n",
		"setup.min.js": "eval(other);\n",
		"native/xmrig": "\x7fELF\x02\x01\x01\x00",
	})

	result, err := Analyze(context.Background(), pkg, AllTasks(), DefaultConfig())
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	wants := []struct {
		typ  finding.Type
		file string
	}{
		{finding.Eval, "setup.js"},
		{finding.Network, "setup.js"},
		{finding.InstallScript, ManifestName},
		{finding.BinarySuspicious, "native/xmrig"},
		{finding.Cryptominer, "native/xmrig"},
	}
	for _, want := range wants {
		if !hasFinding(result.Findings, want.typ, want.file) {
			t.Errorf("Analyze() findings = %v; want %s in %s", result.Findings, want.typ, want.file)
		}
	}
	if hasFinding(result.Findings, finding.Eval, "setup.min.js") {
		t.Errorf("Analyze() reported minified duplicate setup.min.js")
	}

	foundURL := false
	for _, i := range result.IOCs {
		if i.Type == ioc.URL && i.Value == "http://evil.test/x" {
			foundURL = true
		}
	}
	if !foundURL {
		t.Errorf("Analyze() IOCs = %v; want url http://evil.test/x", result.IOCs)
	}

	if result.Manifest == nil || result.Manifest.Name != "demo" {
		t.Errorf("Analyze() Manifest = %v; want name demo", result.Manifest)
	}
}

func TestAnalyzeTypeScriptPackage(t *testing.T) {
	files := map[string]string{
		"package.json": `{"name": "typed-helpers", "version": "2.0.0", "types": "types/index.d.ts"}`,
		"index.js":     "module.exports = require('./lib');\n",
		"src/index.ts": "const cmd: string = process.env.NPM_TOKEN as string;\neval(cmd);\nrequire('child_process').execSync(cmd);\n",
	}
	for i := 0; i < 60; i++ {
		files[fmt.Sprintf("types/mod%d.d.ts", i)] = "export declare function f(a: number): string;\n"
	}
	pkg := loadTestPackage(t, files)

	result, err := Analyze(context.Background(), pkg, []Task{Behavior}, DefaultConfig())
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	for _, f := range result.Findings {
		if f.Type == finding.ParseError {
			t.Errorf("Analyze() reported %v; want no parse errors", f)
		}
	}
	for _, typ := range []finding.Type{finding.EnvAccessSensitive, finding.Eval, finding.ChildProcess, finding.Exec} {
		if !hasFinding(result.Findings, typ, "src/index.ts") {
			t.Errorf("Analyze() findings = %v; want %s in src/index.ts", result.Findings, typ)
		}
	}
}

func TestAnalyzeManifestError(t *testing.T) {
	pkg := loadTestPackage(t, map[string]string{
		"package.json": `{"name": `,
		"index.js":     "1;\n",
	})

	result, err := Analyze(context.Background(), pkg, []Task{Metadata}, DefaultConfig())
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(result.Findings) != 1 || result.Findings[0].Type != finding.ManifestError {
		t.Errorf("Analyze() findings = %v; want one %s", result.Findings, finding.ManifestError)
	}
	if result.Manifest != nil {
		t.Errorf("Analyze() Manifest = %v; want nil", result.Manifest)
	}
}

func TestAnalyzeUnknownTask(t *testing.T) {
	pkg := &Package{}
	if _, err := Analyze(context.Background(), pkg, []Task{"bogus"}, DefaultConfig()); err == nil {
		t.Errorf("Analyze() error = nil; want error for unknown task")
	}
}

func TestTaskFromString(t *testing.T) {
	for _, task := range AllTasks() {
		if got, ok := TaskFromString(string(task)); !ok || got != task {
			t.Errorf("TaskFromString(%q) = %v, %v; want %v, true", task, got, ok, task)
		}
	}
	if _, ok := TaskFromString("basic"); ok {
		t.Errorf("TaskFromString(basic) ok = true; want false")
	}
}
