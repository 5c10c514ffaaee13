package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testBundle = `{
	"version": 1,
	"entry": ["main.js"],
	"modules": {
		"main.js": ["function(require, module, exports) { console.log('hello', require('./greet').name); }", {"./greet": "greet.js"}],
		"greet.js": ["function(require, module, exports) { exports.name = 'v1'; }", {}]
	}
}`

const testDiff = `{
	"from": 1,
	"to": 2,
	"modules": {
		"greet.js": ["function(require, module, exports) { exports.name = 'v2'; }", {}]
	}
}`

func executeCommand(args ...string) (string, error) {
	root := newRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func bundleServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/app/bundle.json":
			w.Write([]byte(testBundle))
		case "/app/diff/1.json":
			w.Write([]byte(testDiff))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCLIHelp(t *testing.T) {
	output, err := executeCommand("--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedPhrases := []string{
		"deltabundle",
		"run",
		"inspect",
		"invalidate",
		"apply",
		"--config",
		"--log-mode",
		"--trace",
		"--source-url",
		"--backend",
	}

	for _, phrase := range expectedPhrases {
		if !strings.Contains(output, phrase) {
			t.Errorf("help output should contain %q", phrase)
		}
	}
}

func TestCLIRunHelp(t *testing.T) {
	output, err := executeCommand("run", "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedPhrases := []string{
		"--sandbox-wasm",
		"--timeout",
		"--kv",
		"--allow-host",
		"--memory",
		"--diff-url",
	}

	for _, phrase := range expectedPhrases {
		if !strings.Contains(output, phrase) {
			t.Errorf("run help output should contain %q", phrase)
		}
	}
}

func TestCLIRunRequiresSource(t *testing.T) {
	_, err := executeCommand("run")
	if err == nil || !strings.Contains(err.Error(), "source URL is required") {
		t.Fatalf("expected missing source error, got %v", err)
	}
}

func TestCLIUnknownBackend(t *testing.T) {
	_, err := executeCommand("inspect", "--backend", "etcd")
	if err == nil || !strings.Contains(err.Error(), "unknown storage backend") {
		t.Fatalf("expected backend error, got %v", err)
	}
}

func TestCLIRunInspectInvalidate(t *testing.T) {
	srv := bundleServer(t)
	cacheDir := t.TempDir()
	common := []string{
		"--source-url", srv.URL + "/app/bundle.json",
		"--diff-url", srv.URL + "/app/diff/%v.json",
		"--backend", "file",
		"--cache-dir", cacheDir,
		"--log-mode", "prod",
	}

	// First run: cache miss, full bundle.
	output, err := executeCommand(append([]string{"run"}, common...)...)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if !strings.Contains(output, "hello v1") {
		t.Errorf("first run output = %q, want it to contain %q", output, "hello v1")
	}

	// Second run: diff since version 1.
	output, err = executeCommand(append([]string{"run"}, common...)...)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !strings.Contains(output, "hello v2") {
		t.Errorf("second run output = %q, want it to contain %q", output, "hello v2")
	}

	output, err = executeCommand(append([]string{"inspect"}, common...)...)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	for _, phrase := range []string{"version: 2", "entry:   main.js", "modules: 2", "main.js (./greet -> greet.js)", "greet.js"} {
		if !strings.Contains(output, phrase) {
			t.Errorf("inspect output should contain %q, got:\n%s", phrase, output)
		}
	}

	output, err = executeCommand(append([]string{"inspect", "--json"}, common...)...)
	if err != nil {
		t.Fatalf("inspect --json: %v", err)
	}
	if !strings.Contains(output, `"version":2`) {
		t.Errorf("inspect --json output = %q", output)
	}

	if _, err := executeCommand(append([]string{"invalidate"}, common...)...); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	output, err = executeCommand(append([]string{"inspect"}, common...)...)
	if err != nil {
		t.Fatalf("inspect after invalidate: %v", err)
	}
	if !strings.Contains(output, "no cached bundle") {
		t.Errorf("inspect after invalidate = %q", output)
	}
}

func TestCLIConfigFile(t *testing.T) {
	srv := bundleServer(t)
	dir := t.TempDir()
	cacheDir := filepath.Join(dir, "cache")
	cfgPath := writeFile(t, dir, "deltabundle.yaml", `
source:
  url: `+srv.URL+`/app/bundle.json
storage:
  backend: file
  dir: `+cacheDir+`
  key: from-file
log:
  mode: prod
`)

	if _, err := executeCommand("run", "--config", cfgPath); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cacheDir, "from-file.json")); err != nil {
		t.Errorf("expected bundle cached under the configured key: %v", err)
	}

	// Flags override the file.
	output, err := executeCommand("inspect", "--config", cfgPath, "--storage-key", "other")
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if !strings.Contains(output, "no cached bundle") {
		t.Errorf("inspect with overridden key = %q", output)
	}
}

func TestCLIConfigFileUnknownField(t *testing.T) {
	cfgPath := writeFile(t, t.TempDir(), "bad.yaml", "storage:\n  backnd: file\n")
	if _, err := executeCommand("inspect", "--config", cfgPath); err == nil {
		t.Fatal("expected error for unknown config field")
	}
}

func TestCLIApply(t *testing.T) {
	dir := t.TempDir()
	base := writeFile(t, dir, "bundle.json", testBundle)
	diff := writeFile(t, dir, "diff.json", testDiff)

	output, err := executeCommand("apply", base, diff)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !strings.Contains(output, `"version":2`) {
		t.Errorf("apply output should carry the target version, got %q", output)
	}
	if !strings.Contains(output, "exports.name = 'v2'") {
		t.Errorf("apply output should carry the updated module, got %q", output)
	}
	if strings.Contains(output, "'v1'") {
		t.Errorf("apply output should not carry the replaced module, got %q", output)
	}

	out := filepath.Join(dir, "out.json")
	if _, err := executeCommand("apply", base, diff, "-o", out); err != nil {
		t.Fatalf("apply -o: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.Contains(string(data), `"version":2`) {
		t.Errorf("written output = %q", data)
	}
}

func TestCLIApplyVersionMismatch(t *testing.T) {
	dir := t.TempDir()
	base := writeFile(t, dir, "bundle.json", testBundle)
	diff := writeFile(t, dir, "diff.json", `{"from": 7, "to": 8, "modules": {}}`)

	_, err := executeCommand("apply", base, diff)
	if err == nil || !strings.Contains(err.Error(), "does not apply") {
		t.Fatalf("expected version mismatch error, got %v", err)
	}
}

func TestCLIApplyRejectsDiffAsBase(t *testing.T) {
	dir := t.TempDir()
	diff := writeFile(t, dir, "diff.json", testDiff)

	_, err := executeCommand("apply", diff, diff)
	if err == nil || !strings.Contains(err.Error(), "not a full bundle") {
		t.Fatalf("expected base error, got %v", err)
	}
}

func TestCLIApplyArgs(t *testing.T) {
	if _, err := executeCommand("apply", "only-one.json"); err == nil {
		t.Fatal("expected error for missing diff argument")
	}
}
