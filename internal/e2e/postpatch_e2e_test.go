package e2e

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/robert-at-pretension-io/postpatch/internal/driver"
	"github.com/robert-at-pretension-io/postpatch/internal/policy"
)

var backendExts = []string{".ll", ".cl", ".hls", ".cu"}

type runOutput struct {
	Report driver.Report  `json:"report"`
	Audit  *policy.Result `json:"audit"`
}

func TestPostpatchE2E_Testdata(t *testing.T) {
	repoRoot := findRepoRoot(t)
	bin := buildBinary(t, repoRoot, "postpatch")

	work := t.TempDir()
	base := filepath.Join(work, "kernel")
	copyFixtures(t, repoRoot, base)
	env := isolatedEnv(t)

	outputs := runJSON(t, bin, work, env, base)
	if len(outputs) != 1 {
		t.Fatalf("expected one report, got %d", len(outputs))
	}
	report := outputs[0].Report
	if report.Summary.Patched != 4 || report.Summary.Skipped != 2 {
		t.Fatalf("unexpected summary %+v", report.Summary)
	}

	wantDir := filepath.Join(repoRoot, "internal", "e2e", "testdata", "want")
	for _, ext := range backendExts {
		want := readFile(t, filepath.Join(wantDir, "kernel"+ext))
		if diff := cmp.Diff(want, readFile(t, base+ext)); diff != "" {
			t.Errorf("kernel%s mismatch (-want +got):\n%s", ext, diff)
		}
	}

	audit := outputs[0].Audit
	if audit == nil || len(audit.Violations) != 1 || audit.Violations[0].Rule != "cuda_channel_dropped" {
		t.Fatalf("expected only the CUDA channel drop notice, got %+v", audit)
	}

	// a second pass over patched output changes nothing
	outputs = runJSON(t, bin, work, env, base)
	if n := outputs[0].Report.Summary.Constructs; n != 0 {
		t.Fatalf("second pass matched %d constructs", n)
	}
	for _, ext := range backendExts {
		want := readFile(t, filepath.Join(wantDir, "kernel"+ext))
		if diff := cmp.Diff(want, readFile(t, base+ext)); diff != "" {
			t.Errorf("kernel%s changed on second pass (-want +got):\n%s", ext, diff)
		}
	}
}

func TestPostpatchE2E_ContractErrorExitCode(t *testing.T) {
	repoRoot := findRepoRoot(t)
	bin := buildBinary(t, repoRoot, "postpatch")

	work := t.TempDir()
	base := filepath.Join(work, "kernel")
	bad := "declare i32 @magic_p_id(i64)\n"
	if err := os.WriteFile(base+".ll", []byte(bad), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cmd := exec.Command(bin, "-q", base)
	cmd.Dir = work
	cmd.Env = isolatedEnv(t)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err == nil {
		t.Fatalf("expected non-zero exit for a magic ID type mismatch")
	}
	if !strings.Contains(stderr.String(), "magic_p_id") {
		t.Fatalf("stderr should name the failing function:\n%s", stderr.String())
	}
	if readFile(t, base+".ll") != bad {
		t.Fatalf("failed file must be left untouched")
	}
}

func TestPostpatchE2E_ContractErrorStopsLaterBases(t *testing.T) {
	repoRoot := findRepoRoot(t)
	bin := buildBinary(t, repoRoot, "postpatch")

	for _, tt := range []struct {
		name        string
		config      string
		wantPatched bool
	}{
		{name: "default", wantPatched: false},
		{name: "continue", config: `{"continueOnContractError": true}`, wantPatched: true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			work := t.TempDir()
			bad := filepath.Join(work, "bad")
			if err := os.WriteFile(bad+".ll", []byte("declare i32 @magic_p_id(i64)\n"), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			good := filepath.Join(work, "kernel")
			copyFixtures(t, repoRoot, good)
			if tt.config != "" {
				if err := os.WriteFile(filepath.Join(work, "postpatch.json"), []byte(tt.config), 0o644); err != nil {
					t.Fatalf("write config: %v", err)
				}
			}

			cmd := exec.Command(bin, "-q", bad, good)
			cmd.Dir = work
			cmd.Env = isolatedEnv(t)
			var stderr bytes.Buffer
			cmd.Stderr = &stderr
			if err := cmd.Run(); err == nil {
				t.Fatalf("expected non-zero exit for a magic ID type mismatch")
			}

			genDir := filepath.Join(repoRoot, "internal", "e2e", "testdata", "gen")
			wantDir := genDir
			if tt.wantPatched {
				wantDir = filepath.Join(repoRoot, "internal", "e2e", "testdata", "want")
			}
			for _, ext := range backendExts {
				want := readFile(t, filepath.Join(wantDir, "kernel"+ext))
				if diff := cmp.Diff(want, readFile(t, good+ext)); diff != "" {
					t.Errorf("kernel%s (-want +got):\n%s\nstderr:\n%s", ext, diff, stderr.String())
				}
			}
		})
	}
}

func TestEmbedSrcE2E(t *testing.T) {
	repoRoot := findRepoRoot(t)
	bin := buildBinary(t, repoRoot, "embed-src")

	work := t.TempDir()
	src := filepath.Join(work, "a.impala")
	if err := os.WriteFile(src, []byte("fn"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := filepath.Join(work, "srcs.inc")

	cmd := exec.Command(bin, "-symbol", "runtime_srcs", "-o", out, src)
	if msg, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("embed-src failed: %v\n%s", err, msg)
	}
	want := "extern const char runtime_srcs[] = {\n102, 110, 0 };\n"
	if got := readFile(t, out); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func runJSON(t *testing.T, bin, dir string, env []string, args ...string) []runOutput {
	t.Helper()

	cmd := exec.Command(bin, append([]string{"-json", "-q"}, args...)...)
	cmd.Dir = dir
	cmd.Env = env
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		t.Fatalf("postpatch failed: %v\nstderr:\n%s", err, stderr.String())
	}

	var outputs []runOutput
	if err := json.Unmarshal(stdout.Bytes(), &outputs); err != nil {
		t.Fatalf("parse JSON output: %v\nstdout:\n%s", err, stdout.String())
	}
	return outputs
}

func isolatedEnv(t *testing.T) []string {
	t.Helper()
	home := t.TempDir()
	var env []string
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "POSTPATCH_") {
			continue
		}
		env = append(env, kv)
	}
	return append(env,
		"HOME="+home,
		"XDG_CONFIG_HOME="+filepath.Join(home, ".config"),
	)
}

func copyFixtures(t *testing.T, repoRoot, base string) {
	t.Helper()
	genDir := filepath.Join(repoRoot, "internal", "e2e", "testdata", "gen")
	for _, ext := range backendExts {
		data := readFile(t, filepath.Join(genDir, "kernel"+ext))
		if err := os.WriteFile(base+ext, []byte(data), 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func buildBinary(t *testing.T, repoRoot, name string) string {
	t.Helper()
	binPath := filepath.Join(t.TempDir(), name)
	cmd := exec.Command("go", "build", "-o", binPath, "./cmd/"+name)
	cmd.Dir = repoRoot
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("build %s failed: %v\n%s", name, err, string(out))
	}
	return binPath
}

func findRepoRoot(t *testing.T) string {
	t.Helper()
	start, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}

	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("repo root not found from %s", start)
		}
		dir = parent
	}
}
