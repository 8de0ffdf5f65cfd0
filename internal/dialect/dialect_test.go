package dialect

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func names(jobs []Job) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.Name
	}
	return out
}

func TestProfileOrder(t *testing.T) {
	legacy, err := Jobs(Legacy, nil)
	if err != nil {
		t.Fatalf("Jobs(legacy): %v", err)
	}
	if diff := cmp.Diff([]string{"nvvm", "cuda", "opencl"}, names(legacy)); diff != "" {
		t.Fatalf("legacy order (-want +got):\n%s", diff)
	}

	current, err := Jobs(Current, nil)
	if err != nil {
		t.Fatalf("Jobs(current): %v", err)
	}
	if diff := cmp.Diff([]string{"ll", "nvvm", "amdgpu", "cuda", "opencl", "hls"}, names(current)); diff != "" {
		t.Fatalf("current order (-want +got):\n%s", diff)
	}
}

func TestJobsRestrictKeepsOrder(t *testing.T) {
	jobs, err := Jobs(Current, []string{"hls", "ll"})
	if err != nil {
		t.Fatalf("Jobs: %v", err)
	}
	if diff := cmp.Diff([]string{"ll", "hls"}, names(jobs)); diff != "" {
		t.Fatalf("restricted order (-want +got):\n%s", diff)
	}
	if _, err := Jobs(Legacy, []string{"hls"}); err == nil {
		t.Fatalf("expected error for dialect outside the legacy profile")
	}
}

func TestPathsAndExtensions(t *testing.T) {
	tests := map[string]string{
		"ll": "k.ll", "nvvm": "k.nvvm", "amdgpu": "k.amdgpu",
		"cuda": "k.cu", "opencl": "k.cl", "hls": "k.hls",
	}
	for name, want := range tests {
		j := jobs[name]
		if got := j.Path("k"); got != want {
			t.Errorf("%s: Path = %q, want %q", name, got, want)
		}
		if byExt, ok := ByExt(j.Ext); !ok || byExt.Name != name {
			t.Errorf("ByExt(%q) = %+v", j.Ext, byExt)
		}
	}
}

func TestParseProfile(t *testing.T) {
	if p, err := ParseProfile(""); err != nil || p != Current {
		t.Fatalf("empty profile: %v %v", p, err)
	}
	if p, err := ParseProfile("LEGACY"); err != nil || p != Legacy {
		t.Fatalf("legacy profile: %v %v", p, err)
	}
	if _, err := ParseProfile("v2"); err == nil {
		t.Fatalf("expected error for unknown profile")
	}
}
