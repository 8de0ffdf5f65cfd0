package config

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestResolveBasesPlainArguments(t *testing.T) {
	bases, err := ResolveBases([]string{"build/kernel", "build/kernel.cl", "build/other.nvvm", "notes.txt"})
	if err != nil {
		t.Fatalf("ResolveBases: %v", err)
	}
	want := []string{"build/kernel", "build/other", "notes.txt"}
	if diff := cmp.Diff(want, bases); diff != "" {
		t.Fatalf("bases (-want +got):\n%s", diff)
	}
}

func TestResolveBasesGlob(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "a.cl"), "")
	write(t, filepath.Join(root, "a.cu"), "")
	write(t, filepath.Join(root, "b.nvvm"), "")
	write(t, filepath.Join(root, "readme.md"), "")

	bases, err := ResolveBases([]string{filepath.Join(root, "*")})
	if err != nil {
		t.Fatalf("ResolveBases: %v", err)
	}
	want := []string{filepath.Join(root, "a"), filepath.Join(root, "b")}
	if diff := cmp.Diff(want, bases); diff != "" {
		t.Fatalf("bases (-want +got):\n%s", diff)
	}
}

func TestResolveBasesDoubleStar(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "x", "gen", "k.hls"), "")
	write(t, filepath.Join(root, "y", "k.hls"), "")
	write(t, filepath.Join(root, "y", "gen", "k.ll"), "")

	bases, err := ResolveBases([]string{filepath.Join(root, "**", "*.hls")})
	if err != nil {
		t.Fatalf("ResolveBases: %v", err)
	}
	want := []string{filepath.Join(root, "x", "gen", "k"), filepath.Join(root, "y", "k")}
	if diff := cmp.Diff(want, bases); diff != "" {
		t.Fatalf("bases (-want +got):\n%s", diff)
	}

	bases, err = ResolveBases([]string{filepath.Join(root, "**", "gen", "*")})
	if err != nil {
		t.Fatalf("ResolveBases: %v", err)
	}
	want = []string{filepath.Join(root, "x", "gen", "k"), filepath.Join(root, "y", "gen", "k")}
	if diff := cmp.Diff(want, bases); diff != "" {
		t.Fatalf("nested bases (-want +got):\n%s", diff)
	}
}

func TestBaseName(t *testing.T) {
	tests := map[string]string{
		"k.ll": "k", "k.amdgpu": "k", "k.cu": "k", "dir/k.hls": "dir/k", "k": "k", "k.v2": "k.v2",
	}
	for in, want := range tests {
		if got := BaseName(in); got != want {
			t.Errorf("BaseName(%q) = %q, want %q", in, got, want)
		}
	}
}
