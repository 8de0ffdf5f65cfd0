// debug prints the tree-sitter C++ parse of a patched backend file, marking
// ERROR and MISSING nodes. Use it to see which construct a -syntax finding
// comes from:
//
//	debug build/kernel.hls
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/robert-at-pretension-io/postpatch/internal/dialect"
	"github.com/robert-at-pretension-io/postpatch/internal/syntaxcheck"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "Usage: debug <file.cu|file.hls>")
		os.Exit(1)
	}
	path := os.Args[1]

	job, ok := dialect.ByExt(filepath.Ext(path))
	if !ok || !syntaxcheck.Supports(job.Name) {
		fmt.Fprintf(os.Stderr, "Error: %s is not CUDA or HLS output\n", path)
		os.Exit(1)
	}

	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := syntaxcheck.New().Dump(context.Background(), job.Name, source, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
