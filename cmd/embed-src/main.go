// embed-src writes source files as a C byte array for compiling into a host
// binary, e.g. the JIT runtime sources:
//
//	embed-src -symbol runtime_srcs -o runtime_srcs.inc a.impala b.impala
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/robert-at-pretension-io/postpatch/internal/bytearray"
)

func main() {
	symbol := flag.String("symbol", "", "name of the generated array (required)")
	output := flag.String("output", "", "write the array to file (default: stdout)")
	flag.StringVar(output, "o", "", "write the array to file (shorthand)")
	flag.Parse()

	args := flag.Args()
	if *symbol == "" || len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: embed-src -symbol name [-o file] <file>...")
		os.Exit(1)
	}

	var srcs []io.Reader
	for _, path := range args {
		f, err := os.Open(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		srcs = append(srcs, f)
	}

	if *output == "" {
		if err := bytearray.WriteArray(os.Stdout, *symbol, srcs...); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := writeFile(*output, *symbol, srcs); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", *output, err)
		os.Exit(1)
	}
}

func writeFile(path, symbol string, srcs []io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := bytearray.WriteArray(f, symbol, srcs...); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
