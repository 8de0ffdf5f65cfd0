// Package bytearray encodes files as a C byte-array initializer so runtime
// sources can be compiled into a host binary:
//
//	extern const char name[] = {
//	 35, 105, 110, ...
//	0 };
package bytearray

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
)

// PerRow is the number of byte literals on each output row
const PerRow = 10

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Encoder writes every byte it is given as a "%3d, " literal, breaking rows
// after PerRow bytes. The row position carries across writes, so several
// sources encode as one continuous array.
type Encoder struct {
	w   *bufio.Writer
	col int
}

// NewEncoder returns an Encoder writing to w. Call Flush when done.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

// Write encodes p. It reports len(p) on success.
func (e *Encoder) Write(p []byte) (int, error) {
	for i, b := range p {
		if _, err := fmt.Fprintf(e.w, "%3d, ", b); err != nil {
			return i, err
		}
		e.col++
		if e.col == PerRow {
			if err := e.w.WriteByte('\n'); err != nil {
				return i + 1, err
			}
			e.col = 0
		}
	}
	return len(p), nil
}

// Flush writes any buffered output
func (e *Encoder) Flush() error {
	return e.w.Flush()
}

// WriteArray writes a complete NUL-terminated array definition named symbol
// holding the concatenated contents of srcs.
func WriteArray(w io.Writer, symbol string, srcs ...io.Reader) error {
	if !identPattern.MatchString(symbol) {
		return fmt.Errorf("symbol %q is not a C identifier", symbol)
	}

	enc := NewEncoder(w)
	if _, err := fmt.Fprintf(enc.w, "extern const char %s[] = {\n", symbol); err != nil {
		return err
	}
	for _, src := range srcs {
		if _, err := io.Copy(enc, src); err != nil {
			return fmt.Errorf("encoding source: %w", err)
		}
	}
	if _, err := enc.w.WriteString("0 };\n"); err != nil {
		return err
	}
	return enc.Flush()
}
