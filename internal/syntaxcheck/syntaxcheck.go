// Package syntaxcheck parses patched C++-family output with tree-sitter and
// reports ERROR and MISSING nodes. A finding means the rewrite produced text
// the backend compiler is likely to reject.
package syntaxcheck

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/cpp"
)

// Finding is one syntax problem in the parsed output
type Finding struct {
	Line   int    `json:"line"`
	Column int    `json:"column"`
	Kind   string `json:"kind"` // error, missing
	Text   string `json:"text,omitempty"`
}

func (f Finding) String() string {
	if f.Text == "" {
		return fmt.Sprintf("%d:%d: %s", f.Line, f.Column, f.Kind)
	}
	return fmt.Sprintf("%d:%d: %s %q", f.Line, f.Column, f.Kind, f.Text)
}

// CUDA execution-space qualifiers are not C++; they are blanked before parsing
// with spaces of equal length so reported columns stay true.
var cudaQualifiers = regexp.MustCompile(`__(?:global|device|host|shared|constant|managed|forceinline|noinline)__|__launch_bounds__\s*\([^)]*\)`)

const maxFindingText = 40

// Checker wraps a tree-sitter parser loaded with the C++ grammar
type Checker struct {
	parser *sitter.Parser
}

// New creates a Checker
func New() *Checker {
	parser := sitter.NewParser()
	parser.SetLanguage(cpp.GetLanguage())
	return &Checker{parser: parser}
}

// Supports reports whether output of the dialect can be checked. OpenCL C
// channel and kernel extensions are not C++.
func Supports(dialect string) bool {
	return dialect == "cuda" || dialect == "hls"
}

// Check parses src and returns every syntax problem in source order
func (c *Checker) Check(ctx context.Context, dialect string, src []byte) ([]Finding, error) {
	if dialect == "cuda" {
		src = maskCUDA(src)
	}

	tree, err := c.parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if !root.HasError() {
		return nil, nil
	}
	var findings []Finding
	collect(root, src, &findings)
	return findings, nil
}

func collect(node *sitter.Node, src []byte, findings *[]Finding) {
	if node == nil {
		return
	}
	pos := node.StartPoint()
	switch {
	case node.IsMissing():
		*findings = append(*findings, Finding{
			Line:   int(pos.Row) + 1,
			Column: int(pos.Column) + 1,
			Kind:   "missing",
			Text:   node.Type(),
		})
		return
	case node.IsError():
		*findings = append(*findings, Finding{
			Line:   int(pos.Row) + 1,
			Column: int(pos.Column) + 1,
			Kind:   "error",
			Text:   snippet(node.Content(src)),
		})
		return
	case !node.HasError():
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		collect(node.Child(i), src, findings)
	}
}

// Dump writes the named nodes of the parse tree, one per line and indented by
// depth. ERROR and MISSING nodes are marked so a finding can be traced to the
// construct the parser choked on.
func (c *Checker) Dump(ctx context.Context, dialect string, src []byte, w io.Writer) error {
	if dialect == "cuda" {
		src = maskCUDA(src)
	}

	tree, err := c.parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return fmt.Errorf("parsing: %w", err)
	}
	defer tree.Close()

	var walk func(n *sitter.Node, depth int) error
	walk = func(n *sitter.Node, depth int) error {
		if n.IsNamed() || n.IsMissing() || n.IsError() {
			pos := n.StartPoint()
			mark := ""
			switch {
			case n.IsMissing():
				mark = " MISSING"
			case n.IsError():
				mark = " ERROR " + fmt.Sprintf("%q", snippet(n.Content(src)))
			}
			if _, err := fmt.Fprintf(w, "%s%s [%d:%d]%s\n", strings.Repeat("  ", depth), n.Type(), pos.Row+1, pos.Column+1, mark); err != nil {
				return err
			}
			depth++
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			if err := walk(n.Child(i), depth); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(tree.RootNode(), 0)
}

func snippet(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if len(s) > maxFindingText {
		s = s[:maxFindingText] + "..."
	}
	return s
}

func maskCUDA(src []byte) []byte {
	return cudaQualifiers.ReplaceAllFunc(src, func(m []byte) []byte {
		out := make([]byte, len(m))
		for i, b := range m {
			if b == '\n' {
				out[i] = '\n'
			} else {
				out[i] = ' '
			}
		}
		return out
	})
}
