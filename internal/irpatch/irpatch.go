// Package irpatch normalizes LLVM IR family output (generic, NVVM, AMDGPU):
// configured declarations are substituted, magic identity declarations become
// identity definitions, and in the legacy dialect source_filename metadata
// and unsupported function attributes are removed.
package irpatch

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/robert-at-pretension-io/postpatch/internal/linebuf"
	"github.com/robert-at-pretension-io/postpatch/internal/patterns"
)

// ContractError reports a magic identity declaration whose argument and
// return types differ. The upstream generator is defective when this happens.
type ContractError struct {
	File    string
	Func    string
	RetType string
	ArgType string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("%s: magic ID @%s: argument type %q does not match return type %q",
		e.File, e.Func, e.ArgType, e.RetType)
}

// Options configures a Normalizer
type Options struct {
	// Legacy enables source_filename suppression and attribute stripping
	Legacy bool

	// Definitions maps function names to literal replacement IR
	Definitions map[string]string

	Log logrus.FieldLogger
}

// Normalizer patches one IR file line by line into a line buffer
type Normalizer struct {
	file   string
	opts   Options
	table  patterns.Table
	attrs  patterns.Table
	buf    *linebuf.Buffer
	counts patterns.Counts
	log    logrus.FieldLogger
}

// New creates a Normalizer for the named file
func New(file string, opts Options) *Normalizer {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	n := &Normalizer{
		file:   file,
		opts:   opts,
		table:  patterns.IRTable(opts.Legacy, opts.Definitions),
		buf:    linebuf.New(),
		counts: patterns.Counts{},
		log:    log.WithField("file", file),
	}
	if opts.Legacy {
		n.attrs = patterns.AttributeTable()
	}
	return n
}

// Line consumes one input line, including its terminator
func (n *Normalizer) Line(line string) error {
	body, term := patterns.Split(line)
	m, ok := n.table.First(body)
	if !ok {
		n.buf.Append(n.stripAttributes(body) + term)
		return nil
	}

	n.counts.Add(m.Kind)
	switch m.Kind {
	case patterns.Definition:
		name := m.Group(0)
		code := n.opts.Definitions[name]
		if !strings.HasSuffix(code, "\n") {
			code += "\n"
		}
		n.log.Infof("Patching definition of %s", name)
		n.buf.Append(code)

	case patterns.MagicDecl:
		retType, name, argType := m.Group(0), m.Group(1), m.Group(2)
		if retType != argType {
			return &ContractError{File: n.file, Func: name, RetType: retType, ArgType: argType}
		}
		n.log.Infof("Patching magic ID %s", name)
		nl := eol(term)
		n.buf.Append(fmt.Sprintf("define %s @%s(%s %%name) {%s", retType, name, retType, nl))
		n.buf.Append(fmt.Sprintf("  ret %s %%name%s", retType, nl))
		n.buf.Append("}" + nl)

	case patterns.SourceFilename:
		n.log.Infof("Removing 'source_filename'")
		n.buf.Append(";" + line)
	}
	return nil
}

// stripAttributes removes attributes until no stripper fires, since several
// may be present in either order.
func (n *Normalizer) stripAttributes(body string) string {
	for {
		m, ok := n.attrs.First(body)
		if !ok {
			return body
		}
		n.counts.Add(m.Kind)
		n.log.Infof("Patching '%s'", m.Group(1))
		body = m.Group(0) + m.Group(2)
	}
}

// Finish completes the pass. IR files carry no deferred state.
func (n *Normalizer) Finish() error {
	return nil
}

// Buffer returns the patched lines
func (n *Normalizer) Buffer() *linebuf.Buffer {
	return n.buf
}

// Counts returns the constructs patched so far
func (n *Normalizer) Counts() patterns.Counts {
	return n.counts
}

func eol(term string) string {
	if term == "" {
		return "\n"
	}
	return term
}
