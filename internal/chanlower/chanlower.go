// Package chanlower rewrites the C-family placeholder constructs (CUDA,
// OpenCL, HLS). Channel element types are only known once the channel's
// struct closes, so declarations are emitted as placeholders and backpatched
// when the file has been consumed.
package chanlower

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/robert-at-pretension-io/postpatch/internal/linebuf"
	"github.com/robert-at-pretension-io/postpatch/internal/patterns"
)

// Pattern: <type> <field>;
var memberPattern = regexp.MustCompile(`^\s*(.+?)\s*\b([A-Za-z_]\w*)\s*;\s*$`)

// ChannelRecord tracks one channel declaration until its element type is known
type ChannelRecord struct {
	Name       string
	StructType string
	ElemType   string
	Index      int

	indent string
	term   string
}

// typedefSlot is the entry a closed channel struct left behind
type typedefSlot struct {
	structType string
	field      string
	index      int
	term       string
}

// Engine lowers channel constructs for one file
type Engine struct {
	file    string
	dialect Dialect
	table   patterns.Table
	buf     *linebuf.Buffer
	counts  patterns.Counts
	log     logrus.FieldLogger

	typedefs  map[string]*typedefSlot
	order     []string
	records   []*ChannelRecord
	lastArray string

	// reserved entries are placeholders awaiting backpatch; struct
	// blanking never touches them
	reserved map[int]bool

	unresolved []string
	finished   bool
}

// New creates an Engine for the named file
func New(file string, d Dialect, log logrus.FieldLogger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{
		file:     file,
		dialect:  d,
		table:    patterns.CFamilyTable(),
		buf:      linebuf.New(),
		counts:   patterns.Counts{},
		log:      log.WithField("file", file),
		typedefs: make(map[string]*typedefSlot),
		reserved: make(map[int]bool),
	}
}

// Line consumes one input line, including its terminator
func (e *Engine) Line(line string) error {
	body, term := patterns.Split(line)
	m, ok := e.table.First(body)
	if !ok {
		e.buf.Append(line)
		return nil
	}
	e.counts.Add(m.Kind)

	switch m.Kind {
	case patterns.Pragma:
		e.log.Debugf("Unwrapping pragma %q", m.Group(1))
		e.buf.Append(m.Group(0) + m.Group(1) + term)

	case patterns.StructChannelClose:
		return e.closeStruct(m.Group(0), term)

	case patterns.ArrayClose:
		e.lastArray = m.Group(0)
		e.buf.Append(line)

	case patterns.ChannelDecl:
		indent, structType, name := m.Group(0), m.Group(2), m.Group(3)
		idx := e.buf.Append(fmt.Sprintf("%s// channel %s (%s)%s", indent, name, structType, term))
		e.reserved[idx] = true
		e.records = append(e.records, &ChannelRecord{
			Name:       name,
			StructType: structType,
			Index:      idx,
			indent:     indent,
			term:       term,
		})
		e.log.Infof("Patching channel declaration %s", name)

	case patterns.ChannelSlot:
		// slot metadata of the placeholder struct has no backend meaning

	case patterns.ChannelRead:
		indent, prefix, v, ch := m.Group(0), m.Group(1), m.Group(2), m.Group(3)
		if e.dialect.ReadTemplate == "" {
			e.log.Debugf("Dropping read_channel(%s)", ch)
			return nil
		}
		// prefix is non-empty only when the read declares its target
		if e.dialect.SplitReadDecl && prefix != "" {
			e.buf.Append(indent + prefix + v + ";" + eol(term))
		}
		e.buf.Append(fmt.Sprintf(e.dialect.ReadTemplate, indent, prefix, v, ch) + term)
		e.log.Infof("Patching read_channel(%s)", ch)

	case patterns.ChannelWrite:
		indent, ch, v := m.Group(0), m.Group(1), m.Group(2)
		if e.dialect.WriteTemplate == "" {
			e.log.Debugf("Dropping write_channel(%s)", ch)
			return nil
		}
		e.buf.Append(fmt.Sprintf(e.dialect.WriteTemplate, indent, ch, v) + term)
		e.log.Infof("Patching write_channel(%s)", ch)

	case patterns.MagicCall:
		e.log.Infof("Patching magic ID %s", m.Group(1))
		e.buf.Append(m.Group(0) + " = " + m.Group(2) + ";" + term)
	}
	return nil
}

// closeStruct handles `} struct_channel_<suffix>;`. The member line is the
// entry just before the close; it and the struct opening are blanked, and the
// close itself becomes the slot for the typedef.
func (e *Engine) closeStruct(structType, term string) error {
	field := ""
	last := e.buf.Len() - 1
	if last >= 0 && !e.buf.IsBlank(last) {
		prev, err := e.buf.Line(last)
		if err != nil {
			return err
		}
		body, _ := patterns.Split(prev)
		if m := memberPattern.FindStringSubmatch(body); m != nil {
			field = strings.TrimSpace(m[1])
		}
	}
	if field == "" {
		field = e.lastArray
	}

	for i := e.buf.Len() - e.dialect.StructPreface; i < e.buf.Len(); i++ {
		if i < 0 || e.reserved[i] {
			continue
		}
		if err := e.buf.Blank(i); err != nil {
			return fmt.Errorf("%s: blanking struct %s: %w", e.file, structType, err)
		}
	}

	idx := e.buf.Append("} " + structType + ";" + term)
	e.reserved[idx] = true
	if prev, seen := e.typedefs[structType]; seen {
		// a redefinition replaces the earlier slot
		if err := e.buf.Blank(prev.index); err != nil {
			return fmt.Errorf("%s: blanking struct %s: %w", e.file, structType, err)
		}
		delete(e.reserved, prev.index)
	} else {
		e.order = append(e.order, structType)
	}
	e.typedefs[structType] = &typedefSlot{structType: structType, field: field, index: idx, term: term}
	return nil
}

// Finish backpatches typedefs and channel declarations. Channels whose element
// type never resolved keep their placeholder and are reported.
func (e *Engine) Finish() error {
	if e.finished {
		return nil
	}
	e.finished = true

	used := make(map[string]bool)
	for _, rec := range e.records {
		used[rec.StructType] = true
	}

	for _, structType := range e.order {
		slot := e.typedefs[structType]
		if !used[structType] || slot.field == "" {
			if err := e.buf.Blank(slot.index); err != nil {
				return fmt.Errorf("%s: %w", e.file, err)
			}
			continue
		}
		line := fmt.Sprintf("typedef %s %s;%s", slot.field, structType, eol(slot.term))
		if err := e.buf.Backpatch(slot.index, line); err != nil {
			return fmt.Errorf("%s: typedef %s: %w", e.file, structType, err)
		}
	}

	for _, rec := range e.records {
		if slot, ok := e.typedefs[rec.StructType]; ok {
			rec.ElemType = slot.field
		}
		if rec.ElemType == "" {
			e.unresolved = append(e.unresolved, rec.Name)
			e.log.Warnf("channel %s: element type of %s never resolved, leaving placeholder", rec.Name, rec.StructType)
			continue
		}
		if e.dialect.DeclareTemplate == "" {
			continue
		}
		decl := rec.indent + fmt.Sprintf(e.dialect.DeclareTemplate, rec.ElemType, rec.Name) + eol(rec.term)
		if err := e.buf.Backpatch(rec.Index, decl); err != nil {
			return fmt.Errorf("%s: channel %s: %w", e.file, rec.Name, err)
		}
	}

	if len(e.dialect.Preamble) > 0 && !e.hasPreamble() {
		e.buf.SetPreamble(e.dialect.Preamble...)
	}
	return nil
}

// hasPreamble reports whether the input already starts with the preamble,
// which keeps a second pass over patched output a no-op.
func (e *Engine) hasPreamble() bool {
	lines := e.buf.Lines()
	if len(lines) < len(e.dialect.Preamble) {
		return false
	}
	for i, want := range e.dialect.Preamble {
		got, _ := patterns.Split(lines[i])
		if got != strings.TrimRight(want, "\r\n") {
			return false
		}
	}
	return true
}

// Buffer returns the patched lines
func (e *Engine) Buffer() *linebuf.Buffer {
	return e.buf
}

// Counts returns the constructs matched so far
func (e *Engine) Counts() patterns.Counts {
	return e.counts
}

// Records returns the channel declarations seen, in input order
func (e *Engine) Records() []ChannelRecord {
	out := make([]ChannelRecord, len(e.records))
	for i, rec := range e.records {
		out[i] = *rec
	}
	return out
}

// Unresolved lists channels whose element type was never resolved. Only
// meaningful after Finish.
func (e *Engine) Unresolved() []string {
	return e.unresolved
}

func eol(term string) string {
	if term == "" {
		return "\n"
	}
	return term
}
