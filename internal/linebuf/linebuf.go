// Package linebuf holds the file under construction as an indexable sequence
// of lines. Entries can be overwritten or blanked after they were appended,
// which is how later input lines patch output that was already emitted.
package linebuf

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrIndexOutOfRange is returned when an index was never allocated.
	ErrIndexOutOfRange = errors.New("line index out of range")

	// ErrSealed is returned when a backpatched entry is written again.
	ErrSealed = errors.New("line already backpatched")
)

type entry struct {
	text   string
	blank  bool
	sealed bool
}

// Buffer is an append-mostly list of lines. Indices are stable: blanking an
// entry leaves a tombstone in place instead of removing it.
type Buffer struct {
	preamble []string
	entries  []entry
}

// New creates an empty Buffer
func New() *Buffer {
	return &Buffer{}
}

// Append adds a line (including its terminator) and returns its index
func (b *Buffer) Append(line string) int {
	b.entries = append(b.entries, entry{text: line})
	return len(b.entries) - 1
}

// Len returns the number of entries allocated so far, tombstones included
func (b *Buffer) Len() int {
	return len(b.entries)
}

// Line returns the text at index i. Tombstones read as "".
func (b *Buffer) Line(i int) (string, error) {
	if err := b.check(i); err != nil {
		return "", err
	}
	return b.entries[i].text, nil
}

// IsBlank reports whether the entry at i is a tombstone
func (b *Buffer) IsBlank(i int) bool {
	return i >= 0 && i < len(b.entries) && b.entries[i].blank
}

// Overwrite replaces the entry at i in place
func (b *Buffer) Overwrite(i int, line string) error {
	if err := b.check(i); err != nil {
		return err
	}
	if b.entries[i].sealed {
		return fmt.Errorf("overwrite %d: %w", i, ErrSealed)
	}
	b.entries[i] = entry{text: line}
	return nil
}

// Backpatch overwrites the entry at i and seals it so that it cannot be
// written again.
func (b *Buffer) Backpatch(i int, line string) error {
	if err := b.Overwrite(i, line); err != nil {
		return err
	}
	b.entries[i].sealed = true
	return nil
}

// Blank turns the entry at i into a tombstone that produces no output
func (b *Buffer) Blank(i int) error {
	if err := b.check(i); err != nil {
		return err
	}
	if b.entries[i].sealed {
		return fmt.Errorf("blank %d: %w", i, ErrSealed)
	}
	b.entries[i] = entry{blank: true}
	return nil
}

// SetPreamble sets lines written before every entry. The preamble is not
// part of the index space.
func (b *Buffer) SetPreamble(lines ...string) {
	b.preamble = append([]string(nil), lines...)
}

// Lines returns the serialized lines in order, skipping tombstones
func (b *Buffer) Lines() []string {
	out := make([]string, 0, len(b.preamble)+len(b.entries))
	out = append(out, b.preamble...)
	for _, e := range b.entries {
		if e.blank {
			continue
		}
		out = append(out, e.text)
	}
	return out
}

// String returns the serialized buffer
func (b *Buffer) String() string {
	return strings.Join(b.Lines(), "")
}

// WriteTo writes every non-blank entry verbatim, in index order
func (b *Buffer) WriteTo(w io.Writer) (int64, error) {
	var n int64
	for _, line := range b.Lines() {
		m, err := io.WriteString(w, line)
		n += int64(m)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func (b *Buffer) check(i int) error {
	if i < 0 || i >= len(b.entries) {
		return fmt.Errorf("index %d (len %d): %w", i, len(b.entries), ErrIndexOutOfRange)
	}
	return nil
}
