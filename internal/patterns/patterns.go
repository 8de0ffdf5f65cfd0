// Package patterns holds the fixed vocabulary of placeholder constructs the
// upstream kernel generator emits, one recognizer per construct. Tables are
// ordered: the first matcher that fires wins and no other is tried.
package patterns

import (
	"regexp"
	"strings"
)

// Kind tags the construct a matcher recognizes
type Kind int

const (
	None Kind = iota

	// LLVM IR family
	Definition
	MagicDecl
	SourceFilename
	UnnamedAddr
	ReadWriteOnly
	Speculatable

	// C family
	Pragma
	StructChannelClose
	ArrayClose
	ChannelDecl
	ChannelSlot
	ChannelRead
	ChannelWrite
	MagicCall
)

var kindNames = map[Kind]string{
	None:               "none",
	Definition:         "definition",
	MagicDecl:          "magic_decl",
	SourceFilename:     "source_filename",
	UnnamedAddr:        "unnamed_addr",
	ReadWriteOnly:      "readwrite_only",
	Speculatable:       "speculatable",
	Pragma:             "pragma",
	StructChannelClose: "struct_channel_close",
	ArrayClose:         "array_close",
	ChannelDecl:        "channel_decl",
	ChannelSlot:        "channel_slot",
	ChannelRead:        "channel_read",
	ChannelWrite:       "channel_write",
	MagicCall:          "magic_call",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

var (
	// Pattern: declare <ty> @magic_<x>_id(<ty>) [unnamed_addr|local_unnamed_addr] [#N]
	magicDeclPattern = regexp.MustCompile(`^declare (.*) @(magic_\w*_id)\((.*)\)(?:\s+(?:local_)?unnamed_addr)?(?:\s+#\d+)?\s*$`)

	// Pattern: (declare|define) ... @f(...) unnamed_addr|local_unnamed_addr ...
	unnamedAddrPattern = regexp.MustCompile(`^((?:declare|define) .* @.*\(.*\)) (unnamed_addr|local_unnamed_addr)(.*)$`)

	// Pattern: (declare|define) ... @f(... readonly|writeonly ...)
	readWriteOnlyPattern = regexp.MustCompile(`^((?:declare|define) .*@.*\(.*?) (readonly|writeonly)\b(.*\).*)$`)

	// Pattern: attributes #N = { ... speculatable ... }
	speculatablePattern = regexp.MustCompile(`^(attributes .* = \{.*) (speculatable)(.*\})$`)

	// Pattern: print_pragma("<text>");
	pragmaPattern = regexp.MustCompile(`^(\s*)print_pragma\("(.*)"\);\s*$`)

	// Pattern: } struct_channel_<suffix>;
	structChannelClosePattern = regexp.MustCompile(`^\s*}\s*(struct_channel_\w+)\s*;\s*$`)

	// Pattern: } array_<suffix>;
	arrayClosePattern = regexp.MustCompile(`^\s*}\s*(array_\w+)\s*;\s*$`)

	// Pattern: <qualifiers> struct_channel_<suffix> *<name> = ...;
	channelDeclPattern = regexp.MustCompile(`^(\s*)((?:\w+\s+)*)(struct_channel_\w+)\s*\*\s*(\w+)\s*=.*;\s*$`)

	// Pattern: ...struct_channel_...slot...
	channelSlotPattern = regexp.MustCompile(`struct_channel_.*slot`)

	// Pattern: [<type> ]<lvalue> = read_channel(<channel>);
	// The type prefix is only captured when it declares the target, so
	// `s.f`, `*p` and `arr[i]` stay whole in the lvalue group.
	channelReadPattern = regexp.MustCompile(`^(\s*)((?:[A-Za-z_][\w:<>,]*[\s*&]+)*)([^=\s][^=]*?)\s*=\s*read_channel\((.*)\);\s*$`)

	// Pattern: write_channel(<channel>, <value>);
	channelWritePattern = regexp.MustCompile(`^(\s*)write_channel\(([^,]+),\s*(.*)\);\s*$`)

	// Pattern: <lhs> = magic_<x>_id(<arg>);
	magicCallPattern = regexp.MustCompile(`^(.*) = (magic_\w*_id)\((.*)\);\s*$`)
)

// Match is the result of a matcher: the construct kind and its captures in
// pattern order. A zero Match (Kind None) means no matcher fired.
type Match struct {
	Kind   Kind
	Groups []string
}

// Group returns capture i, or "" when absent
func (m Match) Group(i int) string {
	if i < 0 || i >= len(m.Groups) {
		return ""
	}
	return m.Groups[i]
}

// Matcher recognizes one construct on a single line body
type Matcher struct {
	Kind  Kind
	match func(body string) []string
}

// Match runs the matcher against a line body (no terminator)
func (m Matcher) Match(body string) (Match, bool) {
	groups := m.match(body)
	if groups == nil {
		return Match{}, false
	}
	return Match{Kind: m.Kind, Groups: groups}, true
}

// Table is an ordered list of matchers
type Table []Matcher

// First returns the first match in priority order
func (t Table) First(body string) (Match, bool) {
	for _, m := range t {
		if res, ok := m.Match(body); ok {
			return res, true
		}
	}
	return Match{}, false
}

// Kinds lists the table's priority order
func (t Table) Kinds() []Kind {
	kinds := make([]Kind, len(t))
	for i, m := range t {
		kinds[i] = m.Kind
	}
	return kinds
}

func regexMatcher(kind Kind, re *regexp.Regexp) Matcher {
	return Matcher{Kind: kind, match: func(body string) []string {
		if m := re.FindStringSubmatch(body); m != nil {
			return m[1:]
		}
		return nil
	}}
}

// DefinitionMatcher recognizes `declare <ty> @<name>(<args>)` for any name in
// defs and captures [name].
func DefinitionMatcher(defs map[string]string) Matcher {
	return Matcher{Kind: Definition, match: func(body string) []string {
		if len(defs) == 0 {
			return nil
		}
		name, ok := DeclaredName(body)
		if !ok {
			return nil
		}
		if _, ok := defs[name]; !ok {
			return nil
		}
		return []string{name}
	}}
}

// DeclaredName extracts the function name from a `declare ... @name(` line
func DeclaredName(body string) (string, bool) {
	if !strings.HasPrefix(body, "declare ") {
		return "", false
	}
	at := strings.IndexByte(body, '@')
	if at < 0 {
		return "", false
	}
	end := strings.IndexByte(body[at:], '(')
	if end <= 1 {
		return "", false
	}
	name := body[at+1 : at+end]
	if strings.ContainsAny(name, " \t") {
		return "", false
	}
	return name, true
}

// sourceFilenameMatcher fires on `source_filename = ` lines not yet commented out
var sourceFilenameMatcher = Matcher{Kind: SourceFilename, match: func(body string) []string {
	if strings.HasPrefix(body, ";") || !strings.Contains(body, "source_filename = ") {
		return nil
	}
	return []string{body}
}}

var channelSlotMatcher = Matcher{Kind: ChannelSlot, match: func(body string) []string {
	if channelSlotPattern.MatchString(body) {
		return []string{body}
	}
	return nil
}}

// IRTable returns the line-level matchers for LLVM IR files in priority order.
// Attribute matchers are not part of the table: they are re-applied to the
// same line until none fires, see AttributeTable.
func IRTable(legacy bool, defs map[string]string) Table {
	t := Table{
		DefinitionMatcher(defs),
		regexMatcher(MagicDecl, magicDeclPattern),
	}
	if legacy {
		t = append(t, sourceFilenameMatcher)
	}
	return t
}

// AttributeTable returns the legacy attribute strippers. Each match captures
// [prefix, attribute, suffix]; the rewrite is prefix+suffix.
func AttributeTable() Table {
	return Table{
		regexMatcher(UnnamedAddr, unnamedAddrPattern),
		regexMatcher(ReadWriteOnly, readWriteOnlyPattern),
		regexMatcher(Speculatable, speculatablePattern),
	}
}

// CFamilyTable returns the matchers for CUDA, OpenCL and HLS files in
// priority order.
func CFamilyTable() Table {
	return Table{
		regexMatcher(Pragma, pragmaPattern),
		regexMatcher(StructChannelClose, structChannelClosePattern),
		regexMatcher(ArrayClose, arrayClosePattern),
		regexMatcher(ChannelDecl, channelDeclPattern),
		channelSlotMatcher,
		regexMatcher(ChannelRead, channelReadPattern),
		regexMatcher(ChannelWrite, channelWritePattern),
		regexMatcher(MagicCall, magicCallPattern),
	}
}

// Split separates a line into its body and terminator ("\n", "\r\n" or "")
func Split(line string) (body, term string) {
	switch {
	case strings.HasSuffix(line, "\r\n"):
		return line[:len(line)-2], "\r\n"
	case strings.HasSuffix(line, "\n"):
		return line[:len(line)-1], "\n"
	}
	return line, ""
}

// Counts tallies constructs patched in one file
type Counts map[Kind]int

// Add records one occurrence of k
func (c Counts) Add(k Kind) {
	c[k]++
}

// ByName returns the counts keyed by construct name
func (c Counts) ByName() map[string]int {
	out := make(map[string]int, len(c))
	for k, n := range c {
		out[k.String()] = n
	}
	return out
}

// residue patterns are looser than the rewrite patterns: they find a
// placeholder anywhere on a line, including shapes no rewrite accepts
var (
	irResidue = Table{
		regexMatcher(MagicDecl, regexp.MustCompile(`^\s*declare .*@(magic_\w*_id)\(`)),
	}
	cResidue = Table{
		regexMatcher(Pragma, regexp.MustCompile(`\b(print_pragma)\(`)),
		regexMatcher(ChannelRead, regexp.MustCompile(`\b(read_channel)\(`)),
		regexMatcher(ChannelWrite, regexp.MustCompile(`\b(write_channel)\(`)),
		regexMatcher(MagicCall, regexp.MustCompile(`\b(magic_\w*_id)\(`)),
		regexMatcher(ChannelDecl, regexp.MustCompile(`\b(struct_channel_\w+)\s*\*`)),
	}
)

// IRResidue finds an unpatched placeholder in a line of patched IR
func IRResidue(body string) (Match, bool) {
	return irResidue.First(body)
}

// CResidue finds an unpatched placeholder in a line of patched C-family output
func CResidue(body string) (Match, bool) {
	return cResidue.First(body)
}
