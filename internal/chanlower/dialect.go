package chanlower

// Dialect describes how one C-family backend spells streams. The engine is
// shared; only these strings differ between CUDA, OpenCL and HLS.
//
// Templates use indexed fmt verbs:
//   - DeclareTemplate: %[1]s element type, %[2]s channel name
//   - ReadTemplate:    %[1]s indent, %[2]s declaration prefix, %[3]s target, %[4]s channel
//   - WriteTemplate:   %[1]s indent, %[2]s channel, %[3]s value
//
// An empty template means the construct has no native form and is dropped
// (reads, writes) or left as its placeholder (declarations).
type Dialect struct {
	Name string

	// StructPreface is the number of already-emitted entries that make up a
	// channel struct before its closing line, member line included.
	StructPreface int

	DeclareTemplate string
	ReadTemplate    string
	WriteTemplate   string

	// SplitReadDecl emits `<prefix><var>;` before the read when the read
	// also declares its variable.
	SplitReadDecl bool

	// Preamble lines are written before the file contents
	Preamble []string
}

var (
	// CUDA has no stream type; channel operations are dropped
	CUDA = Dialect{
		Name:          "cuda",
		StructPreface: 2,
	}

	// OpenCL uses the Intel FPGA channel extension
	OpenCL = Dialect{
		Name:            "opencl",
		StructPreface:   3,
		DeclareTemplate: "channel %[1]s %[2]s;",
		ReadTemplate:    "%[1]s%[2]s%[3]s = read_channel_intel(%[4]s);",
		WriteTemplate:   "%[1]swrite_channel_intel(%[2]s, %[3]s);",
	}

	// HLS lowers channels to hls::stream
	HLS = Dialect{
		Name:            "hls",
		StructPreface:   2,
		DeclareTemplate: "hls::stream<%[1]s> %[2]s;",
		ReadTemplate:    "%[1]s%[4]s >> %[3]s;",
		WriteTemplate:   "%[1]s%[2]s << %[3]s;",
		SplitReadDecl:   true,
		Preamble: []string{
			"#include \"hls_stream.h\"\n",
			"#include \"hls_math.h\"\n",
		},
	}
)

// Lookup returns the dialect with the given name
func Lookup(name string) (Dialect, bool) {
	switch name {
	case CUDA.Name:
		return CUDA, true
	case OpenCL.Name:
		return OpenCL, true
	case HLS.Name:
		return HLS, true
	}
	return Dialect{}, false
}
