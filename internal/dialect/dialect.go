// Package dialect lists the backend files one generator run can produce and
// the order in which they are patched.
package dialect

import (
	"fmt"
	"strings"
)

// Family groups dialects that share a patch pass
type Family int

const (
	IR Family = iota
	CFamily
)

func (f Family) String() string {
	if f == IR {
		return "ir"
	}
	return "c"
}

// Job identifies one backend file: its dialect name and file extension
type Job struct {
	Name   string
	Ext    string
	Family Family
}

// Path returns the file this job patches for a base name
func (j Job) Path(base string) string {
	return base + j.Ext
}

// Profile selects the generator revision whose output is being patched
type Profile string

const (
	// Legacy output carries source_filename metadata and function attributes
	// that older NVVM toolchains reject.
	Legacy Profile = "legacy"

	// Current output emits clean declarations and adds AMDGPU, generic IR
	// and HLS backends.
	Current Profile = "current"
)

var jobs = map[string]Job{
	"ll":     {Name: "ll", Ext: ".ll", Family: IR},
	"nvvm":   {Name: "nvvm", Ext: ".nvvm", Family: IR},
	"amdgpu": {Name: "amdgpu", Ext: ".amdgpu", Family: IR},
	"cuda":   {Name: "cuda", Ext: ".cu", Family: CFamily},
	"opencl": {Name: "opencl", Ext: ".cl", Family: CFamily},
	"hls":    {Name: "hls", Ext: ".hls", Family: CFamily},
}

var profileOrder = map[Profile][]string{
	Legacy:  {"nvvm", "cuda", "opencl"},
	Current: {"ll", "nvvm", "amdgpu", "cuda", "opencl", "hls"},
}

// ParseProfile validates a profile name. Empty selects Current.
func ParseProfile(s string) (Profile, error) {
	switch Profile(strings.ToLower(s)) {
	case "", Current:
		return Current, nil
	case Legacy:
		return Legacy, nil
	}
	return "", fmt.Errorf("unknown profile %q (want %q or %q)", s, Legacy, Current)
}

// Jobs returns the profile's jobs in patch order. A non-empty only restricts
// the list; names outside the profile are an error.
func Jobs(p Profile, only []string) ([]Job, error) {
	order, ok := profileOrder[p]
	if !ok {
		return nil, fmt.Errorf("unknown profile %q", p)
	}

	keep := make(map[string]bool, len(only))
	for _, name := range only {
		if !contains(order, name) {
			return nil, fmt.Errorf("dialect %q is not produced by the %s profile", name, p)
		}
		keep[name] = true
	}

	result := make([]Job, 0, len(order))
	for _, name := range order {
		if len(keep) > 0 && !keep[name] {
			continue
		}
		result = append(result, jobs[name])
	}
	return result, nil
}

// ByExt returns the job owning a file extension (".cl", ".nvvm", ...)
func ByExt(ext string) (Job, bool) {
	for _, j := range jobs {
		if j.Ext == ext {
			return j, true
		}
	}
	return Job{}, false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
