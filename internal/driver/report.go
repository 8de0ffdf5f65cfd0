package driver

import (
	"github.com/robert-at-pretension-io/postpatch/internal/syntaxcheck"
)

// File statuses
const (
	StatusPatched = "patched"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
	StatusNotRun  = "not_run"
)

// Residual is a placeholder construct still present after patching
type Residual struct {
	Line      int    `json:"line"`
	Construct string `json:"construct"`
	Text      string `json:"text"`
}

// FileReport describes what happened to one backend file
type FileReport struct {
	Path         string                `json:"path"`
	Dialect      string                `json:"dialect"`
	Family       string                `json:"family"`
	Status       string                `json:"status"`
	Constructs   map[string]int        `json:"constructs,omitempty"`
	Unresolved   []string              `json:"unresolved_channels,omitempty"`
	Residual     []Residual            `json:"residual,omitempty"`
	SyntaxErrors []syntaxcheck.Finding `json:"syntax_errors,omitempty"`
	Error        string                `json:"error,omitempty"`
	DurationMS   float64               `json:"duration_ms"`
}

// Summary totals a run
type Summary struct {
	Patched    int `json:"patched"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
	NotRun     int `json:"not_run"`
	Constructs int `json:"constructs"`
	Unresolved int `json:"unresolved_channels"`
}

// Report is the outcome of one driver run
type Report struct {
	RunID   string       `json:"run_id"`
	Base    string       `json:"base"`
	Profile string       `json:"profile"`
	DryRun  bool         `json:"dry_run,omitempty"`
	Files   []FileReport `json:"files"`
	Summary Summary      `json:"summary"`
}

// File returns the report for a dialect, if that dialect was in the run
func (r *Report) File(dialect string) (FileReport, bool) {
	for _, f := range r.Files {
		if f.Dialect == dialect {
			return f, true
		}
	}
	return FileReport{}, false
}

func (r *Report) summarize() {
	s := Summary{}
	for _, f := range r.Files {
		switch f.Status {
		case StatusPatched:
			s.Patched++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		case StatusNotRun:
			s.NotRun++
		}
		for _, n := range f.Constructs {
			s.Constructs += n
		}
		s.Unresolved += len(f.Unresolved)
	}
	r.Summary = s
}
