// Package driver runs the patch jobs for one generator output base name.
// Each backend file that exists is read, patched in memory, and written back
// in place. Files the generator did not produce are skipped.
package driver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/robert-at-pretension-io/postpatch/internal/chanlower"
	"github.com/robert-at-pretension-io/postpatch/internal/dialect"
	"github.com/robert-at-pretension-io/postpatch/internal/irpatch"
	"github.com/robert-at-pretension-io/postpatch/internal/linebuf"
	"github.com/robert-at-pretension-io/postpatch/internal/patterns"
	"github.com/robert-at-pretension-io/postpatch/internal/syntaxcheck"
)

// Options configures a Driver
type Options struct {
	Profile     dialect.Profile
	Dialects    []string          // restrict the profile's jobs; empty runs all
	Definitions map[string]string // IR definition substitutions

	// ContinueOnContractError keeps going after a magic ID type mismatch.
	// By default the remaining jobs are reported as not run.
	ContinueOnContractError bool

	SyntaxCheck bool // parse CUDA/HLS output with tree-sitter

	// DryRun writes patched output to Stdout instead of the files
	DryRun bool
	Stdout io.Writer

	TimingPath string
	Metrics    *Metrics
	Log        logrus.FieldLogger
}

// Driver dispatches patch jobs
type Driver struct {
	opts    Options
	log     logrus.FieldLogger
	checker *syntaxcheck.Checker
}

// patcher is the line-at-a-time interface shared by the IR normalizer and the
// channel lowering engine
type patcher interface {
	Line(line string) error
	Finish() error
	Buffer() *linebuf.Buffer
	Counts() patterns.Counts
}

// New creates a Driver
func New(opts Options) *Driver {
	if opts.Profile == "" {
		opts.Profile = dialect.Current
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	d := &Driver{opts: opts, log: log}
	if opts.SyntaxCheck {
		d.checker = syntaxcheck.New()
	}
	return d
}

// Run patches every backend file for base. Per-file failures do not stop the
// run, except a contract error, which marks the remaining jobs not run unless
// ContinueOnContractError is set. The returned error joins every failure.
func (d *Driver) Run(base string) (*Report, error) {
	runStart := time.Now()
	report := &Report{
		RunID:   uuid.NewString(),
		Base:    base,
		Profile: string(d.opts.Profile),
		DryRun:  d.opts.DryRun,
		Files:   []FileReport{},
	}
	log := d.log.WithField("run_id", report.RunID)

	timing := newTimingRecorder(runStart, report.RunID, resolveTimingPath(d.opts.TimingPath))
	defer timing.Close()
	if err := timing.Err(); err != nil {
		log.Warnf("timing disabled: %v", err)
	}

	jobs, err := dialect.Jobs(d.opts.Profile, d.opts.Dialects)
	if err != nil {
		return report, err
	}

	var errs []error
	stopped := false
	for _, job := range jobs {
		path := job.Path(base)
		fr := FileReport{Path: path, Dialect: job.Name, Family: job.Family.String()}
		if stopped {
			fr.Status = StatusNotRun
			report.Files = append(report.Files, fr)
			d.opts.Metrics.observe(fr)
			continue
		}

		start := time.Now()
		err := d.patchFile(job, path, &fr, log)
		elapsed := time.Since(start)
		fr.DurationMS = durationToMS(elapsed)
		timing.RecordFile("patch", path, fr.Status, start, elapsed)

		if err != nil {
			errs = append(errs, err)
			var contractErr *irpatch.ContractError
			if errors.As(err, &contractErr) && !d.opts.ContinueOnContractError {
				log.Errorf("%v; skipping remaining jobs", err)
				stopped = true
			}
		}
		report.Files = append(report.Files, fr)
		d.opts.Metrics.observe(fr)
	}

	report.summarize()
	timing.RecordStage("total", runStart, time.Since(runStart), "ok")
	log.Debugf("patched %d, skipped %d, failed %d, not run %d",
		report.Summary.Patched, report.Summary.Skipped, report.Summary.Failed, report.Summary.NotRun)
	return report, errors.Join(errs...)
}

// patchFile patches one file and fills in its report entry. An absent file is
// not an error.
func (d *Driver) patchFile(job dialect.Job, path string, fr *FileReport, log logrus.FieldLogger) error {
	fail := func(err error) error {
		fr.Status = StatusFailed
		fr.Error = err.Error()
		return err
	}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		fr.Status = StatusSkipped
		log.Debugf("%s not generated, skipping", path)
		return nil
	}
	if err != nil {
		return fail(fmt.Errorf("stat %s: %w", path, err))
	}
	if !info.Mode().IsRegular() {
		return fail(fmt.Errorf("%s is not a regular file", path))
	}

	p, err := d.newPatcher(job, path, log)
	if err != nil {
		return fail(err)
	}
	if err := feed(path, p); err != nil {
		return fail(err)
	}
	if err := p.Finish(); err != nil {
		return fail(err)
	}

	buf := p.Buffer()
	fr.Constructs = p.Counts().ByName()
	if e, ok := p.(*chanlower.Engine); ok {
		fr.Unresolved = e.Unresolved()
	}
	fr.Residual = residue(job.Family, buf.Lines())
	for _, r := range fr.Residual {
		log.Warnf("%s:%d: %s placeholder left unpatched", path, r.Line, r.Construct)
	}

	if d.checker != nil && syntaxcheck.Supports(job.Name) {
		findings, err := d.checker.Check(context.Background(), job.Name, []byte(buf.String()))
		if err != nil {
			log.Warnf("syntax check of %s: %v", path, err)
		}
		for _, f := range findings {
			log.Warnf("%s:%s", path, f)
		}
		fr.SyntaxErrors = findings
	}

	if d.opts.DryRun {
		fmt.Fprintf(d.opts.Stdout, "==> %s <==\n", path)
		if _, err := buf.WriteTo(d.opts.Stdout); err != nil {
			return fail(fmt.Errorf("writing %s to stdout: %w", path, err))
		}
	} else if err := writeAtomic(path, info.Mode().Perm(), buf); err != nil {
		return fail(err)
	}

	fr.Status = StatusPatched
	return nil
}

func (d *Driver) newPatcher(job dialect.Job, path string, log logrus.FieldLogger) (patcher, error) {
	if job.Family == dialect.IR {
		return irpatch.New(path, irpatch.Options{
			Legacy:      d.opts.Profile == dialect.Legacy,
			Definitions: d.opts.Definitions,
			Log:         log,
		}), nil
	}
	dl, ok := chanlower.Lookup(job.Name)
	if !ok {
		return nil, fmt.Errorf("no channel lowering for dialect %q", job.Name)
	}
	return chanlower.New(path, dl, log), nil
}

// feed reads path line by line, terminators included, into p
func feed(path string, p patcher) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			if perr := p.Line(line); perr != nil {
				return perr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
	}
}

func residue(family dialect.Family, lines []string) []Residual {
	find := patterns.CResidue
	if family == dialect.IR {
		find = patterns.IRResidue
	}
	var out []Residual
	for i, line := range lines {
		body, _ := patterns.Split(line)
		if m, ok := find(body); ok {
			out = append(out, Residual{Line: i + 1, Construct: m.Kind.String(), Text: strings.TrimSpace(body)})
		}
	}
	return out
}
