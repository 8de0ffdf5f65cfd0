// =============================================================================
// postpatch - rewrite kernel generator output into backend-valid source
// =============================================================================
//
// The kernel generator emits one file per backend next to a common base name
// (kernel.ll, kernel.nvvm, kernel.cu, kernel.cl, ...). Those files still carry
// placeholder constructs: magic identity declarations, print_pragma calls,
// generic channel structs and read/write calls. postpatch rewrites them in
// place.
//
// THE PIPELINE (per base name):
//  1. Config is loaded and checked against the CUE contract
//  2. The driver patches every backend file the generator produced
//  3. The run report is checked against the CUE contract
//  4. OPA audits the report (unresolved channels, leftover placeholders, ...)
// =============================================================================

package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/robert-at-pretension-io/postpatch/internal/config"
	"github.com/robert-at-pretension-io/postpatch/internal/dialect"
	"github.com/robert-at-pretension-io/postpatch/internal/driver"
	"github.com/robert-at-pretension-io/postpatch/internal/irpatch"
	"github.com/robert-at-pretension-io/postpatch/internal/policy"
	"github.com/robert-at-pretension-io/postpatch/internal/validator"
)

type options struct {
	verbose     bool
	quiet       bool
	configPath  string
	profile     string
	dialects    string
	jsonOutput  bool
	dryRun      bool
	syntax      bool
	strict      bool
	metricsFile string
}

// runOutput is one base name's entry in -json output
type runOutput struct {
	Report *driver.Report `json:"report"`
	Audit  *policy.Result `json:"audit,omitempty"`
}

func main() {
	_ = godotenv.Load()

	if len(os.Args) > 1 && os.Args[1] == "init" {
		runInit(os.Args[2:])
		return
	}

	var opts options
	flag.BoolVar(&opts.verbose, "v", false, "verbose output (debug logging)")
	flag.BoolVar(&opts.quiet, "q", false, "only log warnings and errors")
	flag.StringVar(&opts.configPath, "c", "", "config file (default: search postpatch.json/.yaml)")
	flag.StringVar(&opts.profile, "profile", "", "generator profile: legacy or current")
	flag.StringVar(&opts.dialects, "dialects", "", "comma-separated dialects to patch (default: all in profile)")
	flag.BoolVar(&opts.jsonOutput, "json", false, "print run reports as JSON on stdout")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "print patched output instead of writing files")
	flag.BoolVar(&opts.syntax, "syntax", false, "parse CUDA/HLS output with tree-sitter")
	flag.BoolVar(&opts.strict, "strict", false, "exit non-zero when the audit reports errors")
	flag.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus counters to file")
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	if err := run(opts, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: postpatch [options] <base>...
       postpatch init [-yaml]

Commands:
  init              Create a postpatch.json configuration file
  <base>            Patch <base>.ll, .nvvm, .amdgpu, .cu, .cl and .hls in place
                    (a backend file or glob such as build/*.cl is accepted too)

Options:
  -v                Enable verbose output
  -q                Only log warnings and errors
  -c <file>         Specify config file
  -profile <name>   legacy | current (default: current)
  -dialects <list>  Patch only these dialects, e.g. opencl,hls
  -json             Print run reports as JSON
  -dry-run          Print patched output instead of writing files
  -syntax           Parse CUDA/HLS output with tree-sitter
  -strict           Exit non-zero when the audit reports errors
  -metrics-file     Write Prometheus counters to file

Configuration:
  postpatch looks for configuration in:
    1. $POSTPATCH_CONFIG
    2. ./postpatch.json, ./.postpatch.json, ./postpatch.yaml
    3. the same names next to <base>
    4. ~/.config/postpatch/config.json

  Run 'postpatch init' to create a default configuration file.`)
}

func runInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	asYAML := fs.Bool("yaml", false, "write postpatch.yaml instead of postpatch.json")
	_ = fs.Parse(args)

	configPath := "postpatch.json"
	if *asYAML {
		configPath = "postpatch.yaml"
	}

	// Check if file already exists
	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config file %s already exists. Overwrite? [y/N]: ", configPath)
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted.")
			return
		}
	}

	cfg := config.DefaultConfig()
	if err := cfg.Save(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Created %s\n", configPath)
	fmt.Println("\nEdit this file to configure:")
	fmt.Println("  - Generator profile and dialects to patch")
	fmt.Println("  - IR definition substitutions")
	fmt.Println("  - Audit rule severities")
}

func newLogger(opts options) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	switch {
	case opts.verbose:
		log.SetLevel(logrus.DebugLevel)
	case opts.quiet:
		log.SetLevel(logrus.WarnLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}
	return log
}

func run(opts options, args []string) error {
	log := newLogger(opts)

	bases, err := config.ResolveBases(args)
	if err != nil {
		return fmt.Errorf("resolving inputs: %w", err)
	}
	if len(bases) == 0 {
		return fmt.Errorf("no backend files match %s", strings.Join(args, " "))
	}

	v, err := validator.New()
	if err != nil {
		return err
	}

	metrics := driver.NewMetrics()
	metricsPath := opts.metricsFile

	var (
		outputs   []runOutput
		errs      []error
		auditErrs int
	)
	for i, base := range bases {
		cfg, err := loadConfig(opts, base)
		if err != nil {
			return err
		}
		if err := v.ValidateConfig(cfg); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		if metricsPath == "" {
			metricsPath = cfg.Metrics.Path
		}

		profile, err := dialect.ParseProfile(cfg.Profile)
		if err != nil {
			return err
		}

		d := driver.New(driver.Options{
			Profile:                 profile,
			Dialects:                cfg.Dialects,
			Definitions:             cfg.Definitions,
			ContinueOnContractError: cfg.ContinueOnContractError,
			SyntaxCheck:             cfg.Verify.Syntax,
			DryRun:                  opts.dryRun,
			TimingPath:              cfg.Timing.Path,
			Metrics:                 metrics,
			Log:                     log.WithField("base", base),
		})
		report, runErr := d.Run(base)
		if runErr != nil {
			errs = append(errs, runErr)
		}
		stop := stopsRun(runErr, cfg)

		if err := v.ValidateReport(report); err != nil {
			return fmt.Errorf("run report for %s: %w", base, err)
		}

		out := runOutput{Report: report}
		if cfg.AuditEnabled() {
			result, err := audit(cfg, report)
			if err != nil {
				return err
			}
			if err := v.ValidateAudit(result); err != nil {
				return fmt.Errorf("audit result for %s: %w", base, err)
			}
			logViolations(log, result)
			auditErrs += result.Summary.Errors
			out.Audit = result
		}
		outputs = append(outputs, out)

		if stop && i < len(bases)-1 {
			log.Errorf("contract error in %s; skipping %d remaining base(s)", base, len(bases)-1-i)
			break
		}
	}

	if metricsPath != "" {
		if err := metrics.WriteFile(metricsPath); err != nil {
			log.Warnf("writing metrics: %v", err)
		}
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(outputs); err != nil {
			return fmt.Errorf("encoding reports: %w", err)
		}
	}

	if opts.strict && auditErrs > 0 {
		errs = append(errs, fmt.Errorf("audit reported %d errors", auditErrs))
	}
	return errors.Join(errs...)
}

// stopsRun reports whether a base's run error ends the whole invocation
func stopsRun(err error, cfg *config.Config) bool {
	var contractErr *irpatch.ContractError
	return errors.As(err, &contractErr) && !cfg.ContinueOnContractError
}

func loadConfig(opts options, base string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.LoadFile(opts.configPath)
	} else {
		cfg, err = config.Load(base)
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if opts.profile != "" {
		cfg.Profile = opts.profile
	}
	if opts.dialects != "" {
		cfg.Dialects = strings.Split(opts.dialects, ",")
	}
	if opts.syntax {
		cfg.Verify.Syntax = true
	}
	return cfg, nil
}

func audit(cfg *config.Config, report *driver.Report) (*policy.Result, error) {
	engine, err := policy.New(cfg.Audit.PolicyDir)
	if err != nil {
		return nil, fmt.Errorf("loading audit policies: %w", err)
	}
	result, err := engine.Evaluate(report)
	if err != nil {
		return nil, fmt.Errorf("auditing %s: %w", report.Base, err)
	}
	result.Apply(cfg)
	return result, nil
}

func logViolations(log logrus.FieldLogger, result *policy.Result) {
	for _, v := range result.Violations {
		entry := log.WithField("rule", v.Rule)
		loc := v.File
		if v.Line > 0 {
			loc = fmt.Sprintf("%s:%d", v.File, v.Line)
		}
		switch v.Severity {
		case "error":
			entry.Errorf("%s: %s", loc, v.Message)
		case "warning":
			entry.Warnf("%s: %s", loc, v.Message)
		default:
			entry.Infof("%s: %s", loc, v.Message)
		}
	}
}
