// Package policy audits a driver run report with OPA. The built-in rules flag
// channels left unresolved, placeholders that survived patching, channel
// operations CUDA dropped, syntax findings and jobs skipped after a contract
// error. Audit findings never change patched output.
package policy

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/open-policy-agent/opa/rego"

	"github.com/robert-at-pretension-io/postpatch/internal/driver"
)

//go:embed audit.rego
var builtinPolicy string

const violationsQuery = "data.postpatch.audit.all_violations"

// Engine evaluates audit policies against run reports
type Engine struct {
	query rego.PreparedEvalQuery
}

// Violation represents a policy violation
type Violation struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	File     string `json:"file"`
	Line     int    `json:"line"`
	Message  string `json:"message"`
}

// Result contains the evaluation results
type Result struct {
	Violations []Violation `json:"violations"`
	Summary    Summary     `json:"summary"`
}

// Summary provides aggregate counts
type Summary struct {
	Total    int `json:"total"`
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
	Info     int `json:"info"`
}

// RuleConfig switches rules off and overrides their severity
type RuleConfig interface {
	IsRuleEnabled(rule string) bool
	GetRuleSeverity(rule string, defaultSeverity string) string
}

// New creates a policy engine with the built-in audit rules. If policyDir is
// set, every .rego file in it is loaded alongside them.
func New(policyDir string) (*Engine, error) {
	modules := []func(*rego.Rego){rego.Module("audit.rego", builtinPolicy)}

	if policyDir != "" {
		files, err := filepath.Glob(filepath.Join(policyDir, "*.rego"))
		if err != nil {
			return nil, fmt.Errorf("finding policy files: %w", err)
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no policy files found in %s", policyDir)
		}
		for _, f := range files {
			content, err := os.ReadFile(f)
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", f, err)
			}
			modules = append(modules, rego.Module(f, string(content)))
		}
	}

	opts := append(modules, rego.Query(violationsQuery))
	query, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return nil, fmt.Errorf("preparing violations query: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate runs the policies against a report
func (e *Engine) Evaluate(report *driver.Report) (*Result, error) {
	ctx := context.Background()

	inputMap, err := structToMap(report)
	if err != nil {
		return nil, fmt.Errorf("converting input: %w", err)
	}

	rs, err := e.query.Eval(ctx, rego.EvalInput(inputMap))
	if err != nil {
		return nil, fmt.Errorf("evaluating violations: %w", err)
	}

	result := &Result{Violations: []Violation{}}
	if len(rs) > 0 && len(rs[0].Expressions) > 0 {
		violations, ok := rs[0].Expressions[0].Value.([]interface{})
		if ok {
			for _, v := range violations {
				vmap, ok := v.(map[string]interface{})
				if !ok {
					continue
				}
				result.Violations = append(result.Violations, Violation{
					Rule:     getString(vmap, "rule"),
					Severity: getString(vmap, "severity"),
					File:     getString(vmap, "file"),
					Line:     getInt(vmap, "line"),
					Message:  getString(vmap, "message"),
				})
			}
		}
	}

	result.sort()
	result.summarize()
	return result, nil
}

// Apply drops violations of disabled rules and applies severity overrides
func (r *Result) Apply(cfg RuleConfig) {
	kept := r.Violations[:0]
	for _, v := range r.Violations {
		if !cfg.IsRuleEnabled(v.Rule) {
			continue
		}
		v.Severity = cfg.GetRuleSeverity(v.Rule, v.Severity)
		kept = append(kept, v)
	}
	r.Violations = kept
	r.summarize()
}

// HasErrors reports whether any violation has error severity
func (r *Result) HasErrors() bool {
	return r.Summary.Errors > 0
}

func (r *Result) sort() {
	sort.SliceStable(r.Violations, func(i, j int) bool {
		a, b := r.Violations[i], r.Violations[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Rule != b.Rule {
			return a.Rule < b.Rule
		}
		return a.Message < b.Message
	})
}

func (r *Result) summarize() {
	s := Summary{Total: len(r.Violations)}
	for _, v := range r.Violations {
		switch v.Severity {
		case "error":
			s.Errors++
		case "warning":
			s.Warnings++
		case "info":
			s.Info++
		}
	}
	r.Summary = s
}

// Helper functions
func structToMap(v interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var result map[string]interface{}
	err = json.Unmarshal(data, &result)
	return result, err
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func getInt(m map[string]interface{}, key string) int {
	if v, ok := m[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case float64:
			return int(n)
		case json.Number:
			i, _ := n.Int64()
			return int(i)
		}
	}
	return 0
}
