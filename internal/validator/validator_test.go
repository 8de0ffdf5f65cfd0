package validator

import (
	"strings"
	"testing"

	"github.com/robert-at-pretension-io/postpatch/internal/config"
	"github.com/robert-at-pretension-io/postpatch/internal/driver"
	"github.com/robert-at-pretension-io/postpatch/internal/syntaxcheck"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := New()
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}
	return v
}

func TestConfigContract(t *testing.T) {
	v := newValidator(t)

	tests := []struct {
		name    string
		data    map[string]interface{}
		wantErr bool
	}{
		{
			name:    "empty_config",
			data:    map[string]interface{}{},
			wantErr: false,
		},
		{
			name: "full_config",
			data: map[string]interface{}{
				"profile":                 "legacy",
				"dialects":                []interface{}{"nvvm", "opencl"},
				"definitions":             map[string]interface{}{"llvm.nvvm.foo": "define void @llvm.nvvm.foo() {\n  ret void\n}\n"},
				"continueOnContractError": true,
				"verify":                  map[string]interface{}{"syntax": true},
				"audit":                   map[string]interface{}{"enabled": false, "rules": map[string]interface{}{"unresolved_channel": "error"}},
				"timing":                  map[string]interface{}{"path": "t.jsonl"},
				"metrics":                 map[string]interface{}{"path": "m.prom"},
			},
			wantErr: false,
		},
		{
			name:    "unknown_profile",
			data:    map[string]interface{}{"profile": "v3"},
			wantErr: true,
		},
		{
			name:    "unknown_dialect",
			data:    map[string]interface{}{"dialects": []interface{}{"metal"}},
			wantErr: true,
		},
		{
			name:    "misspelled_key",
			data:    map[string]interface{}{"dialect": []interface{}{"cuda"}},
			wantErr: true,
		},
		{
			name:    "empty_definition",
			data:    map[string]interface{}{"definitions": map[string]interface{}{"f": ""}},
			wantErr: true,
		},
		{
			name:    "bad_severity",
			data:    map[string]interface{}{"audit": map[string]interface{}{"rules": map[string]interface{}{"x": "fatal"}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateConfig(tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	v := newValidator(t)
	if err := v.ValidateConfig(config.DefaultConfig()); err != nil {
		t.Fatalf("default config rejected: %v", err)
	}
}

func sampleReport() *driver.Report {
	return &driver.Report{
		RunID:   "0b1e3c52-7f0a-4c1e-9d8e-5d2a1f0c9b7e",
		Base:    "build/kernel",
		Profile: "current",
		Files: []driver.FileReport{
			{
				Path:       "build/kernel.cl",
				Dialect:    "opencl",
				Family:     "c",
				Status:     driver.StatusPatched,
				Constructs: map[string]int{"channel_read": 2},
				Unresolved: []string{"q"},
				Residual:   []driver.Residual{{Line: 4, Construct: "channel_read", Text: "f(read_channel(c));"}},
			},
			{
				Path:         "build/kernel.hls",
				Dialect:      "hls",
				Family:       "c",
				Status:       driver.StatusPatched,
				SyntaxErrors: []syntaxcheck.Finding{{Line: 3, Column: 1, Kind: "missing", Text: ";"}},
			},
			{Path: "build/kernel.ll", Dialect: "ll", Family: "ir", Status: driver.StatusFailed, Error: "boom"},
			{Path: "build/kernel.cu", Dialect: "cuda", Family: "c", Status: driver.StatusNotRun},
		},
		Summary: driver.Summary{Patched: 2, Failed: 1, NotRun: 1, Constructs: 2, Unresolved: 1},
	}
}

func TestReportContract(t *testing.T) {
	v := newValidator(t)

	if err := v.ValidateReport(sampleReport()); err != nil {
		t.Fatalf("valid report rejected: %v", err)
	}

	badID := sampleReport()
	badID.RunID = "run-1"
	if err := v.ValidateReport(badID); err == nil {
		t.Errorf("expected error for malformed run id")
	}

	badStatus := sampleReport()
	badStatus.Files[0].Status = "done"
	if err := v.ValidateReport(badStatus); err == nil {
		t.Errorf("expected error for unknown status")
	}

	badDialect := sampleReport()
	badDialect.Files[0].Dialect = "metal"
	if err := v.ValidateReport(badDialect); err == nil {
		t.Errorf("expected error for unknown dialect")
	}

	badResidual := sampleReport()
	badResidual.Files[0].Residual[0].Line = 0
	if err := v.ValidateReport(badResidual); err == nil {
		t.Errorf("expected error for residual at line 0")
	}
}

func TestAuditContract(t *testing.T) {
	v := newValidator(t)

	valid := map[string]interface{}{
		"violations": []interface{}{
			map[string]interface{}{"rule": "unresolved_channel", "severity": "warning", "file": "k.cl", "line": 0, "message": "channel q unresolved"},
		},
		"summary": map[string]interface{}{"total": 1, "errors": 0, "warnings": 1, "info": 0},
	}
	if err := v.ValidateAudit(valid); err != nil {
		t.Fatalf("valid audit result rejected: %v", err)
	}

	invalid := map[string]interface{}{
		"violations": []interface{}{
			map[string]interface{}{"rule": "x", "severity": "fatal", "file": "k.cl", "line": 1, "message": "m"},
		},
		"summary": map[string]interface{}{"total": 1, "errors": 0, "warnings": 0, "info": 0},
	}
	if err := v.ValidateAudit(invalid); err == nil {
		t.Fatalf("expected error for unknown severity")
	}
}

func TestValidationErrors(t *testing.T) {
	v := newValidator(t)
	errs := v.ValidationErrors(ConfigDef, map[string]interface{}{
		"profile":  "v3",
		"dialects": []interface{}{"metal"},
	})
	if len(errs) == 0 {
		t.Fatalf("expected errors for an invalid config")
	}
	for _, e := range errs {
		if strings.TrimSpace(e) == "" {
			t.Fatalf("empty error message in %q", errs)
		}
	}

	if errs := v.ValidationErrors(ConfigDef, map[string]interface{}{}); errs != nil {
		t.Fatalf("expected no errors, got %v", errs)
	}
}
