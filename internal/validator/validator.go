// Package validator checks configuration and run reports against embedded
// CUE contracts. The audit policy consumes the report as untyped JSON, so a
// field that drifts from the schema must fail here rather than silently stop a
// rule from firing.
package validator

import (
	"embed"
	"encoding/json"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaFS embed.FS

// Definitions checked by the validator
const (
	ConfigDef = "#Config"
	ReportDef = "#Report"
	AuditDef  = "#AuditResult"
)

// Validator validates data against the CUE contracts
type Validator struct {
	ctx    *cue.Context
	schema cue.Value
}

// New creates a new Validator with the embedded CUE schemas
func New() (*Validator, error) {
	ctx := cuecontext.New()

	schemaBytes, err := schemaFS.ReadFile("schema.cue")
	if err != nil {
		return nil, fmt.Errorf("loading embedded schema: %w", err)
	}

	schema := ctx.CompileBytes(schemaBytes, cue.Filename("schema.cue"))
	if schema.Err() != nil {
		return nil, fmt.Errorf("compiling schema: %w", schema.Err())
	}

	return &Validator{
		ctx:    ctx,
		schema: schema,
	}, nil
}

// ValidateConfig checks a loaded configuration
func (v *Validator) ValidateConfig(cfg interface{}) error {
	return v.Validate(ConfigDef, cfg)
}

// ValidateReport checks a driver run report
func (v *Validator) ValidateReport(report interface{}) error {
	return v.Validate(ReportDef, report)
}

// ValidateAudit checks the audit policy output
func (v *Validator) ValidateAudit(result interface{}) error {
	return v.Validate(AuditDef, result)
}

// Validate checks that data, marshaled to JSON, conforms to the named definition
func (v *Validator) Validate(def string, data interface{}) error {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling data to JSON: %w", err)
	}
	return v.ValidateJSON(def, jsonBytes)
}

// ValidateJSON validates JSON bytes directly against the named definition
func (v *Validator) ValidateJSON(def string, jsonBytes []byte) error {
	unified, err := v.unify(def, jsonBytes)
	if err != nil {
		return err
	}
	if err := unified.Validate(); err != nil {
		return fmt.Errorf("%s validation failed: %w", def, err)
	}
	return nil
}

// ValidationErrors returns every violation of the named definition, one
// message per error
func (v *Validator) ValidationErrors(def string, data interface{}) []string {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return []string{fmt.Sprintf("marshal error: %v", err)}
	}

	unified, err := v.unify(def, jsonBytes)
	if err != nil {
		return []string{err.Error()}
	}

	err = unified.Validate()
	if err == nil {
		return nil
	}

	var errs []string
	for _, e := range errors.Errors(err) {
		errs = append(errs, e.Error())
	}
	return errs
}

func (v *Validator) unify(def string, jsonBytes []byte) (cue.Value, error) {
	dataValue := v.ctx.CompileBytes(jsonBytes)
	if dataValue.Err() != nil {
		return cue.Value{}, fmt.Errorf("compiling data as CUE: %w", dataValue.Err())
	}

	defValue := v.schema.LookupPath(cue.ParsePath(def))
	if defValue.Err() != nil {
		return cue.Value{}, fmt.Errorf("looking up %s definition: %w", def, defValue.Err())
	}

	return defValue.Unify(dataValue), nil
}
