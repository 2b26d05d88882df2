package eval

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// verdictSchemaMap is a lenient shape check for judge quality verdicts.
// Nothing is required — the verdict comes from a generative model and
// missing keys default downstream — but present keys must have the
// expected types so metric extraction reads them correctly.
var verdictSchemaMap = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"overall_score":  map[string]any{"type": "number"},
		"total_possible": map[string]any{"type": "number"},
		"grade":          map[string]any{"type": "string"},
		"usability":      map[string]any{"type": "string"},
		"criteria_scores": map[string]any{
			"type": "object",
			"additionalProperties": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"score":      map[string]any{"type": "number"},
					"percentage": map[string]any{"type": "number"},
				},
			},
		},
		"detailed_findings": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"errors":              map[string]any{"type": "array"},
				"missing_fields":      map[string]any{"type": "array"},
				"hallucinations":      map[string]any{"type": "array"},
				"correct_extractions": map[string]any{"type": "array"},
			},
		},
	},
}

var (
	verdictSchemaOnce sync.Once
	verdictSchema     *jsonschema.Schema
	verdictSchemaErr  error
)

func compileVerdictSchema() (*jsonschema.Schema, error) {
	verdictSchemaOnce.Do(func() {
		b, err := json.Marshal(verdictSchemaMap)
		if err != nil {
			verdictSchemaErr = fmt.Errorf("marshal verdict schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("verdict.json", bytes.NewReader(b)); err != nil {
			verdictSchemaErr = fmt.Errorf("add verdict schema: %w", err)
			return
		}
		verdictSchema, verdictSchemaErr = compiler.Compile("verdict.json")
	})
	return verdictSchema, verdictSchemaErr
}

// validateVerdict checks a judge verdict against the lenient schema. A
// non-nil error means the verdict drifted from the rubric's JSON contract;
// callers log it and fall back to zero-defaults rather than failing.
func validateVerdict(verdict map[string]any) error {
	schema, err := compileVerdictSchema()
	if err != nil {
		return err
	}
	if err := schema.Validate(map[string]any(verdict)); err != nil {
		return fmt.Errorf("verdict does not match schema: %w", err)
	}
	return nil
}
