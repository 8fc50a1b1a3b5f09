// Package validation checks flowsheet documents before they reach the
// solver: a JSON Schema pass over the raw document, then semantic analysis
// of the graph (stream references, endpoint consistency, port wiring).
package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/hydrolab/flowsolve/pkg/schema"
)

// flowsheetSchemaJSON is the JSON Schema for flowsheet documents.
// Embedded as a constant to avoid filesystem dependencies.
const flowsheetSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://flowsolve.dev/schemas/flowsheet.json",
  "type": "object",
  "required": ["equipment", "streams"],
  "properties": {
    "equipment": {
      "type": "object",
      "minProperties": 1,
      "additionalProperties": { "$ref": "#/$defs/equipment" }
    },
    "streams": {
      "type": "object",
      "additionalProperties": { "$ref": "#/$defs/stream" }
    },
    "connections": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "additionalProperties": { "type": "string" }
      }
    },
    "constraints": {
      "type": "array",
      "items": { "type": "string", "minLength": 1 }
    }
  },
  "additionalProperties": false,
  "$defs": {
    "equipment": {
      "type": "object",
      "required": ["equipment_id", "equipment_type"],
      "properties": {
        "equipment_id": { "type": "string", "minLength": 1 },
        "equipment_type": { "type": "string", "minLength": 1 },
        "config": { "type": "object" },
        "inlet_streams": {
          "type": "array",
          "items": { "type": "string", "minLength": 1 }
        },
        "outlet_streams": {
          "type": "array",
          "items": { "type": "string", "minLength": 1 }
        }
      },
      "additionalProperties": false
    },
    "stream": {
      "type": "object",
      "required": ["stream_id"],
      "properties": {
        "stream_id": { "type": "string", "minLength": 1 },
        "flow_rate": { "type": "number" },
        "pressure": { "type": "number" },
        "temperature": { "type": "number" },
        "concentration": { "type": "number", "minimum": 0 },
        "source_equipment": { "type": "string" },
        "target_equipment": { "type": "string" },
        "source_port": { "type": "string" },
        "target_port": { "type": "string" }
      },
      "additionalProperties": false
    }
  }
}`

// Validator validates flowsheet documents. Safe for concurrent use: the
// compiled schema is immutable after construction.
type Validator struct {
	flowsheetSchema *jsonschema.Schema
}

// NewValidator creates a Validator with the flowsheet schema pre-compiled.
func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(flowsheetSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal flowsheet schema: %w", err)
	}
	if err := c.AddResource("https://flowsolve.dev/schemas/flowsheet.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add flowsheet schema resource: %w", err)
	}

	compiled, err := c.Compile("https://flowsolve.dev/schemas/flowsheet.json")
	if err != nil {
		return nil, fmt.Errorf("compile flowsheet schema: %w", err)
	}

	return &Validator{flowsheetSchema: compiled}, nil
}

// Validate runs the full pipeline on a raw flowsheet document: JSON Schema
// validation, decoding, then semantic analysis. The decoded flowsheet is
// returned only when the document passed the schema and decoded cleanly;
// semantic findings may still be present in the result.
func (v *Validator) Validate(raw []byte) (*schema.Flowsheet, *schema.ValidationResult) {
	result := &schema.ValidationResult{}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		result.AddError("/", schema.ErrCodeValidation, "document is not valid JSON: "+err.Error())
		return nil, result
	}

	if err := v.flowsheetSchema.Validate(doc); err != nil {
		addSchemaViolations(result, err)
		return nil, result
	}

	var fs schema.Flowsheet
	if err := json.Unmarshal(raw, &fs); err != nil {
		result.AddError("/", schema.ErrCodeValidation, "decode flowsheet: "+err.Error())
		return nil, result
	}

	result.Merge(ValidateSemantics(&fs))
	return &fs, result
}

// addSchemaViolations flattens a jsonschema validation error tree into
// per-location issues.
func addSchemaViolations(result *schema.ValidationResult, err error) {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return
	}
	for _, violation := range collectViolations(verr) {
		result.AddError(violation.path, schema.ErrCodeValidation, violation.message)
	}
}

type violation struct {
	path    string
	message string
}

// collectViolations walks a ValidationError tree and collects leaf messages
// with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []violation {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []violation{{path: loc, message: verr.Error()}}
	}

	var violations []violation
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
