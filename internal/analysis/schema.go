package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// submitRequestSchema describes the POST /analyze body.
var submitRequestSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"product_idea", "tier", "email"},
	"properties": map[string]any{
		"product_idea": map[string]any{"type": "string", "minLength": 10},
		"tier":         map[string]any{"type": "string", "enum": []string{string(TierPrelaunch), string(TierPostlaunch)}},
		"email":        map[string]any{"type": "string", "format": "email"},
	},
}

var (
	compileOnce    sync.Once
	compiledSubmit *jsonschema.Schema
	compileErr     error
)

func submitSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		b, err := json.Marshal(submitRequestSchema)
		if err != nil {
			compileErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat = true
		if err := compiler.AddResource("submit_request.json", bytes.NewReader(b)); err != nil {
			compileErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiledSubmit, compileErr = compiler.Compile("submit_request.json")
	})
	return compiledSubmit, compileErr
}

// ValidateSubmitRequest checks a raw POST /analyze body against the request
// schema.
func ValidateSubmitRequest(data []byte) error {
	schema, err := submitSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("request does not match schema: %w", err)
	}
	return nil
}
