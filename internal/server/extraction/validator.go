// Package extraction validates the structured payload workers attach to a
// completed outcome before it is persisted.
package extraction

import (
	"bytes"
	_ "embed"
	"fmt"

	"github.com/dmitrijs2005/ingestkeeper/internal/common"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "mem://ingestkeeper/extraction.json"

// Validator checks payloads against the compiled extraction schema.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the embedded schema.
func NewValidator() (*Validator, error) {
	return NewValidatorFromSchema(schemaJSON)
}

// NewValidatorFromSchema compiles a caller supplied schema document.
func NewValidatorFromSchema(raw []byte) (*Validator, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse extraction schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("add extraction schema: %w", err)
	}

	sch, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile extraction schema: %w", err)
	}

	return &Validator{schema: sch}, nil
}

// Validate reports malformed or non-conforming payloads as
// common.ErrorValidation.
func (v *Validator) Validate(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("%w: extraction data is empty", common.ErrorValidation)
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: extraction data is not JSON: %v", common.ErrorValidation, err)
	}

	if err := v.schema.Validate(inst); err != nil {
		return fmt.Errorf("%w: %v", common.ErrorValidation, err)
	}

	return nil
}
