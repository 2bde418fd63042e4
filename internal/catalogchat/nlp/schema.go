package nlp

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/intent.json
var intentSchemaJSON string

const intentSchemaURL = "https://catalogchat.local/schema/intent.json"

// IntentSchema is the compiled allowlist every model output must satisfy.
type IntentSchema struct {
	schema *jsonschema.Schema
}

// CompileIntentSchema compiles the embedded allowlist schema.
func CompileIntentSchema() (*IntentSchema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(intentSchemaURL, strings.NewReader(intentSchemaJSON)); err != nil {
		return nil, fmt.Errorf("nlp: add intent schema: %w", err)
	}
	s, err := c.Compile(intentSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("nlp: compile intent schema: %w", err)
	}
	return &IntentSchema{schema: s}, nil
}

// MustCompileIntentSchema panics if the embedded schema is invalid.
func MustCompileIntentSchema() *IntentSchema {
	s, err := CompileIntentSchema()
	if err != nil {
		panic(err)
	}
	return s
}

// Check parses raw as a single JSON object and validates it. Parse failures
// wrap ErrMalformedOutput and validation failures wrap ErrSchemaRejected.
func (s *IntentSchema) Check(raw string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(strings.TrimSpace(stripFence(raw)))))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after JSON object", ErrMalformedOutput)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: output is not a JSON object", ErrMalformedOutput)
	}
	if err := s.schema.Validate(obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaRejected, err)
	}
	return obj, nil
}

// stripFence removes a ```json fence some models add despite JSON mode.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}
