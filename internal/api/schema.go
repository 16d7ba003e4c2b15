package api

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const submitScansSchema = `{
  "type": "object",
  "required": ["entries", "keywords"],
  "properties": {
    "entries": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["user_id", "resume_url"],
        "properties": {
          "user_id": {"type": "string", "minLength": 1},
          "resume_url": {"type": "string", "minLength": 1}
        }
      }
    },
    "keywords": {
      "type": "array",
      "minItems": 1,
      "items": {"type": "string", "minLength": 1}
    }
  }
}`

const saveResultsSchema = `{
  "type": "object",
  "required": ["results"],
  "properties": {
    "results": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["user_id", "resume_url", "percentage"],
        "properties": {
          "user_id": {"type": "string"},
          "resume_url": {"type": "string"},
          "checked": {"type": "boolean"},
          "percentage": {"type": "number", "minimum": 0, "maximum": 100},
          "matched_keywords": {"type": "array", "items": {"type": "string"}},
          "present_vocabulary": {"type": "array", "items": {"type": "string"}}
        }
      }
    }
  }
}`

// schemas holds the compiled request body schemas.
type schemas struct {
	submit *jsonschema.Schema
	save   *jsonschema.Schema
}

func compileSchemas() (*schemas, error) {
	submit, err := compileSchema("submit_scans.json", submitScansSchema)
	if err != nil {
		return nil, err
	}
	save, err := compileSchema("save_results.json", saveResultsSchema)
	if err != nil {
		return nil, err
	}
	return &schemas{submit: submit, save: save}, nil
}

func compileSchema(name, src string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(src)); err != nil {
		return nil, fmt.Errorf("add schema %s: %w", name, err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return schema, nil
}

// decodeValidated checks body against schema, then decodes it into dst.
func decodeValidated(schema *jsonschema.Schema, body []byte, dst any) error {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return fmt.Errorf("malformed JSON: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("request does not match schema: %w", err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}
