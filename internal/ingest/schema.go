package ingest

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const importSchemaURL = "https://leadflow.schemas.local/zapier-import.schema.json"

const importSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["entity_type", "data"],
  "properties": {
    "entity_type": {"enum": ["leads", "agents", "staff", "clients", "users"]},
    "data": {
      "type": "array",
      "minItems": 1,
      "maxItems": 1000,
      "items": {"type": "object"}
    },
    "user_id": {"type": "string", "minLength": 1}
  }
}`

func compileImportSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(importSchemaURL, strings.NewReader(importSchema)); err != nil {
		return nil, fmt.Errorf("import schema load failed: %w", err)
	}
	return c.Compile(importSchemaURL)
}

// schemaDetails flattens a validation failure into readable messages.
func schemaDetails(err error) []string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{err.Error()}
	}
	var out []string
	for _, u := range ve.BasicOutput().Errors {
		if u.Error == "" || strings.HasPrefix(u.Error, "doesn't validate with") {
			continue
		}
		loc := u.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		out = append(out, loc+": "+u.Error)
	}
	if len(out) == 0 {
		out = append(out, ve.Error())
	}
	return out
}
