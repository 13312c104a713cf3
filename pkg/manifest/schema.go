package manifest

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// documentSchema is the structural contract for a manifest document. It is
// deliberately loose about script entry contents (entry-level validation
// happens during normalization, where one bad entry is dropped instead of
// failing the source) but strict about the manifest markers: an object with
// neither a version marker nor scripts is not a manifest.
const documentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "repository_version": {"type": "string"},
    "version": {"type": "string"},
    "repository_url": {"type": "string"},
    "verify_checksums": {"type": "boolean"},
    "includes_files": {
      "type": "array",
      "items": {"type": "string"}
    },
    "scripts": {
      "oneOf": [
        {"type": "array", "items": {"type": "object"}},
        {
          "type": "object",
          "additionalProperties": {"type": "array", "items": {"type": "object"}}
        }
      ]
    }
  },
  "anyOf": [
    {"required": ["repository_version"]},
    {"required": ["version"]},
    {"required": ["scripts"]}
  ]
}`

var compiledSchema *gojsonschema.Schema

func init() {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(documentSchema))
	if err != nil {
		panic(fmt.Sprintf("invalid embedded manifest schema: %v", err))
	}
	compiledSchema = schema
}

// ValidateDocument checks raw JSON bytes against the manifest schema.
// Invalid JSON and schema violations both come back as plain errors; callers
// wrap them in CorruptError with the source name attached.
func ValidateDocument(data []byte) error {
	result, err := compiledSchema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if !result.Valid() {
		var reasons []string
		for _, desc := range result.Errors() {
			reasons = append(reasons, desc.String())
		}
		return fmt.Errorf("schema violation: %s", strings.Join(reasons, "; "))
	}
	return nil
}
