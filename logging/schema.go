package logging

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// GenerateSchema returns the JSON Schema of the "logging" section.
func GenerateSchema() ([]byte, error) {
	r := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		ExpandedStruct:            true,
		FieldNameTag:              "yaml",
	}

	schema := r.Reflect(&Config{})
	schema.ID = ""
	schema.Title = "repostore logging configuration"
	schema.Description = "Schema for the 'logging' section of repostore.yml."
	schema.Required = nil

	return json.MarshalIndent(schema, "", "  ")
}
