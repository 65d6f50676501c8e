package config

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// GenerateSchema generates the JSON Schema for repostore configuration files.
// Nested sections reject unknown keys; the top level stays open so extension
// sections such as "logging" are accepted.
func GenerateSchema() ([]byte, error) {
	return json.MarshalIndent(reflectSchema(), "", "  ")
}

func reflectSchema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		// Expand the root struct; nested sections are emitted under $defs.
		ExpandedStruct: true,
		// Use YAML field names for property names
		FieldNameTag: "yaml",
	}

	schema := r.Reflect(&Config{})
	schema.Title = "repostore configuration"
	schema.Description = "Schema for repostore.yml and repostore.toml."
	schema.ID = ""
	schema.AdditionalProperties = nil
	return schema
}
