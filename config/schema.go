package config

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// Schema describes the config document.
func Schema() *jsonschema.Schema {
	r := &jsonschema.Reflector{DoNotReference: true}
	return r.Reflect(&Config{})
}

// SchemaJSON renders Schema indented.
func SchemaJSON() ([]byte, error) {
	return json.MarshalIndent(Schema(), "", "  ")
}
