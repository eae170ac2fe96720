package tools

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// reflectSchema builds an inline JSON Schema from an argument struct.
// Fields without omitempty become required; nested definitions are
// expanded so providers receive a single self-contained object schema.
func reflectSchema(v any) json.RawMessage {
	r := &jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(v)
	s.Version = ""
	payload, err := json.Marshal(s)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}
