package relay

import (
	"github.com/invopop/jsonschema"
)

// SchemaID identifies the event schema document.
const SchemaID = "https://github.com/randalmurphal/claude-relay/event.schema.json"

// JSONSchema describes Payload: a CLI stream-json object forwarded verbatim,
// or {"type":"text","content":...} for lines that were not JSON.
func (Payload) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:                 "object",
		Description:          "stream-json line from the claude CLI, or {\"type\":\"text\",\"content\":<line>} when the line is not JSON",
		AdditionalProperties: jsonschema.TrueSchema,
	}
}

// EventSchema returns the JSON schema of everything a Sink can receive.
func EventSchema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: false,
	}

	root := &jsonschema.Schema{
		Version:     jsonschema.Version,
		ID:          SchemaID,
		Title:       "claude-relay event",
		Description: "One message sent to a live client. The type field selects the variant.",
	}

	for _, ev := range []Event{SessionCreated{}, Response{}, Complete{}, ErrorEvent{}} {
		s := r.Reflect(ev)
		s.Version = ""
		s.ID = ""
		s.Title = string(ev.Type())
		if s.Properties == nil {
			s.Properties = jsonschema.NewProperties()
		}
		s.Properties.Set("type", &jsonschema.Schema{Type: "string", Const: string(ev.Type())})
		s.Required = append([]string{"type"}, s.Required...)
		root.OneOf = append(root.OneOf, s)
	}
	return root
}
