package types

// JSONSchema describes a tool's parameter contract. Only the subset of JSON
// Schema used by chat-completion tool declarations is modeled.
type JSONSchema struct {
	Type        string                 `json:"type,omitempty"`
	Description string                 `json:"description,omitempty"`
	Properties  map[string]*JSONSchema `json:"properties,omitempty"`
	Required    []string               `json:"required,omitempty"`
	Items       *JSONSchema            `json:"items,omitempty"`
	Enum        []string               `json:"enum,omitempty"`
}

// ToolSpec declares a callable tool: its name, description, and parameter
// schema. Specs are defined once at startup and are immutable.
type ToolSpec struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  *JSONSchema `json:"parameters,omitempty"`
}

// ObjectSchema builds an object schema with the given properties and required
// property names.
func ObjectSchema(props map[string]*JSONSchema, required ...string) *JSONSchema {
	return &JSONSchema{Type: "object", Properties: props, Required: required}
}

// StringParam builds a string property schema with a description.
func StringParam(description string) *JSONSchema {
	return &JSONSchema{Type: "string", Description: description}
}
