package action

// SchemaBuilder provides a fluent interface for building parameter schemas.
type SchemaBuilder struct {
	properties map[string]any
	required   []string
}

// NewSchema starts an object schema with no parameters.
func NewSchema() *SchemaBuilder {
	return &SchemaBuilder{
		properties: make(map[string]any),
		required:   make([]string, 0),
	}
}

// AddParam adds a parameter to the schema.
func (b *SchemaBuilder) AddParam(name, paramType, description string, required bool) *SchemaBuilder {
	b.properties[name] = map[string]any{
		"type":        paramType,
		"description": description,
	}
	if required {
		b.required = append(b.required, name)
	}
	return b
}

// Build returns the constructed schema.
func (b *SchemaBuilder) Build() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": b.properties,
		"required":   b.required,
	}
}
