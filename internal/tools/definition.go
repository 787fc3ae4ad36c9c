package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	validator "github.com/santhosh-tekuri/jsonschema/v6"
)

// Handler executes one tool call. A returned Go error means the call could
// not be attempted at all (e.g. malformed wiring); a business-level failure
// the model should see (file not found, command non-zero exit) belongs in
// the returned ToolResult's Status/Content instead — the dispatcher only
// ever turns a Handler error into a Status Error result, it never aborts
// the surrounding batch.
type Handler func(ctx context.Context, params map[string]any) (ToolResult, error)

// Definition is one tool's full descriptor (spec.md §4.8): name,
// description, parameters JSON schema, required permissions, and Metadata.
type Definition struct {
	Name        string
	Description string
	Permissions []string
	Metadata    Metadata
	Handler     Handler

	rawSchema json.RawMessage
	compiled  *validator.Schema
}

// Schema returns the tool's parameters JSON schema, suitable for handing to
// an LLM provider's tool-use API.
func (d *Definition) Schema() json.RawMessage { return d.rawSchema }

// Validate checks params against the tool's compiled schema.
func (d *Definition) Validate(params map[string]any) error {
	if d.compiled == nil {
		return nil
	}
	if err := d.compiled.Validate(params); err != nil {
		return fmt.Errorf("tools: %s: invalid arguments: %w", d.Name, err)
	}
	return nil
}

// NewDefinition builds a Definition, generating its parameters JSON schema
// from paramsExample's Go type via github.com/invopop/jsonschema (reflection
// only — it never validates) and compiling that same schema for runtime
// argument validation via github.com/santhosh-tekuri/jsonschema/v6 (pure
// validator, no reflection) — two libraries because neither does both jobs.
func NewDefinition(name, description string, paramsExample any, perms []string, meta Metadata, handler Handler) (*Definition, error) {
	reflector := &jsonschema.Reflector{ExpandedStruct: true, DoNotReference: true}
	schema := reflector.Reflect(paramsExample)
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("tools.NewDefinition(%s): marshal schema: %w", name, err)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("tools.NewDefinition(%s): decode schema: %w", name, err)
	}
	resourceID := name + ".schema.json"
	compiler := validator.NewCompiler()
	if err := compiler.AddResource(resourceID, doc); err != nil {
		return nil, fmt.Errorf("tools.NewDefinition(%s): add schema resource: %w", name, err)
	}
	compiled, err := compiler.Compile(resourceID)
	if err != nil {
		return nil, fmt.Errorf("tools.NewDefinition(%s): compile schema: %w", name, err)
	}

	return &Definition{
		Name:        name,
		Description: description,
		Permissions: perms,
		Metadata:    meta,
		Handler:     handler,
		rawSchema:   raw,
		compiled:    compiled,
	}, nil
}

// NewDefinitionFromSchema builds a Definition from a parameters schema that
// already exists as JSON — the shape an MCP server's tools/list response
// hands back, where there is no Go type to reflect over. It skips
// invopop/jsonschema generation and only compiles the schema for runtime
// validation via santhosh-tekuri/jsonschema/v6.
func NewDefinitionFromSchema(name, description string, rawSchema json.RawMessage, perms []string, meta Metadata, handler Handler) (*Definition, error) {
	var doc any
	if err := json.Unmarshal(rawSchema, &doc); err != nil {
		return nil, fmt.Errorf("tools.NewDefinitionFromSchema(%s): decode schema: %w", name, err)
	}
	resourceID := name + ".schema.json"
	compiler := validator.NewCompiler()
	if err := compiler.AddResource(resourceID, doc); err != nil {
		return nil, fmt.Errorf("tools.NewDefinitionFromSchema(%s): add schema resource: %w", name, err)
	}
	compiled, err := compiler.Compile(resourceID)
	if err != nil {
		return nil, fmt.Errorf("tools.NewDefinitionFromSchema(%s): compile schema: %w", name, err)
	}

	return &Definition{
		Name:        name,
		Description: description,
		Permissions: perms,
		Metadata:    meta,
		Handler:     handler,
		rawSchema:   rawSchema,
		compiled:    compiled,
	}, nil
}
