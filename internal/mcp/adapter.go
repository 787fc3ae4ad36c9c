package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/orbitx-dev/orbitx/internal/tools"
)

// RegisterTools wraps every tool exposed by client as a tools.Definition and
// registers it into reg, satisfying spec.md §4.12's "exposed tools are
// wrapped as adapters conforming to §4.8's tool interface". Names are
// namespaced "mcp:<server>:<tool>" so two servers exposing the same tool
// name can't collide in the shared Registry.
func RegisterTools(reg *tools.Registry, client *Client) error {
	for _, t := range client.Tools {
		def, err := adaptTool(client, t)
		if err != nil {
			return fmt.Errorf("mcp: adapt tool %s/%s: %w", client.Name, t.Name, err)
		}
		reg.Register(def)
	}
	return nil
}

// UnregisterTools removes every tool client previously registered via
// RegisterTools — the counterpart a Registry.Reload caller uses before
// calling RegisterTools again with the reconnected Client, so a tool the
// server stopped exposing doesn't linger in reg.
func UnregisterTools(reg *tools.Registry, client *Client) {
	for _, t := range client.Tools {
		reg.Unregister(fmt.Sprintf("mcp:%s:%s", client.Name, t.Name))
	}
}

func adaptTool(client *Client, t Tool) (*tools.Definition, error) {
	name := fmt.Sprintf("mcp:%s:%s", client.Name, t.Name)
	transport := client.Transport
	toolName := t.Name

	handler := func(ctx context.Context, params map[string]any) (tools.ToolResult, error) {
		result, err := transport.CallTool(ctx, toolName, params)
		if err != nil {
			return tools.ToolResult{Status: tools.StatusError, Content: []tools.ContentBlock{tools.TextBlock(err.Error())}}, nil
		}
		status := tools.StatusSuccess
		if result.IsError {
			status = tools.StatusError
		}
		return tools.ToolResult{Status: status, Content: contentBlocks(result.Content)}, nil
	}

	schema := t.InputSchema
	if len(schema) == 0 {
		schema = []byte(`{"type":"object"}`)
	}
	meta := tools.Metadata{Category: tools.CategoryNetwork, Tags: []string{"mcp", client.Name}}
	return tools.NewDefinitionFromSchema(name, t.Description, schema, nil, meta, handler)
}

func contentBlocks(items []ContentItem) []tools.ContentBlock {
	blocks := make([]tools.ContentBlock, 0, len(items))
	var texts []string
	for _, item := range items {
		if item.Type == "text" {
			texts = append(texts, item.Text)
		}
	}
	if len(texts) == 0 {
		return blocks
	}
	return append(blocks, tools.TextBlock(strings.Join(texts, "\n")))
}
