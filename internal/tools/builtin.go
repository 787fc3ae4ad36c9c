package tools

import (
	"context"
	"fmt"
)

// BashParams is bash's parameter schema.
type BashParams struct {
	Command string `json:"command" jsonschema:"required,description=Shell command to execute"`
}

// ReadFileParams is read_file's parameter schema.
type ReadFileParams struct {
	FilePath string `json:"file_path" jsonschema:"required,description=Path to the file to read"`
}

// WriteFileParams is write_file's parameter schema.
type WriteFileParams struct {
	FilePath string `json:"file_path" jsonschema:"required,description=Path to the file to write"`
	Content  string `json:"content" jsonschema:"required,description=Content to write"`
}

// EditFileParams is edit_file's parameter schema.
type EditFileParams struct {
	FilePath string `json:"file_path" jsonschema:"required,description=Path to the file to edit"`
	OldText  string `json:"old_text" jsonschema:"required,description=Exact text to replace"`
	NewText  string `json:"new_text" jsonschema:"required,description=Replacement text"`
}

// adaptLegacy wraps the teacher's (*Result, error) runner convention into
// the ToolResult-returning Handler shape.
func adaptLegacy(old *Result, err error) (ToolResult, error) {
	if err != nil {
		return ToolResult{}, err
	}
	if old.Error != "" {
		return ToolResult{Status: StatusError, Content: []ContentBlock{TextBlock(old.Error)}}, nil
	}
	return ToolResult{Status: StatusSuccess, Content: []ContentBlock{TextBlock(old.Output)}}, nil
}

// NewBuiltinRegistry builds the Registry of every built-in tool — the
// bash/cli/edit runners (kept from the teacher, now wrapped as Handlers)
// plus the new read_file/write_file/list_files/grep tools spec.md §4.8
// calls for but the teacher's tool set didn't have.
func NewBuiltinRegistry() (*Registry, error) {
	reg := NewRegistry()
	bash := NewBashRunner()
	edit := NewEditRunner()

	defs := []struct {
		name        string
		description string
		example     any
		perms       []string
		meta        Metadata
		handler     Handler
	}{
		{
			name:        "bash",
			description: "Execute a shell command and return its combined output",
			example:     BashParams{},
			perms:       []string{"execute"},
			meta:        Metadata{Category: CategoryExecution, Tags: []string{"shell"}},
			handler: func(ctx context.Context, params map[string]any) (ToolResult, error) {
				return adaptLegacy(bash.Run(ctx, "bash", params))
			},
		},
		{
			name:        "read_file",
			description: "Read a file's contents",
			example:     ReadFileParams{},
			perms:       []string{"read"},
			meta:        Metadata{Category: CategoryFileRead, ProtectedFromCompaction: true, Tags: []string{"filesystem"}},
			handler: func(ctx context.Context, params map[string]any) (ToolResult, error) {
				return adaptLegacy(edit.Run(ctx, "read_file", params))
			},
		},
		{
			name:        "write_file",
			description: "Write content to a file, creating parent directories as needed",
			example:     WriteFileParams{},
			perms:       []string{"write"},
			meta:        Metadata{Category: CategoryFileWrite, Tags: []string{"filesystem"}},
			handler: func(ctx context.Context, params map[string]any) (ToolResult, error) {
				return adaptLegacy(edit.Run(ctx, "write_file", params))
			},
		},
		{
			name:        "edit_file",
			description: "Replace an exact substring within a file",
			example:     EditFileParams{},
			perms:       []string{"write"},
			meta:        Metadata{Category: CategoryFileWrite, Tags: []string{"filesystem"}},
			handler: func(ctx context.Context, params map[string]any) (ToolResult, error) {
				return adaptLegacy(edit.Run(ctx, "edit_file", params))
			},
		},
		{
			name:        "list_files",
			description: "List the entries of a directory, optionally recursively",
			example:     ListFilesParams{},
			perms:       []string{"read"},
			meta:        Metadata{Category: CategoryFileSystem, Tags: []string{"filesystem"}},
			handler:     listFilesHandler,
		},
		{
			name:        "grep",
			description: "Search files for lines matching a regular expression",
			example:     GrepParams{},
			perms:       []string{"read"},
			meta:        Metadata{Category: CategoryCodeAnalysis, Tags: []string{"search"}},
			handler:     grepHandler,
		},
	}

	for _, d := range defs {
		def, err := NewDefinition(d.name, d.description, d.example, d.perms, d.meta, d.handler)
		if err != nil {
			return nil, fmt.Errorf("tools.NewBuiltinRegistry: %w", err)
		}
		reg.Register(def)
	}
	return reg, nil
}
