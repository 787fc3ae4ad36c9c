package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ListFilesParams is list_files's parameter schema.
type ListFilesParams struct {
	Path      string `json:"path" jsonschema:"required,description=Directory to list"`
	Recursive bool   `json:"recursive,omitempty" jsonschema:"description=Recurse into subdirectories"`
}

func listFilesHandler(ctx context.Context, params map[string]any) (ToolResult, error) {
	dir, _ := params["path"].(string)
	if dir == "" {
		return ToolResult{Status: StatusError, Content: []ContentBlock{TextBlock("missing 'path' parameter")}}, nil
	}
	recursive, _ := params["recursive"].(bool)

	var entries []string
	if recursive {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if path == dir {
				return nil
			}
			rel, relErr := filepath.Rel(dir, path)
			if relErr != nil {
				rel = path
			}
			if d.IsDir() {
				entries = append(entries, rel+"/")
			} else {
				entries = append(entries, rel)
			}
			return nil
		})
		if err != nil {
			return ToolResult{Status: StatusError, Content: []ContentBlock{TextBlock(fmt.Sprintf("list_files: %v", err))}}, nil
		}
	} else {
		dirEntries, err := os.ReadDir(dir)
		if err != nil {
			return ToolResult{Status: StatusError, Content: []ContentBlock{TextBlock(fmt.Sprintf("list_files: %v", err))}}, nil
		}
		for _, e := range dirEntries {
			name := e.Name()
			if e.IsDir() {
				name += "/"
			}
			entries = append(entries, name)
		}
	}

	sort.Strings(entries)
	return ToolResult{Status: StatusSuccess, Content: []ContentBlock{TextBlock(strings.Join(entries, "\n"))}}, nil
}
