package tools

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// GrepParams is grep's parameter schema.
type GrepParams struct {
	Pattern string `json:"pattern" jsonschema:"required,description=Regular expression to search for"`
	Path    string `json:"path,omitempty" jsonschema:"description=File or directory to search (default: current directory)"`
}

const grepMaxMatches = 500

func grepHandler(ctx context.Context, params map[string]any) (ToolResult, error) {
	pattern, _ := params["pattern"].(string)
	if pattern == "" {
		return ToolResult{Status: StatusError, Content: []ContentBlock{TextBlock("missing 'pattern' parameter")}}, nil
	}
	root, _ := params["path"].(string)
	if root == "" {
		root = "."
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return ToolResult{Status: StatusError, Content: []ContentBlock{TextBlock(fmt.Sprintf("grep: invalid pattern: %v", err))}}, nil
	}

	info, err := os.Stat(root)
	if err != nil {
		return ToolResult{Status: StatusError, Content: []ContentBlock{TextBlock(fmt.Sprintf("grep: %v", err))}}, nil
	}

	var matches []string
	visit := func(path string) error {
		if len(matches) >= grepMaxMatches {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return nil // skip unreadable files rather than aborting the whole search
		}
		defer f.Close()
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			if re.MatchString(scanner.Text()) {
				matches = append(matches, fmt.Sprintf("%s:%d:%s", path, lineNo, scanner.Text()))
				if len(matches) >= grepMaxMatches {
					break
				}
			}
		}
		return nil
	}

	if !info.IsDir() {
		if err := visit(root); err != nil {
			return ToolResult{Status: StatusError, Content: []ContentBlock{TextBlock(fmt.Sprintf("grep: %v", err))}}, nil
		}
	} else {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() && strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			if d.IsDir() || len(matches) >= grepMaxMatches {
				return nil
			}
			return visit(path)
		})
		if err != nil {
			return ToolResult{Status: StatusError, Content: []ContentBlock{TextBlock(fmt.Sprintf("grep: %v", err))}}, nil
		}
	}

	return ToolResult{Status: StatusSuccess, Content: []ContentBlock{TextBlock(strings.Join(matches, "\n"))}}, nil
}
