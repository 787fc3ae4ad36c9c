package prompt

import (
	"os"
	"path/filepath"
	"strings"
)

// projectContextFiles is spec.md §4.11's fixed priority order: "highest
// priority of CLAUDE.md > AGENTS.md > WARP.md > .cursorrules > README.md
// that exists and is non-empty".
var projectContextFiles = []string{"CLAUDE.md", "AGENTS.md", "WARP.md", ".cursorrules", "README.md"}

// FindProjectContextFile returns the first (highest-priority, existing,
// non-empty) project-context file under root, and its contents.
func FindProjectContextFile(root string) (path, content string, ok bool, err error) {
	for _, name := range projectContextFiles {
		candidate := filepath.Join(root, name)
		data, readErr := os.ReadFile(candidate)
		if readErr != nil {
			if os.IsNotExist(readErr) {
				continue
			}
			return "", "", false, readErr
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		return candidate, string(data), true, nil
	}
	return "", "", false, nil
}
