package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/orbitx-dev/orbitx/internal/skill"
)

// SkillsDir, when set, points the Builder at a directory of skill markdown
// files (name.md, YAML frontmatter + body) the agent can reference by name.
// Adapted from the teacher's skill-as-scheduled-automation model
// (internal/skill's Schedule/Isolation/Memory fields) down to its
// name+description+body — orbitx has no cron scheduler or sandboxed
// execution surface, so a skill here is just a named block of standing
// instructions the system prompt lists for the agent to follow when a
// task matches, not something the daemon invokes on its own.
func (b *Builder) listSkills() string {
	if b.SkillsDir == "" {
		return ""
	}
	entries, err := os.ReadDir(b.SkillsDir)
	if err != nil {
		return ""
	}
	state, err := skill.LoadState(b.SkillsDir)
	if err != nil {
		state = &skill.State{}
	}

	var sb strings.Builder
	sb.WriteString("## Available skills\n")
	found := false
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".md")
		if !state.IsEnabled(name) {
			continue
		}
		sk, err := skill.Load(filepath.Join(b.SkillsDir, entry.Name()))
		if err != nil {
			continue
		}
		if sk.Name == "" {
			sk.Name = name
		}
		found = true
		fmt.Fprintf(&sb, "- %s: %s\n", sk.Name, sk.Description)
	}
	if !found {
		return ""
	}
	sb.WriteString("\nTo follow a skill, read its markdown file under the skills directory and apply its instructions to the current task.")
	return sb.String()
}
