package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/orbitx-dev/orbitx/internal/config"
	"github.com/orbitx-dev/orbitx/internal/tools"
)

// Builder assembles one execution's system prompt per spec.md §4.11,
// generalized from the teacher's orchestrator.Builder (internal/orchestrator,
// build.go) — same section-then-join shape, different sections: this
// system has no task/skill-interpolation concept, so agent-config markdown
// and the merged Settings document take their place.
type Builder struct {
	Workspace string
	Registry  *tools.Registry
	Settings  *config.Settings
	// SkillsDir, when non-empty, is scanned for skill markdown files to list
	// in the system prompt. Optional — set via WithSkillsDir.
	SkillsDir string
}

// NewBuilder wires a Builder. settings should already be the output of
// config.MergeSettings(global, workspace).
func NewBuilder(workspace string, registry *tools.Registry, settings *config.Settings) *Builder {
	if settings == nil {
		settings = &config.Settings{}
	}
	return &Builder{Workspace: workspace, Registry: registry, Settings: settings}
}

// WithSkillsDir enables the "## Available skills" prompt section.
func (b *Builder) WithSkillsDir(dir string) *Builder {
	b.SkillsDir = dir
	return b
}

// Build composes the full system prompt for one execution of agent def at
// time now. Order: agent body, builtin rules, builtin methodology,
// environment block, tool descriptions, available skills (when SkillsDir
// lists any), project-context file, merged rules, runtime reminder.
func (b *Builder) Build(def AgentDefinition, now time.Time) (string, error) {
	var sections []string

	if def.Body != "" {
		sections = append(sections, def.Body)
	}
	sections = append(sections, BuiltinRules)
	sections = append(sections, BuiltinMethodology)
	sections = append(sections, EnvironmentBlock(b.Workspace, now))

	if toolDocs := b.formatToolDescriptions(); toolDocs != "" {
		sections = append(sections, toolDocs)
	}

	if skills := b.listSkills(); skills != "" {
		sections = append(sections, skills)
	}

	if _, content, ok, err := FindProjectContextFile(b.Workspace); err != nil {
		return "", fmt.Errorf("prompt.Builder.Build: %w", err)
	} else if ok {
		sections = append(sections, "## Project context\n"+strings.TrimSpace(content))
	}

	if rules := strings.TrimSpace(b.Settings.Rules.Content); rules != "" {
		sections = append(sections, "## User rules\n"+rules)
	}

	sections = append(sections, RuntimeReminder)

	return strings.Join(sections, "\n\n"), nil
}

// formatToolDescriptions renders every registered tool's name and
// description, the form an LLM's system prompt traditionally carries
// alongside (or instead of) a provider's native tool-use schema field —
// useful for the ClaudeCLIStreamer path, which has no structured tools
// parameter of its own.
func (b *Builder) formatToolDescriptions() string {
	defs := b.Registry.List()
	if len(defs) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## Available tools\n")
	for _, d := range defs {
		fmt.Fprintf(&sb, "- %s: %s\n", d.Name, d.Description)
	}
	return strings.TrimRight(sb.String(), "\n")
}
