// Package prompt implements spec.md §4.11's prompt orchestrator: composing
// the system prompt handed to one ReAct execution from the agent-kind body,
// builtin rules and methodology, an environment block, the tool registry's
// descriptions, the highest-priority project-context file, and the merged
// global/workspace settings — grounded on the teacher's
// internal/orchestrator.Builder.Build section-assembly pipeline
// (config.go/build.go), generalized from its ad-hoc/skill-task prompt shape
// to spec.md §6's agent-config-markdown shape.
package prompt

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Mode is an AgentDefinition's spec.md §6 "mode" frontmatter field.
type Mode string

const (
	ModePrimary  Mode = "primary"
	ModeSubagent Mode = "subagent"
)

// AgentDefinition is one parsed agent-config markdown file (spec.md §6:
// "frontmatter `--- name: description: mode: primary|subagent permissions:
// ... model: max_steps: color: hidden: ---` then body used as
// system-prompt fragment"). Mirrors internal/skill.Skill's
// frontmatter-plus-body shape, generalized to this distinct field set.
type AgentDefinition struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Mode        Mode     `yaml:"mode"`
	Permissions []string `yaml:"permissions"`
	Model       string   `yaml:"model"`
	MaxSteps    int      `yaml:"max_steps"`
	Color       string   `yaml:"color"`
	Hidden      bool     `yaml:"hidden"`
	Body        string   `yaml:"-"`
}

// LoadAgentDefinition reads and parses an agent-config markdown file.
func LoadAgentDefinition(path string) (AgentDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return AgentDefinition{}, fmt.Errorf("prompt.LoadAgentDefinition: %w", err)
	}
	return ParseAgentDefinition(string(data))
}

// ParseAgentDefinition splits content's YAML frontmatter from its body and
// decodes the frontmatter into an AgentDefinition, defaulting Mode to
// ModePrimary when the file doesn't specify one.
func ParseAgentDefinition(content string) (AgentDefinition, error) {
	front, body, err := splitFrontmatter(content)
	if err != nil {
		return AgentDefinition{}, fmt.Errorf("prompt.ParseAgentDefinition: %w", err)
	}
	var def AgentDefinition
	if err := yaml.Unmarshal([]byte(front), &def); err != nil {
		return AgentDefinition{}, fmt.Errorf("prompt.ParseAgentDefinition: decode frontmatter: %w", err)
	}
	if def.Mode == "" {
		def.Mode = ModePrimary
	}
	def.Body = strings.TrimSpace(body)
	return def, nil
}

// splitFrontmatter separates a leading "---\n...\n---" YAML block from the
// remainder of content, the same algorithm internal/skill.Skill's loader
// uses for its own (differently-shaped) frontmatter.
func splitFrontmatter(content string) (front, body string, err error) {
	const fence = "---"
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, fence) {
		return "", "", fmt.Errorf("agent definition must start with ---")
	}
	rest := trimmed[len(fence):]
	idx := strings.Index(rest, "\n"+fence)
	if idx < 0 {
		return "", "", fmt.Errorf("no closing --- found in agent definition frontmatter")
	}
	front = strings.TrimSpace(rest[:idx])
	afterClose := rest[idx+1+len(fence):]
	if nl := strings.IndexByte(afterClose, '\n'); nl >= 0 {
		body = afterClose[nl+1:]
	}
	return front, body, nil
}
