package prompt

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/orbitx-dev/orbitx/internal/config"
	"github.com/orbitx-dev/orbitx/internal/tools"
)

const sampleAgentDef = `---
name: coder
description: writes and edits code
mode: primary
permissions: ["read", "write"]
model: claude-opus
max_steps: 40
color: blue
---
You are a careful coding agent.
`

func TestParseAgentDefinition(t *testing.T) {
	def, err := ParseAgentDefinition(sampleAgentDef)
	if err != nil {
		t.Fatalf("ParseAgentDefinition: %v", err)
	}
	if def.Name != "coder" || def.Description != "writes and edits code" {
		t.Fatalf("unexpected frontmatter: %+v", def)
	}
	if def.Mode != ModePrimary {
		t.Fatalf("Mode = %v, want ModePrimary", def.Mode)
	}
	if len(def.Permissions) != 2 || def.Permissions[0] != "read" {
		t.Fatalf("Permissions = %v", def.Permissions)
	}
	if def.MaxSteps != 40 || def.Model != "claude-opus" || def.Color != "blue" {
		t.Fatalf("unexpected frontmatter fields: %+v", def)
	}
	if def.Body != "You are a careful coding agent." {
		t.Fatalf("Body = %q", def.Body)
	}
}

func TestParseAgentDefinitionDefaultsModeToPrimary(t *testing.T) {
	def, err := ParseAgentDefinition("---\nname: x\n---\nbody text")
	if err != nil {
		t.Fatalf("ParseAgentDefinition: %v", err)
	}
	if def.Mode != ModePrimary {
		t.Fatalf("Mode = %v, want ModePrimary default", def.Mode)
	}
}

func TestParseAgentDefinitionRejectsMissingFrontmatter(t *testing.T) {
	if _, err := ParseAgentDefinition("no frontmatter here"); err == nil {
		t.Fatal("want error for missing frontmatter fence")
	}
}

func TestFindProjectContextFilePrefersClaudeOverReadme(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("readme body"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "CLAUDE.md"), []byte("claude body"), 0644); err != nil {
		t.Fatal(err)
	}
	path, content, ok, err := FindProjectContextFile(dir)
	if err != nil {
		t.Fatalf("FindProjectContextFile: %v", err)
	}
	if !ok || !strings.HasSuffix(path, "CLAUDE.md") || content != "claude body" {
		t.Fatalf("got path=%q content=%q ok=%v, want CLAUDE.md wins", path, content, ok)
	}
}

func TestFindProjectContextFileSkipsEmptyHigherPriorityFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "CLAUDE.md"), []byte("   \n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "AGENTS.md"), []byte("agents body"), 0644); err != nil {
		t.Fatal(err)
	}
	path, content, ok, err := FindProjectContextFile(dir)
	if err != nil {
		t.Fatalf("FindProjectContextFile: %v", err)
	}
	if !ok || !strings.HasSuffix(path, "AGENTS.md") || content != "agents body" {
		t.Fatalf("got path=%q content=%q ok=%v, want AGENTS.md (empty CLAUDE.md skipped)", path, content, ok)
	}
}

func TestFindProjectContextFileNoneFound(t *testing.T) {
	dir := t.TempDir()
	_, _, ok, err := FindProjectContextFile(dir)
	if err != nil {
		t.Fatalf("FindProjectContextFile: %v", err)
	}
	if ok {
		t.Fatal("ok = true, want false when no context file exists")
	}
}

func echoToolDef(t *testing.T) *tools.Definition {
	t.Helper()
	type params struct {
		Text string `json:"text"`
	}
	def, err := tools.NewDefinition("echo", "echoes text back", params{}, nil,
		tools.Metadata{Category: tools.CategoryFileRead}, func(ctx context.Context, p map[string]any) (tools.ToolResult, error) {
			return tools.ToolResult{Status: tools.StatusSuccess}, nil
		})
	if err != nil {
		t.Fatalf("NewDefinition: %v", err)
	}
	return def
}

func TestBuilderBuildAssemblesAllSections(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "AGENTS.md"), []byte("project notes"), 0644); err != nil {
		t.Fatal(err)
	}

	registry := tools.NewRegistry()
	registry.Register(echoToolDef(t))

	settings := &config.Settings{Rules: config.Rules{Content: "always write tests"}}
	b := NewBuilder(dir, registry, settings)

	def, err := ParseAgentDefinition(sampleAgentDef)
	if err != nil {
		t.Fatalf("ParseAgentDefinition: %v", err)
	}

	out, err := b.Build(def, time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	for _, want := range []string{
		"You are a careful coding agent.",
		"## Rules",
		"## Methodology",
		"<thinking>",
		"## Environment",
		"cwd: " + dir,
		"date: 2026-07-31",
		"## Available tools",
		"echo: echoes text back",
		"## Project context",
		"project notes",
		"## User rules",
		"always write tests",
		"## Reminder",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Build output missing %q\n---\n%s", want, out)
		}
	}

	// Section order must follow spec.md §4.11 exactly.
	idx := func(s string) int { return strings.Index(out, s) }
	order := []string{"careful coding agent", "## Rules", "## Methodology", "## Environment", "## Available tools", "## Project context", "## User rules", "## Reminder"}
	for i := 1; i < len(order); i++ {
		if idx(order[i-1]) >= idx(order[i]) {
			t.Fatalf("section %q did not precede %q:\n%s", order[i-1], order[i], out)
		}
	}
}

func TestBuilderBuildListsEnabledSkills(t *testing.T) {
	dir := t.TempDir()
	skillsDir := t.TempDir()
	writeSkill := func(name, description string) {
		content := "---\nname: " + name + "\ndescription: " + description + "\n---\nbody\n"
		if err := os.WriteFile(filepath.Join(skillsDir, name+".md"), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	writeSkill("release-notes", "drafts release notes from recent commits")
	writeSkill("db-migrate", "writes a migration for a schema change")

	state := `{"disabled":["db-migrate"]}`
	if err := os.WriteFile(filepath.Join(skillsDir, "skill_state.json"), []byte(state), 0644); err != nil {
		t.Fatal(err)
	}

	registry := tools.NewRegistry()
	b := NewBuilder(dir, registry, nil).WithSkillsDir(skillsDir)

	out, err := b.Build(AgentDefinition{Mode: ModePrimary}, time.Now())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.Contains(out, "## Available skills") || !strings.Contains(out, "release-notes: drafts release notes") {
		t.Fatalf("Build missing enabled skill section:\n%s", out)
	}
	if strings.Contains(out, "db-migrate") {
		t.Fatalf("Build included a disabled skill:\n%s", out)
	}
}

func TestBuilderBuildOmitsMissingOptionalSections(t *testing.T) {
	dir := t.TempDir() // no CLAUDE.md/AGENTS.md/etc, no rules
	registry := tools.NewRegistry()
	b := NewBuilder(dir, registry, nil)

	def := AgentDefinition{Mode: ModePrimary} // no Body
	out, err := b.Build(def, time.Now())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if strings.Contains(out, "## Available tools") {
		t.Error("Build included an empty tool-descriptions section")
	}
	if strings.Contains(out, "## Project context") {
		t.Error("Build included a project-context section with no file present")
	}
	if strings.Contains(out, "## User rules") {
		t.Error("Build included a user-rules section with no rules configured")
	}
	if !strings.Contains(out, "## Reminder") {
		t.Error("Build always includes the runtime reminder")
	}
}
