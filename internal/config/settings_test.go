package config

import "testing"

func TestMergeSettingsPermissionsUnion(t *testing.T) {
	global := &Settings{Permissions: Permissions{Allow: []string{"read_file"}, Deny: []string{"bash"}}}
	workspace := &Settings{Permissions: Permissions{Allow: []string{"write_file"}, Deny: []string{"bash"}}}

	merged := MergeSettings(global, workspace)

	if len(merged.Permissions.Allow) != 2 {
		t.Fatalf("want 2 allow entries, got %v", merged.Permissions.Allow)
	}
	if len(merged.Permissions.Deny) != 1 {
		t.Fatalf("want deduped deny entries, got %v", merged.Permissions.Deny)
	}
}

func TestMergeSettingsMCPServersWorkspaceWins(t *testing.T) {
	global := &Settings{MCPServers: map[string]MCPServer{
		"github": {Type: "stdio", Command: "gh-mcp"},
	}}
	workspace := &Settings{MCPServers: map[string]MCPServer{
		"github": {Type: "sse", URL: "http://localhost:9000"},
		"local":  {Type: "stdio", Command: "./tools-mcp"},
	}}

	merged := MergeSettings(global, workspace)

	if merged.MCPServers["github"].Type != "sse" {
		t.Fatalf("want workspace server to override global by name, got %+v", merged.MCPServers["github"])
	}
	if _, ok := merged.MCPServers["local"]; !ok {
		t.Fatalf("want workspace-only server preserved")
	}
}

func TestMergeSettingsRulesConcatenatedGlobalFirst(t *testing.T) {
	global := &Settings{Rules: Rules{Content: "be terse"}}
	workspace := &Settings{Rules: Rules{Content: "use tabs"}}

	merged := MergeSettings(global, workspace)

	want := "be terse\n\nuse tabs"
	if merged.Rules.Content != want {
		t.Fatalf("want %q, got %q", want, merged.Rules.Content)
	}
}

func TestMergeSettingsAgentTuningWorkspaceWins(t *testing.T) {
	globalMax := 30
	workspaceMax := 80
	global := &Settings{Agent: AgentTuning{MaxIterations: &globalMax}}
	workspace := &Settings{Agent: AgentTuning{MaxIterations: &workspaceMax}}

	merged := MergeSettings(global, workspace)

	if merged.Agent.MaxIterations == nil || *merged.Agent.MaxIterations != 80 {
		t.Fatalf("want workspace override of 80, got %v", merged.Agent.MaxIterations)
	}
}

func TestMergeSettingsAgentTuningFallsBackToGlobal(t *testing.T) {
	globalMax := 30
	global := &Settings{Agent: AgentTuning{MaxIterations: &globalMax}}
	workspace := &Settings{}

	merged := MergeSettings(global, workspace)

	if merged.Agent.MaxIterations == nil || *merged.Agent.MaxIterations != 30 {
		t.Fatalf("want global fallback of 30, got %v", merged.Agent.MaxIterations)
	}
}
