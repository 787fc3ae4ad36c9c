package config

// Settings is the user-facing settings document from spec.md §6: JSON with
// permissions, mcpServers, rules, and agent-tuning fields. Two of these are
// loaded (user-level, workspace-level) and merged deterministically by
// MergeSettings.
type Settings struct {
	Permissions Permissions          `json:"permissions,omitempty"`
	MCPServers  map[string]MCPServer `json:"mcpServers,omitempty"`
	Rules       Rules                `json:"rules,omitempty"`
	Agent       AgentTuning          `json:"agent,omitempty"`
}

// Permissions lists tool-name (or glob) patterns in three buckets. Deny wins
// over Allow; a name matching only Ask is allowed only by a recorded
// permission decision; a name matching none of the lists is allowed (see
// internal/orbitd's newPermissionChecker).
type Permissions struct {
	Allow []string `json:"allow,omitempty"`
	Deny  []string `json:"deny,omitempty"`
	Ask   []string `json:"ask,omitempty"`
}

// MCPServer describes one external tool-provider connection, keyed by name
// in Settings.MCPServers.
type MCPServer struct {
	Type    string            `json:"type"` // "stdio" | "sse" | "streamableHttp"
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Rules carries free-text instructions injected into the system prompt,
// either inline (Content) or loaded from one or more files.
type Rules struct {
	Content    string   `json:"content,omitempty"`
	RulesFile  string   `json:"rulesFile,omitempty"`
	RulesFiles []string `json:"rulesFiles,omitempty"`
}

// AgentTuning carries the ReAct executor's tunable knobs.
type AgentTuning struct {
	MaxIterations        *int     `json:"maxIterations,omitempty"`
	MaxTokenBudget       *int     `json:"maxTokenBudget,omitempty"`
	ThinkingEnabled      *bool    `json:"thinkingEnabled,omitempty"`
	AutoSummaryThreshold *float64 `json:"autoSummaryThreshold,omitempty"`
}

// MergeSettings combines global (user-level) and workspace (project-level)
// settings per spec.md §4.11:
//   - permissions: allow/deny/ask lists are unioned
//   - mcpServers: workspace entries override global entries by name
//   - rules: content concatenated, global first
//   - agent: per-field overlay, workspace wins when set
func MergeSettings(global, workspace *Settings) *Settings {
	if global == nil {
		global = &Settings{}
	}
	if workspace == nil {
		workspace = &Settings{}
	}

	merged := &Settings{
		Permissions: Permissions{
			Allow: unionStrings(global.Permissions.Allow, workspace.Permissions.Allow),
			Deny:  unionStrings(global.Permissions.Deny, workspace.Permissions.Deny),
			Ask:   unionStrings(global.Permissions.Ask, workspace.Permissions.Ask),
		},
		MCPServers: mergeMCPServers(global.MCPServers, workspace.MCPServers),
		Rules:      mergeRules(global.Rules, workspace.Rules),
		Agent:      mergeAgentTuning(global.Agent, workspace.Agent),
	}
	return merged
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

func mergeMCPServers(global, workspace map[string]MCPServer) map[string]MCPServer {
	merged := make(map[string]MCPServer, len(global)+len(workspace))
	for name, srv := range global {
		merged[name] = srv
	}
	for name, srv := range workspace {
		merged[name] = srv // workspace overrides global by name
	}
	if len(merged) == 0 {
		return nil
	}
	return merged
}

func mergeRules(global, workspace Rules) Rules {
	content := global.Content
	if workspace.Content != "" {
		if content != "" {
			content = content + "\n\n" + workspace.Content
		} else {
			content = workspace.Content
		}
	}
	files := append(append([]string{}, global.RulesFiles...), workspace.RulesFiles...)
	r := Rules{Content: content, RulesFiles: files}
	if workspace.RulesFile != "" {
		r.RulesFile = workspace.RulesFile
	} else {
		r.RulesFile = global.RulesFile
	}
	return r
}

func mergeAgentTuning(global, workspace AgentTuning) AgentTuning {
	out := global
	if workspace.MaxIterations != nil {
		out.MaxIterations = workspace.MaxIterations
	}
	if workspace.MaxTokenBudget != nil {
		out.MaxTokenBudget = workspace.MaxTokenBudget
	}
	if workspace.ThinkingEnabled != nil {
		out.ThinkingEnabled = workspace.ThinkingEnabled
	}
	if workspace.AutoSummaryThreshold != nil {
		out.AutoSummaryThreshold = workspace.AutoSummaryThreshold
	}
	return out
}
