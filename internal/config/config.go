// Package config loads and merges OrbitX's layered configuration: a
// user-level settings file and a project-level settings file, merged
// project-over-user the way the teacher's Manager does, extended with the
// permissions/mcpServers/rules/agent settings schema from spec.md §6.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config holds the process-level runtime configuration (paths, daemon
// ports) distinct from the user-facing Settings document.
type Config struct {
	Dir               string `json:"-"` // state directory, e.g. ~/.orbitx
	Theme             string `json:"theme,omitempty"`
	AutoScroll        bool   `json:"auto_scroll,omitempty"`
	MaxTurns          int    `json:"max_turns,omitempty"`
	Timeout           int    `json:"timeout,omitempty"`
	BashTimeout       int    `json:"bash_timeout,omitempty"`
	Model             string `json:"model,omitempty"`
	APIKey            string `json:"api_key,omitempty"`
	BaseURL           string `json:"base_url,omitempty"`
	DefaultMaxRetries int    `json:"default_max_retries,omitempty"`

	// Backend selects which subprocess CLI backs the ReAct executor when
	// APIKey is unset: "claude" (default), "codex", "cursor", "gemini", or
	// "ollama". Ignored when APIKey is set, since that case talks to the
	// Anthropic API directly instead of shelling out.
	Backend string `json:"backend,omitempty"`

	// EmbedProvider selects internal/embedding.NewFromProvider's backend for
	// the vector index: "auto" (default), "ollama", "openai", or
	// "openai-sdk" (github.com/sashabaranov/go-openai client instead of the
	// hand-rolled HTTP request).
	EmbedProvider string `json:"embed_provider,omitempty"`
	// EmbedModel and EmbedBaseURL are passed through to NewFromProvider
	// verbatim; both may be empty to take that provider's own defaults.
	EmbedModel   string `json:"embed_model,omitempty"`
	EmbedBaseURL string `json:"embed_base_url,omitempty"`

	// VectorBackend selects the vectorindex.Index implementation: "memory"
	// (default, spec.md §4.7's brute-force in-process index) or "qdrant"
	// (internal/vectorindex.QdrantIndex, forwarding to a remote collection).
	VectorBackend    string `json:"vector_backend,omitempty"`
	QdrantURL        string `json:"qdrant_url,omitempty"`
	QdrantCollection string `json:"qdrant_collection,omitempty"`
}

// DBPath returns the path to the SQLite database file under Dir.
func (c *Config) DBPath() string { return filepath.Join(c.Dir, "orbitx.db") }

// SocketPath returns the path to the daemon's control-surface unix socket.
func (c *Config) SocketPath() string { return filepath.Join(c.Dir, "orbitd.sock") }

// MemoryDir returns the directory holding project-context / memory files.
func (c *Config) MemoryDir() string { return filepath.Join(c.Dir, "memory") }

// SkillsDir returns the directory holding skill markdown files.
func (c *Config) SkillsDir() string { return filepath.Join(c.Dir, "skills") }

// BlobDir returns the directory holding the content-addressed checkpoint
// blob store.
func (c *Config) BlobDir() string { return filepath.Join(c.Dir, "blobs") }

// VectorDir returns the directory holding per-file persisted vector data.
func (c *Config) VectorDir() string { return filepath.Join(c.Dir, "vectors") }

// ShellRCDir returns the directory holding the generated shell-integration
// snippet files (spec.md §4.3) every spawned pane is pointed at via
// BASH_ENV/ZDOTDIR/-File, per shell type.
func (c *Config) ShellRCDir() string { return filepath.Join(c.Dir, "shellrc") }

// SnapshotDir returns the directory holding per-session msgpack state
// snapshots (spec.md §4.5 component G), one file per session ID.
func (c *Config) SnapshotDir() string { return filepath.Join(c.Dir, "snapshots") }

// AgentsDir returns the directory holding agent-config markdown files
// (spec.md §6's "Agent config markdown" frontmatter).
func (c *Config) AgentsDir() string { return filepath.Join(c.Dir, "agents") }

type Manager struct {
	userConfig    *Config
	projectConfig *Config
	merged        *Config

	userSettings    *Settings
	projectSettings *Settings
	mergedSettings  *Settings
}

func NewManager() *Manager {
	return &Manager{
		userConfig:      &Config{},
		projectConfig:   &Config{},
		merged:          &Config{},
		userSettings:    &Settings{},
		projectSettings: &Settings{},
		mergedSettings:  &Settings{},
	}
}

func (m *Manager) Load(userConfigDir, projectDir string) error {
	if err := m.loadConfig(filepath.Join(userConfigDir, "settings.json"), m.userConfig); err != nil {
		return err
	}
	if err := m.loadConfig(filepath.Join(projectDir, ".orbitx", "settings.json"), m.projectConfig); err != nil {
		return err
	}
	m.mergeConfigs()

	if err := m.loadSettings(filepath.Join(userConfigDir, "orbitx.settings.json"), m.userSettings); err != nil {
		return err
	}
	if err := m.loadSettings(filepath.Join(projectDir, ".orbitx", "orbitx.settings.json"), m.projectSettings); err != nil {
		return err
	}
	m.mergedSettings = MergeSettings(m.userSettings, m.projectSettings)

	return nil
}

func (m *Manager) loadConfig(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, config)
}

func (m *Manager) loadSettings(path string, s *Settings) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, s)
}

func (m *Manager) mergeConfigs() {
	m.merged = &Config{
		Dir:               m.projectConfig.Dir,
		Theme:             firstNonEmpty(m.projectConfig.Theme, m.userConfig.Theme, "default"),
		AutoScroll:        firstTrue(m.projectConfig.AutoScroll, m.userConfig.AutoScroll, true),
		MaxTurns:          firstNonZero(m.projectConfig.MaxTurns, m.userConfig.MaxTurns, 10),
		Timeout:           firstNonZero(m.projectConfig.Timeout, m.userConfig.Timeout, 300),
		BashTimeout:       firstNonZero(m.projectConfig.BashTimeout, m.userConfig.BashTimeout, 30),
		Model:             firstNonEmpty(m.projectConfig.Model, m.userConfig.Model, ""),
		APIKey:            firstNonEmpty(m.projectConfig.APIKey, m.userConfig.APIKey, ""),
		BaseURL:           firstNonEmpty(m.projectConfig.BaseURL, m.userConfig.BaseURL, ""),
		DefaultMaxRetries: firstNonZero(m.projectConfig.DefaultMaxRetries, m.userConfig.DefaultMaxRetries, 3),
		Backend:           firstNonEmpty(m.projectConfig.Backend, m.userConfig.Backend, "claude"),
		EmbedProvider:     firstNonEmpty(m.projectConfig.EmbedProvider, m.userConfig.EmbedProvider, "auto"),
		EmbedModel:        firstNonEmpty(m.projectConfig.EmbedModel, m.userConfig.EmbedModel, ""),
		EmbedBaseURL:      firstNonEmpty(m.projectConfig.EmbedBaseURL, m.userConfig.EmbedBaseURL, ""),
		VectorBackend:     firstNonEmpty(m.projectConfig.VectorBackend, m.userConfig.VectorBackend, "memory"),
		QdrantURL:         firstNonEmpty(m.projectConfig.QdrantURL, m.userConfig.QdrantURL, ""),
		QdrantCollection:  firstNonEmpty(m.projectConfig.QdrantCollection, m.userConfig.QdrantCollection, "orbitx"),
	}
}

func firstNonEmpty(project, user, def string) string {
	if project != "" {
		return project
	}
	if user != "" {
		return user
	}
	return def
}

func firstTrue(project, user, def bool) bool {
	if project {
		return project
	}
	if user {
		return user
	}
	return def
}

func firstNonZero(project, user, def int) int {
	if project != 0 {
		return project
	}
	if user != 0 {
		return user
	}
	return def
}

func (m *Manager) Get() *Config         { return m.merged }
func (m *Manager) Settings() *Settings  { return m.mergedSettings }

func (m *Manager) SaveUserConfig(userConfigDir string) error {
	if err := os.MkdirAll(userConfigDir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m.userConfig, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(userConfigDir, "settings.json"), data, 0644)
}

func (m *Manager) SaveProjectConfig(projectDir string) error {
	orbitDir := filepath.Join(projectDir, ".orbitx")
	if err := os.MkdirAll(orbitDir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m.projectConfig, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(orbitDir, "settings.json"), data, 0644)
}
