package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestManagerLoadMergesProjectOverUser(t *testing.T) {
	userDir := t.TempDir()
	projectDir := t.TempDir()

	writeJSON(t, filepath.Join(userDir, "settings.json"), map[string]any{
		"theme": "dark", "max_turns": 5, "backend": "ollama",
	})
	writeJSON(t, filepath.Join(projectDir, ".orbitx", "settings.json"), map[string]any{
		"max_turns": 12,
	})

	mgr := NewManager()
	if err := mgr.Load(userDir, projectDir); err != nil {
		t.Fatalf("Load: %v", err)
	}

	cfg := mgr.Get()
	if cfg.Theme != "dark" {
		t.Errorf("Theme = %q, want dark (inherited from user config)", cfg.Theme)
	}
	if cfg.MaxTurns != 12 {
		t.Errorf("MaxTurns = %d, want 12 (project overrides user)", cfg.MaxTurns)
	}
	if cfg.Backend != "ollama" {
		t.Errorf("Backend = %q, want ollama (inherited from user config)", cfg.Backend)
	}
}

func TestManagerLoadDefaultsBackendToClaude(t *testing.T) {
	mgr := NewManager()
	if err := mgr.Load(t.TempDir(), t.TempDir()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := mgr.Get().Backend; got != "claude" {
		t.Errorf("Backend = %q, want claude default", got)
	}
}

func TestManagerLoadToleratesMissingFiles(t *testing.T) {
	mgr := NewManager()
	if err := mgr.Load(filepath.Join(t.TempDir(), "nonexistent"), filepath.Join(t.TempDir(), "nonexistent")); err != nil {
		t.Fatalf("Load should tolerate missing config files: %v", err)
	}
}
