package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestDefaultPopulatesEveryDefault(t *testing.T) {
	cfg := Default()

	if cfg.Pool.Capacity != 3 {
		t.Errorf("pool.capacity = %d, want 3", cfg.Pool.Capacity)
	}
	if len(cfg.Pool.Servers) != 5 {
		t.Errorf("pool.servers = %d, want 5 (one per category)", len(cfg.Pool.Servers))
	}
	if cfg.Selection.FallbackAgent != "medical_literature_search" {
		t.Errorf("selection.fallback_agent = %q", cfg.Selection.FallbackAgent)
	}
	if cfg.Safety.Mode != SafetyRedact {
		t.Errorf("safety.mode = %q, want redact", cfg.Safety.Mode)
	}
	if cfg.LLM.BaseURL == "" {
		t.Error("expected llm.base_url to default")
	}
}

func TestDefaultToolServersCoverEveryCategory(t *testing.T) {
	cfg := Default()
	seen := map[string]bool{}
	for _, s := range cfg.Pool.Servers {
		seen[s.Category] = true
		if s.Command == "" {
			t.Errorf("server %q has no command", s.ID)
		}
	}
	for _, category := range []string{"search", "pharmaceutical", "clinical", "ner", "general"} {
		if !seen[category] {
			t.Errorf("expected a default server for category %q", category)
		}
	}
}

func TestLoadAppliesDefaultsOnPartialConfig(t *testing.T) {
	path := writeConfig(t, `
pool:
  capacity: 7
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Pool.Capacity != 7 {
		t.Errorf("pool.capacity = %d, want 7", cfg.Pool.Capacity)
	}
	if cfg.Timeouts.PerAgentDefaultS != 45.0 {
		t.Errorf("timeouts.per_agent_default_s = %v, want default 45.0", cfg.Timeouts.PerAgentDefaultS)
	}
}

func TestLoadRejectsInvalidSafetyMode(t *testing.T) {
	path := writeConfig(t, `
safety:
  mode: not_a_real_mode
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for unknown safety.mode")
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadRejectsDefaultExceedingHardCap(t *testing.T) {
	path := writeConfig(t, `
timeouts:
  per_agent_default_s: 200
  per_agent_hard_cap_s: 120
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "hard_cap") {
		t.Errorf("expected hard_cap error, got %v", err)
	}
}

func TestLoadHonorsExplicitToolServers(t *testing.T) {
	path := writeConfig(t, `
pool:
  servers:
    - id: search
      category: search
      command: /usr/local/bin/pubmed-server
      args: ["--mode", "stdio"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Pool.Servers) != 1 {
		t.Fatalf("expected exactly the one configured server, got %d", len(cfg.Pool.Servers))
	}
	if cfg.Pool.Servers[0].Command != "/usr/local/bin/pubmed-server" {
		t.Errorf("unexpected command: %q", cfg.Pool.Servers[0].Command)
	}
}
