// Package config loads the orchestration core's configuration surface
// (spec.md §6) from a YAML file, following the teacher's one-struct-per-concern
// convention (internal/config/config.go in the nexus teacher).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the orchestration core.
type Config struct {
	Pool       PoolConfig       `yaml:"pool"`
	Timeouts   TimeoutsConfig   `yaml:"timeouts"`
	Selection  SelectionConfig  `yaml:"selection"`
	Routing    RoutingConfig    `yaml:"routing"`
	Synthesis  SynthesisConfig  `yaml:"synthesis"`
	Safety     SafetyConfig     `yaml:"safety"`
	Cache      CacheConfig      `yaml:"cache"`
	LLM        LLMConfig        `yaml:"llm"`
	NER        NERConfig        `yaml:"ner"`
	Logging    LoggingConfig    `yaml:"logging"`
	Audit      AuditConfig      `yaml:"audit"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// PoolConfig configures the tool transport connection pool (C1).
type PoolConfig struct {
	Capacity             int                `yaml:"capacity"`
	AcquireTimeoutS      float64            `yaml:"acquire_timeout_s"`
	SharedAcrossSessions bool               `yaml:"shared_across_sessions"`
	Servers              []ToolServerConfig `yaml:"servers"`
}

// ToolServerConfig describes one tool-server subprocess the pool may
// spawn, one per category (search, pharmaceutical, clinical, ner,
// general per models.ToolCategory).
type ToolServerConfig struct {
	ID       string            `yaml:"id"`
	Category string            `yaml:"category"`
	Command  string            `yaml:"command"`
	Args     []string          `yaml:"args"`
	Env      map[string]string `yaml:"env"`
	WorkDir  string            `yaml:"work_dir"`
}

// TimeoutsConfig configures deadlines across the system (§5).
type TimeoutsConfig struct {
	RouterS           float64 `yaml:"router_s"`
	PerAgentDefaultS  float64 `yaml:"per_agent_default_s"`
	PerAgentHardCapS  float64 `yaml:"per_agent_hard_cap_s"`
	PerToolS          float64 `yaml:"per_tool_s"`
	PoolAcquireS      float64 `yaml:"pool_acquire_s"`
	SubprocessStartS  float64 `yaml:"subprocess_start_s"`
	GracefulShutdownS float64 `yaml:"graceful_shutdown_s"`
}

// SelectionConfig configures agent-selection fallback behavior (§4.7).
type SelectionConfig struct {
	EnableFallback bool   `yaml:"enable_fallback"`
	FallbackAgent  string `yaml:"fallback_agent"`
}

// RoutingConfig configures dispatch arbitration (§4.7, §9).
type RoutingConfig struct {
	AllowParallelHelpers bool            `yaml:"allow_parallel_helpers"`
	AlwaysRun            map[string]bool `yaml:"always_run"`
	MaxConcurrentAgents  int             `yaml:"max_concurrent_agents"`
}

// SynthesisConfig configures C8's merge policy.
type SynthesisConfig struct {
	Prefer        []string `yaml:"prefer"`
	AgentPriority []string `yaml:"agent_priority"`
}

// SafetyMode selects the PHI handling policy.
type SafetyMode string

const (
	SafetyZeroTolerance SafetyMode = "zero_tolerance"
	SafetyRedact        SafetyMode = "redact"
)

// SafetyConfig configures C4.
type SafetyConfig struct {
	Mode         SafetyMode `yaml:"mode"`
	ExtendedPHI  []string   `yaml:"extended_phi"`
}

// CacheConfig configures C3.
type CacheConfig struct {
	PerSessionMaxEntries int `yaml:"per_session_max_entries"`
}

// LLMConfig configures the local LLM HTTP client.
type LLMConfig struct {
	BaseURL string `yaml:"base_url"`
}

// NERConfig configures the NER HTTP client.
type NERConfig struct {
	BaseURL string `yaml:"base_url"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	Format string `yaml:"format"` // "json" | "text"
	Level  string `yaml:"level"`
}

// AuditConfig configures the audit event log (C9).
type AuditConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Output     string  `yaml:"output"`
	SampleRate float64 `yaml:"sample_rate"`
}

// TelemetryConfig configures the otel tracer provider.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// Load reads and parses a YAML config file, applying defaults for any
// unset field. A ConfigurationError (defined below) is returned for
// structurally invalid input; this is the only error surfaced directly
// to the caller per spec.md §7.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigurationError{Cause: fmt.Errorf("read config: %w", err)}
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &ConfigurationError{Cause: fmt.Errorf("parse config: %w", err)}
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, &ConfigurationError{Cause: err}
	}

	return &cfg, nil
}

// Default returns a Config populated entirely with spec.md §6 defaults.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Pool.Capacity <= 0 {
		cfg.Pool.Capacity = 3
	}
	if cfg.Pool.AcquireTimeoutS <= 0 {
		cfg.Pool.AcquireTimeoutS = 5.0
	}
	if len(cfg.Pool.Servers) == 0 {
		cfg.Pool.Servers = defaultToolServers()
	}

	if cfg.Timeouts.RouterS <= 0 {
		cfg.Timeouts.RouterS = 5.0
	}
	if cfg.Timeouts.PerAgentDefaultS <= 0 {
		cfg.Timeouts.PerAgentDefaultS = 45.0
	}
	if cfg.Timeouts.PerAgentHardCapS <= 0 {
		cfg.Timeouts.PerAgentHardCapS = 120.0
	}
	if cfg.Timeouts.PerToolS <= 0 {
		cfg.Timeouts.PerToolS = 30.0
	}
	if cfg.Timeouts.PoolAcquireS <= 0 {
		cfg.Timeouts.PoolAcquireS = 5.0
	}
	if cfg.Timeouts.SubprocessStartS <= 0 {
		cfg.Timeouts.SubprocessStartS = 10.0
	}
	if cfg.Timeouts.GracefulShutdownS <= 0 {
		cfg.Timeouts.GracefulShutdownS = 5.0
	}

	if cfg.Selection.FallbackAgent == "" {
		cfg.Selection.FallbackAgent = "medical_literature_search"
	}

	if cfg.Routing.MaxConcurrentAgents <= 0 {
		cfg.Routing.MaxConcurrentAgents = 3
	}
	if cfg.Routing.AlwaysRun == nil {
		cfg.Routing.AlwaysRun = map[string]bool{}
	}

	if len(cfg.Synthesis.AgentPriority) == 0 {
		cfg.Synthesis.AgentPriority = []string{
			"medical_literature_search",
			"clinical_research",
			"document_processor",
			"intake",
		}
	}
	if len(cfg.Synthesis.Prefer) == 0 {
		cfg.Synthesis.Prefer = []string{"doi", "pmid", "url", "title_year"}
	}

	if cfg.Safety.Mode == "" {
		cfg.Safety.Mode = SafetyRedact
	}

	if cfg.Cache.PerSessionMaxEntries <= 0 {
		cfg.Cache.PerSessionMaxEntries = 256
	}

	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "http://host:11434"
	}

	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	if cfg.Audit.SampleRate <= 0 {
		cfg.Audit.SampleRate = 1.0
	}
	if cfg.Audit.Output == "" {
		cfg.Audit.Output = "stdout"
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "clinical-orchestrator"
	}
}

// defaultToolServers describes one subprocess per tool category, each
// launching the same generic tool-server binary with a --category flag
// (the mcp teacher pattern of one command per server, generalized here
// to one binary handling several categories via args rather than one
// binary per tool).
func defaultToolServers() []ToolServerConfig {
	categories := []string{"search", "pharmaceutical", "clinical", "ner", "general"}
	servers := make([]ToolServerConfig, 0, len(categories))
	for _, category := range categories {
		servers = append(servers, ToolServerConfig{
			ID:       category,
			Category: category,
			Command:  "clinorch-toolserver",
			Args:     []string{"--category", category},
		})
	}
	return servers
}

func (c *Config) validate() error {
	if c.Pool.Capacity < 1 {
		return fmt.Errorf("pool.capacity must be >= 1")
	}
	if c.Timeouts.PerAgentDefaultS > c.Timeouts.PerAgentHardCapS {
		return fmt.Errorf("timeouts.per_agent_default_s must not exceed timeouts.per_agent_hard_cap_s")
	}
	if c.Safety.Mode != SafetyZeroTolerance && c.Safety.Mode != SafetyRedact {
		return fmt.Errorf("safety.mode must be zero_tolerance or redact, got %q", c.Safety.Mode)
	}
	return nil
}

// Duration helpers convert the float-seconds config fields into time.Duration.

func (t TimeoutsConfig) Router() time.Duration           { return secs(t.RouterS) }
func (t TimeoutsConfig) PerAgentDefault() time.Duration  { return secs(t.PerAgentDefaultS) }
func (t TimeoutsConfig) PerAgentHardCap() time.Duration  { return secs(t.PerAgentHardCapS) }
func (t TimeoutsConfig) PerTool() time.Duration          { return secs(t.PerToolS) }
func (t TimeoutsConfig) PoolAcquire() time.Duration      { return secs(t.PoolAcquireS) }
func (t TimeoutsConfig) SubprocessStart() time.Duration  { return secs(t.SubprocessStartS) }
func (t TimeoutsConfig) GracefulShutdown() time.Duration { return secs(t.GracefulShutdownS) }
func (p PoolConfig) AcquireTimeout() time.Duration       { return secs(p.AcquireTimeoutS) }

func secs(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// ConfigurationError marks a startup-only configuration failure
// (spec.md §7: the only error that fails initialization).
type ConfigurationError struct {
	Cause error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %v", e.Cause)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}
