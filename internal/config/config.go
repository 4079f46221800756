// Package config loads flowctl's startup configuration (spec.md §6.2):
// context/cache knobs, orchestrator/session knobs, and the full per-policy
// settings table, all viper-backed in the same nested-struct-plus-defaults
// style as the teacher's internal/config.Config / Defaults() /
// WriteDefaultConfig.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/flowctl/flowctl/internal/log"
	"github.com/flowctl/flowctl/internal/policy"
	"github.com/flowctl/flowctl/internal/scout"
	"github.com/flowctl/flowctl/internal/session"
)

// ContextConfig holds the Context Scout's §6.2 context.* keys.
type ContextConfig struct {
	CacheTTLSeconds  int    `mapstructure:"cache_ttl_seconds"`
	MaxRecentCommits int    `mapstructure:"max_recent_commits"`
	ProjectID        string `mapstructure:"project_id"`
}

// OrchestratorConfig holds the Orchestrator/Session Manager's §6.2
// orchestrator.* keys.
type OrchestratorConfig struct {
	MaxSessions          int `mapstructure:"max_sessions"`
	SessionTimeoutSeconds int `mapstructure:"session_timeout_seconds"`
	EventChannelCapacity  int `mapstructure:"event_channel_capacity"`
	AbandonmentDays       int `mapstructure:"abandonment_days"`
}

// PoliciesConfig wraps the top-level policies.enabled/fail_fast switches
// alongside every built-in's own nested config, matching policy.Config's
// shape so it can be embedded directly.
type PoliciesConfig struct {
	Enabled bool `mapstructure:"enabled"`
	policy.Config `mapstructure:",squash"`
}

// Config is flowctl's full startup configuration.
type Config struct {
	Context      ContextConfig      `mapstructure:"context"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Policies     PoliciesConfig     `mapstructure:"policies"`

	// DatabasePath is where the sqlite workflow database lives. Not part of
	// spec.md §6.2's documented keys (persistence location is a deployment
	// concern, not a core policy), but every real invocation needs one, so
	// it rides along on the same config file.
	DatabasePath string `mapstructure:"database_path"`
}

// Defaults returns spec.md §6.2's documented defaults.
func Defaults() Config {
	scoutDefaults := scout.DefaultConfig()
	sessionDefaults := session.DefaultConfig()
	return Config{
		Context: ContextConfig{
			CacheTTLSeconds:  int(scoutDefaults.CacheTTL.Seconds()),
			MaxRecentCommits: scoutDefaults.MaxRecentCommits,
		},
		Orchestrator: OrchestratorConfig{
			MaxSessions:           sessionDefaults.MaxSessions,
			SessionTimeoutSeconds: int(sessionDefaults.SessionTimeout.Seconds()),
			EventChannelCapacity:  256,
			AbandonmentDays:       sessionDefaults.AbandonmentDays,
		},
		Policies: PoliciesConfig{
			Enabled: true,
			Config:  policy.DefaultConfig(),
		},
		DatabasePath: ".flowctl/workflow.db",
	}
}

// ScoutConfig translates the context.* keys into scout.Config.
func (c Config) ScoutConfig() scout.Config {
	d := scout.DefaultConfig()
	cfg := scout.Config{
		CacheTTL:         d.CacheTTL,
		IdleTTL:          d.IdleTTL,
		StaleThreshold:   d.StaleThreshold,
		MaxRecentCommits: d.MaxRecentCommits,
	}
	if c.Context.CacheTTLSeconds > 0 {
		cfg.CacheTTL = secondsToDuration(c.Context.CacheTTLSeconds)
		cfg.IdleTTL = cfg.CacheTTL / 3
	}
	if c.Context.MaxRecentCommits > 0 {
		cfg.MaxRecentCommits = c.Context.MaxRecentCommits
	}
	return cfg
}

// SessionConfig translates the orchestrator.* keys into session.Config.
func (c Config) SessionConfig() session.Config {
	d := session.DefaultConfig()
	cfg := d
	if c.Orchestrator.MaxSessions > 0 {
		cfg.MaxSessions = c.Orchestrator.MaxSessions
	}
	if c.Orchestrator.SessionTimeoutSeconds > 0 {
		cfg.SessionTimeout = secondsToDuration(c.Orchestrator.SessionTimeoutSeconds)
	}
	if c.Orchestrator.AbandonmentDays > 0 {
		cfg.AbandonmentDays = c.Orchestrator.AbandonmentDays
	}
	return cfg
}

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}

// Load reads configuration from path (if non-empty), falling back to
// ./.flowctl/config.yaml and $HOME/.config/flowctl/config.yaml, the same
// lookup order the teacher's cmd/root.go uses for .perles/config.yaml. If
// no file is found anywhere, the documented defaults apply; no file is
// written.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Defaults())

	candidate := path
	if candidate == "" {
		candidate = ".flowctl/config.yaml"
	}

	if _, err := os.Stat(candidate); err != nil {
		if path == "" {
			if home, herr := os.UserHomeDir(); herr == nil {
				candidate = filepath.Join(home, ".config", "flowctl", "config.yaml")
			}
		}
	}

	if _, err := os.Stat(candidate); err != nil {
		log.Debug(log.CatConfig, "no config file found, using defaults")
		cfg := Defaults()
		if err := v.Unmarshal(&cfg); err != nil {
			return Config{}, fmt.Errorf("unmarshaling default config: %w", err)
		}
		return cfg, nil
	}

	v.SetConfigFile(candidate)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", candidate, err)
	}
	log.Info(log.CatConfig, "config loaded", "path", v.ConfigFileUsed())

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("context.cache_ttl_seconds", d.Context.CacheTTLSeconds)
	v.SetDefault("context.max_recent_commits", d.Context.MaxRecentCommits)
	v.SetDefault("context.project_id", d.Context.ProjectID)

	v.SetDefault("orchestrator.max_sessions", d.Orchestrator.MaxSessions)
	v.SetDefault("orchestrator.session_timeout_seconds", d.Orchestrator.SessionTimeoutSeconds)
	v.SetDefault("orchestrator.event_channel_capacity", d.Orchestrator.EventChannelCapacity)
	v.SetDefault("orchestrator.abandonment_days", d.Orchestrator.AbandonmentDays)

	v.SetDefault("policies.enabled", d.Policies.Enabled)
	v.SetDefault("policies.fail_fast", d.Policies.FailFast)

	v.SetDefault("database_path", d.DatabasePath)
}

// WriteDefaultConfig creates a config file at path with the documented
// defaults, mirroring the teacher's WriteDefaultConfig.
func WriteDefaultConfig(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	log.Info(log.CatConfig, "created default config", "path", path)
	return nil
}

// DefaultConfigTemplate returns a commented YAML template a new project can
// start from.
func DefaultConfigTemplate() string {
	return `# flowctl workflow core configuration

database_path: .flowctl/workflow.db

context:
  cache_ttl_seconds: 30
  max_recent_commits: 10
  # project_id: my-project

orchestrator:
  max_sessions: 10
  session_timeout_seconds: 3600
  event_channel_capacity: 256
  abandonment_days: 14

policies:
  enabled: true
  fail_fast: false

  wip_limit:
    enabled: true
    max_in_progress: 3

  clean_worktree:
    enabled: true
    allow_untracked: true

  branch_naming:
    enabled: true
    pattern: '^(feature|fix|chore)/[a-z0-9-]+$'

  require_changelog:
    enabled: false
    filename: CHANGELOG.md

  require_conventional_commit:
    enabled: true
    pattern: '^(feat|fix|chore|docs|test|refactor|perf|style|build|ci)(\([a-z0-9-]+\))?: .+'

  require_code_review:
    enabled: false
    min_approvals: 1

  code_coverage_threshold:
    enabled: false
    min_percent: 80

  security_scan:
    enabled: false
    max_high_severity: 0

  documentation_check:
    enabled: false

  architecture_validation:
    enabled: false
    command: ""
    timeout: 60s

  performance_regression:
    enabled: false
    max_regression_percent: 10

  require_tests:
    enabled: true
    command: ""
    timeout: 120s

  version_change_gate:
    enabled: false
    min_approvals: 1
    allowed_branches: [main]

  freshness_gate:
    enabled: true
    max_stale_age_ms: 300000
`
}
