// Package config loads the CianaParrot runtime configuration. Full semantic
// validation of provider/channel configuration is out of scope for this
// runtime (the agent that consumes most of those settings is an external
// collaborator); this package carries only the settings the four in-scope
// subsystems need to wire themselves up.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Config is the root configuration for the CianaParrot runtime.
type Config struct {
	Agent     AgentConfig         `json:"agent"`
	Scheduler SchedulerConfig     `json:"scheduler"`
	Gateway   GatewayConfig       `json:"gateway"`
	Bridge    BridgeManagerConfig `json:"bridge"`
	Router    RouterConfig        `json:"router"`
	Storage   StorageConfig       `json:"storage"`
	Telegram  TelegramConfig      `json:"telegram"`
}

// AgentConfig locates the external agent CLI the runtime shells out to for
// every non-bridge turn.
type AgentConfig struct {
	CLIPath        string  `json:"cli_path"`
	TimeoutSeconds float64 `json:"timeout_seconds,omitempty"`
}

// SchedulerConfig gates and paces the scheduler's due-check loop.
type SchedulerConfig struct {
	Enabled      bool    `json:"enabled"`
	PollInterval float64 `json:"poll_interval"` // seconds, >= 1
}

// GatewayConfig configures the Host Gateway HTTP server.
type GatewayConfig struct {
	ListenAddr     string                        `json:"listen_addr"`
	Token          string                        `json:"token"`
	DefaultTimeout float64                       `json:"default_timeout"`
	RateLimitRPS   float64                       `json:"rate_limit_rps"`
	Bridges        map[string]BridgeConfig       `json:"bridges"`
}

// BridgeConfig is the on-disk shape of a BridgeDefinition before real-path
// resolution at load time.
type BridgeConfig struct {
	AllowedCommands []string `json:"allowed_commands"`
	AllowedCwd      []string `json:"allowed_cwd"`
}

// BridgeManagerConfig configures the Bridge Session Manager's external CLI.
type BridgeManagerConfig struct {
	CLIPath        string  `json:"cli_path"`
	SessionDir     string  `json:"session_dir"`
	PermissionMode string  `json:"permission_mode,omitempty"`
	TimeoutSeconds float64 `json:"timeout_seconds,omitempty"`
	GatewayURL     string  `json:"gateway_url,omitempty"` // empty = execute locally
	GatewayBridge  string  `json:"gateway_bridge,omitempty"`
}

// RouterConfig configures Message Router trigger/authorization behavior.
type RouterConfig struct {
	TriggerPrefix string              `json:"trigger_prefix"`
	Allowlists    map[string][]string `json:"allowlists"` // channel -> user ids, empty = allow all
}

// StorageConfig locates the JSON/JSONL files the durable stores own.
type StorageConfig struct {
	TaskFile           string `json:"task_file"`
	UserStateFile      string `json:"user_state_file"`
	SessionCountersFile string `json:"session_counters_file"`
	TurnLogDir         string `json:"turn_log_dir"`
}

// TelegramConfig configures the optional Telegram channel adapter.
type TelegramConfig struct {
	Token          string   `json:"token"`
	AllowFrom      []string `json:"allow_from"`
	RequireMention bool     `json:"require_mention"`
}

// Default returns a Config with conservative defaults.
func Default() *Config {
	return &Config{
		Agent:     AgentConfig{CLIPath: "agent-cli", TimeoutSeconds: 120},
		Scheduler: SchedulerConfig{Enabled: true, PollInterval: 5},
		Gateway: GatewayConfig{
			ListenAddr:     "127.0.0.1:8787",
			DefaultTimeout: 60,
			RateLimitRPS:   5,
			Bridges:        map[string]BridgeConfig{},
		},
		Router: RouterConfig{
			TriggerPrefix: "!",
			Allowlists:    map[string][]string{},
		},
		Storage: StorageConfig{
			TaskFile:            "data/tasks.json",
			UserStateFile:       "data/user_state.json",
			SessionCountersFile: "data/session_counters.json",
			TurnLogDir:          "data/turns",
		},
	}
}

// Load reads config from a JSON file and overlays a handful of secret env
// vars, the way the teacher overlays provider keys. A missing file is not an
// error: the caller gets defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if cfg.Gateway.Bridges == nil {
		cfg.Gateway.Bridges = map[string]BridgeConfig{}
	}
	if cfg.Router.Allowlists == nil {
		cfg.Router.Allowlists = map[string][]string{}
	}

	return cfg, nil
}

// applyEnvOverrides lets secrets come from the environment instead of the
// config file, matching the teacher's convention of never persisting
// bearer tokens / bot tokens to disk.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CIANAPARROT_GATEWAY_TOKEN"); v != "" {
		c.Gateway.Token = v
	}
	if v := os.Getenv("CIANAPARROT_TELEGRAM_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
}

// ExpandHome expands a leading "~" to the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return home + strings.TrimPrefix(path, "~")
}
