// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// GlobalConfig represents the top-level global static configuration.
// Maps to the `netem-agent:` root key in YAML.
type GlobalConfig struct {
	Control   ControlConfig   `mapstructure:"control"`
	Emulation EmulationConfig `mapstructure:"emulation"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Log       LogConfig       `mapstructure:"log"`
}

// ─── Control Plane ───

// ControlConfig contains local control plane settings.
type ControlConfig struct {
	Socket  string `mapstructure:"socket"`
	PIDFile string `mapstructure:"pid_file"`
}

// ─── Emulation Engine ───

// EmulationConfig contains packet pipeline settings.
type EmulationConfig struct {
	// QueueNum is the netfilter queue the agent binds to. The matching
	// iptables NFQUEUE rules must target the same number.
	QueueNum uint16 `mapstructure:"queue_num"`
	// CycleMS is the pipeline polling interval in milliseconds; buffered
	// packets whose timers expire are released once per cycle.
	CycleMS uint64 `mapstructure:"cycle_ms"`
	// Seed fixes the probability gate RNG for reproducible runs.
	// 0 = random seed.
	Seed uint64 `mapstructure:"seed"`
	// Filter is the initial BPF filter expression; empty captures all.
	Filter string `mapstructure:"filter"`
	// SettingsFile preloads an emulation settings document at startup.
	SettingsFile string `mapstructure:"settings_file"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level"`  // debug / info / warn / error
	Format  string           `mapstructure:"format"` // json / text
	Outputs LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains structured log output destinations.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `netem-agent: ...`.
type configRoot struct {
	NetemAgent GlobalConfig `mapstructure:"netem-agent"`
}

// Load loads configuration from file.
// The YAML file uses `netem-agent:` as root key; env vars use NETEM_AGENT_
// prefix (e.g., NETEM_AGENT_LOG_LEVEL) via the key replacer.
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// No explicit env prefix: the `netem-agent.` key prefix naturally maps
	// to `NETEM_AGENT_` in env vars via the key replacer.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.NetemAgent

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no config file is given.
func Default() *GlobalConfig {
	v := viper.New()
	setDefaults(v)
	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		panic(fmt.Sprintf("default config unmarshal: %v", err))
	}
	cfg := root.NetemAgent
	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return &cfg
}

// setDefaults sets default values for configuration.
// All keys use the "netem-agent." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Control defaults
	v.SetDefault("netem-agent.control.socket", "/var/run/netem-agent.sock")
	v.SetDefault("netem-agent.control.pid_file", "/var/run/netem-agent.pid")

	// Emulation defaults
	v.SetDefault("netem-agent.emulation.queue_num", 0)
	v.SetDefault("netem-agent.emulation.cycle_ms", 10)
	v.SetDefault("netem-agent.emulation.seed", 0)
	v.SetDefault("netem-agent.emulation.filter", "")

	// Metrics defaults
	v.SetDefault("netem-agent.metrics.enabled", true)
	v.SetDefault("netem-agent.metrics.listen", ":9092")
	v.SetDefault("netem-agent.metrics.path", "/metrics")

	// Log defaults
	v.SetDefault("netem-agent.log.level", "info")
	v.SetDefault("netem-agent.log.format", "json")
	v.SetDefault("netem-agent.log.outputs.file.enabled", false)
	v.SetDefault("netem-agent.log.outputs.file.path", "/var/log/netem-agent/netem-agent.log")
	v.SetDefault("netem-agent.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("netem-agent.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("netem-agent.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("netem-agent.log.outputs.file.rotation.compress", true)
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}

	if cfg.Emulation.CycleMS == 0 {
		return fmt.Errorf("emulation.cycle_ms must be positive")
	}
	if cfg.Emulation.CycleMS > 1000 {
		return fmt.Errorf("emulation.cycle_ms %d too coarse (max 1000)", cfg.Emulation.CycleMS)
	}

	if cfg.Control.Socket == "" {
		return fmt.Errorf("control.socket is required")
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Listen == "" {
			return fmt.Errorf("metrics.listen is required when metrics.enabled=true")
		}
		if cfg.Metrics.Path == "" {
			cfg.Metrics.Path = "/metrics"
		}
	}

	return nil
}
