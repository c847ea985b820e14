// Package config provides application settings merged from config.yaml and
// environment variables.
//
// Settings are created via Load() which handles:
// - Config file discovery across the given search paths
// - Environment overrides with the CERBERUS_ prefix
// - Default value application
//
// API keys never live in the config file; providers read them from their
// own environment variables (OPENAI_API_KEY and friends).

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings holds all application configuration.
type Settings struct {
	API          APIConfig          `mapstructure:"api"`
	Paths        PathsConfig        `mapstructure:"paths"`
	Filters      FiltersConfig      `mapstructure:"filters"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
}

// APIConfig selects the model platform and its connection parameters.
type APIConfig struct {
	Platform  string                    `mapstructure:"platform"`
	Timeout   time.Duration             `mapstructure:"timeout"`
	Platforms map[string]PlatformConfig `mapstructure:"platforms"`
}

// PlatformConfig holds per-platform overrides.
type PlatformConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	LLMModel    string `mapstructure:"llm_model"`
	ServiceTier string `mapstructure:"service_tier"`
}

// PathsConfig holds filesystem locations.
type PathsConfig struct {
	MaterialsDBPath string `mapstructure:"materials_db_path"`
	LogDir          string `mapstructure:"log_dir"`
}

// FiltersConfig holds the input and output filter settings.
type FiltersConfig struct {
	Injection FilterConfig `mapstructure:"injection"`
	PII       FilterConfig `mapstructure:"pii"`
}

// FilterConfig configures one security filter.
type FilterConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	FailClosed bool   `mapstructure:"fail_closed"`
	Model      string `mapstructure:"model"`
}

// OrchestratorConfig bounds the model/tool loop.
type OrchestratorConfig struct {
	MaxRounds      int           `mapstructure:"max_rounds"`
	MaxRetries     int           `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

// LoaderOptions describes how configuration should be discovered.
type LoaderOptions struct {
	ConfigPaths []string
	FileName    string
	EnvPrefix   string
}

// Load returns the merged configuration from files and environment variables.
func Load(opts LoaderOptions) (Settings, error) {
	v := viper.New()

	name := opts.FileName
	if name == "" {
		name = "config"
	}

	prefix := opts.EnvPrefix
	if prefix == "" {
		prefix = "CERBERUS"
	}
	v.SetEnvPrefix(prefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AllowEmptyEnv(true)

	setDefaults(v)

	configFile := locateConfigFile(name, opts.ConfigPaths)
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return Settings{}, fmt.Errorf("unmarshal config: %w", err)
	}

	return settings, nil
}

// Platform returns the configured platform's overrides, which may be empty.
func (s Settings) Platform() PlatformConfig {
	return s.API.Platforms[s.API.Platform]
}

func locateConfigFile(name string, paths []string) string {
	searchPaths := append([]string{}, paths...)
	searchPaths = append(searchPaths, ".")
	for _, dir := range searchPaths {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name+".yaml")
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.platform", "openai")
	v.SetDefault("api.timeout", "15m")

	v.SetDefault("paths.materials_db_path", "data/materials.db")
	v.SetDefault("paths.log_dir", "daily_logs")

	v.SetDefault("filters.injection.enabled", true)
	v.SetDefault("filters.injection.fail_closed", false)
	v.SetDefault("filters.pii.enabled", true)
	v.SetDefault("filters.pii.fail_closed", false)

	v.SetDefault("orchestrator.max_rounds", 16)
	v.SetDefault("orchestrator.max_retries", 8)
	v.SetDefault("orchestrator.initial_backoff", "1ms")
	v.SetDefault("orchestrator.max_backoff", "5s")
}
