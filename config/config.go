// Package config loads application configuration from a JSON file and
// AUTOPOST_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Mode selects between real providers and canned offline behaviour.
type Mode string

const (
	ModeAuto    Mode = "auto"
	ModeOffline Mode = "offline"
	ModeLive    Mode = "live"
)

// Placeholder credentials shipped in sample configs. They select offline mode
// under ModeAuto.
const (
	PlaceholderLLMKey   = "your-openrouter-api-key"
	PlaceholderImageKey = "your-replicate-api-key"
)

// DefaultPath is where Load looks when no path is given.
const DefaultPath = "config/config.json"

// Config holds the application configuration.
type Config struct {
	Mode      Mode            `mapstructure:"mode"`
	Log       LogConfig       `mapstructure:"log"`
	Storage   StorageConfig   `mapstructure:"storage"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Image     ImageConfig     `mapstructure:"image"`
	Publish   PublishConfig   `mapstructure:"publish"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Server    ServerConfig    `mapstructure:"server"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StorageConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	DSN      string `mapstructure:"dsn"`
	RedisURL string `mapstructure:"redis_url"`
}

// LLMConfig configures the OpenAI-compatible text provider.
type LLMConfig struct {
	Mode    Mode   `mapstructure:"mode"`
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
	Referer string `mapstructure:"referer"`
}

// ImageConfig configures the prediction-style image provider.
type ImageConfig struct {
	Mode         Mode          `mapstructure:"mode"`
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	OfflineDelay time.Duration `mapstructure:"offline_delay"`
}

// PublishConfig holds per-platform endpoints and tokens, keyed by platform
// name. A platform without an endpoint is published in simulated mode.
type PublishConfig struct {
	Mode      Mode              `mapstructure:"mode"`
	Endpoints map[string]string `mapstructure:"endpoints"`
	Tokens    map[string]string `mapstructure:"tokens"`
	Timeout   time.Duration     `mapstructure:"timeout"`
}

type SchedulerConfig struct {
	// Interval enables the background due-post runner when positive.
	Interval time.Duration `mapstructure:"interval"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

var platformKeys = []string{"twitter", "linkedin", "facebook"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", string(ModeAuto))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("storage.driver", "file")
	v.SetDefault("storage.path", "data")
	v.SetDefault("storage.dsn", "autopost.db")
	v.SetDefault("storage.redis_url", "localhost:6379")
	v.SetDefault("llm.mode", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.referer", "")
	v.SetDefault("image.mode", "")
	v.SetDefault("image.api_key", "")
	v.SetDefault("image.base_url", "https://api.replicate.com/v1")
	v.SetDefault("image.model", "flux.1")
	v.SetDefault("image.poll_interval", "1s")
	v.SetDefault("image.max_attempts", 60)
	v.SetDefault("image.offline_delay", "2s")
	v.SetDefault("publish.mode", "")
	v.SetDefault("publish.timeout", "30s")
	for _, p := range platformKeys {
		v.SetDefault("publish.endpoints."+p, "")
		v.SetDefault("publish.tokens."+p, "")
	}
	v.SetDefault("scheduler.interval", "0s")
	v.SetDefault("server.addr", ":8080")
}

// Load reads the JSON config at path merged with AUTOPOST_* environment
// variables (AUTOPOST_LLM_API_KEY overrides llm.api_key). An empty path reads
// DefaultPath when it exists; an explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("json")
	setDefaults(v)

	v.SetEnvPrefix("AUTOPOST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	switch {
	case path != "":
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	default:
		if _, err := os.Stat(DefaultPath); err == nil {
			v.SetConfigFile(DefaultPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", DefaultPath, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks enumerations and live-mode credentials.
func (c *Config) Validate() error {
	for name, m := range map[string]Mode{"mode": c.Mode, "llm.mode": c.LLM.Mode, "image.mode": c.Image.Mode, "publish.mode": c.Publish.Mode} {
		switch m {
		case "", ModeAuto, ModeOffline, ModeLive:
		default:
			return fmt.Errorf("%s must be auto, offline or live, got %q", name, m)
		}
	}
	switch c.Storage.Driver {
	case "memory", "file", "sqlite", "redis":
	default:
		return fmt.Errorf("storage.driver must be memory, file, sqlite or redis, got %q", c.Storage.Driver)
	}
	if c.TextMode() == ModeLive && isPlaceholder(c.LLM.APIKey, PlaceholderLLMKey) {
		return errors.New("llm.api_key is required in live mode")
	}
	if c.ImageMode() == ModeLive && isPlaceholder(c.Image.APIKey, PlaceholderImageKey) {
		return errors.New("image.api_key is required in live mode")
	}
	if c.Image.MaxAttempts <= 0 {
		return errors.New("image.max_attempts must be positive")
	}
	if c.Image.PollInterval <= 0 {
		return errors.New("image.poll_interval must be positive")
	}
	return nil
}

// TextMode resolves the mode of the text generation adapter.
func (c *Config) TextMode() Mode {
	return resolve(c.LLM.Mode, c.Mode, c.LLM.APIKey, PlaceholderLLMKey)
}

// ImageMode resolves the mode of the image generation adapter.
func (c *Config) ImageMode() Mode {
	return resolve(c.Image.Mode, c.Mode, c.Image.APIKey, PlaceholderImageKey)
}

// PublishMode resolves whether platform publishers hit real endpoints. Under
// auto, live means at least one endpoint is configured.
func (c *Config) PublishMode() Mode {
	m := c.Publish.Mode
	if m == "" {
		m = c.Mode
	}
	if m == ModeOffline || m == ModeLive {
		return m
	}
	for _, ep := range c.Publish.Endpoints {
		if ep != "" {
			return ModeLive
		}
	}
	return ModeOffline
}

func resolve(own, global Mode, key, placeholder string) Mode {
	m := own
	if m == "" {
		m = global
	}
	if m == ModeOffline || m == ModeLive {
		return m
	}
	if isPlaceholder(key, placeholder) {
		return ModeOffline
	}
	return ModeLive
}

func isPlaceholder(key, placeholder string) bool {
	key = strings.TrimSpace(key)
	return key == "" || key == placeholder
}
