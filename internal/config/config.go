package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	BackendMemory   = "memory"
	BackendOpenAI   = "openai"
	BackendPostgres = "postgres"
)

type OpenAI struct {
	BaseURL      string
	APIKey       string
	Model        string
	PollInterval time.Duration
}

type Config struct {
	Port        int
	LogLevel    string
	Backend     string
	DatabaseURL string
	AutoMigrate bool
	OpenAI      OpenAI

	// SendReleaseDelay keeps the sending gate closed for a moment after an
	// exchange ends so a double submit cannot slip through.
	SendReleaseDelay time.Duration
	// StreamDelay paces the memory backend's canned replies.
	StreamDelay time.Duration
	// StreamIdleTimeout stops a stream that has produced nothing for this
	// long. Zero disables the reaper.
	StreamIdleTimeout time.Duration
	MCPEnabled        bool
}

func Default() Config {
	return Config{
		Port:     8080,
		LogLevel: "info",
		Backend:  BackendMemory,
		OpenAI: OpenAI{
			BaseURL:      "https://api.openai.com/v1",
			Model:        "gpt-4o-mini",
			PollInterval: 500 * time.Millisecond,
		},
		AutoMigrate:       true,
		SendReleaseDelay:  500 * time.Millisecond,
		StreamDelay:       30 * time.Millisecond,
		StreamIdleTimeout: 2 * time.Minute,
		MCPEnabled:        true,
	}
}

// Load reads configuration from defaults, an optional file at path and
// CHAT_-prefixed environment variables, in increasing priority. A .env file
// in the working directory is loaded into the environment first.
func Load(path string) (Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix("chat")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	cfg := Config{
		Port:        v.GetInt("port"),
		LogLevel:    strings.ToLower(v.GetString("log_level")),
		Backend:     strings.ToLower(v.GetString("backend")),
		DatabaseURL: v.GetString("database_url"),
		AutoMigrate: v.GetBool("auto_migrate"),
		OpenAI: OpenAI{
			BaseURL:      v.GetString("openai.base_url"),
			APIKey:       v.GetString("openai.api_key"),
			Model:        v.GetString("openai.model"),
			PollInterval: v.GetDuration("openai.poll_interval"),
		},
		SendReleaseDelay:  v.GetDuration("send_release_delay"),
		StreamDelay:       v.GetDuration("stream_delay"),
		StreamIdleTimeout: v.GetDuration("stream_idle_timeout"),
		MCPEnabled:        v.GetBool("mcp.enabled"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("port", d.Port)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("backend", d.Backend)
	v.SetDefault("database_url", d.DatabaseURL)
	v.SetDefault("auto_migrate", d.AutoMigrate)
	v.SetDefault("openai.base_url", d.OpenAI.BaseURL)
	v.SetDefault("openai.api_key", d.OpenAI.APIKey)
	v.SetDefault("openai.model", d.OpenAI.Model)
	v.SetDefault("openai.poll_interval", d.OpenAI.PollInterval)
	v.SetDefault("send_release_delay", d.SendReleaseDelay)
	v.SetDefault("stream_delay", d.StreamDelay)
	v.SetDefault("stream_idle_timeout", d.StreamIdleTimeout)
	v.SetDefault("mcp.enabled", d.MCPEnabled)
}

func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.LogLevel))
	}
	switch c.Backend {
	case BackendMemory:
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" {
			errs = append(errs, errors.New("openai backend requires openai.api_key"))
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("postgres backend requires database_url"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	if c.SendReleaseDelay < 0 {
		errs = append(errs, errors.New("send_release_delay must not be negative"))
	}
	if c.StreamIdleTimeout < 0 {
		errs = append(errs, errors.New("stream_idle_timeout must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// UsesOpenAIStreamer reports whether responses come from the OpenAI-compatible
// API. The postgres backend uses it when a key or endpoint is configured.
func (c Config) UsesOpenAIStreamer() bool {
	switch c.Backend {
	case BackendOpenAI:
		return true
	case BackendPostgres:
		return c.OpenAI.APIKey != ""
	}
	return false
}
