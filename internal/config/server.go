package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	commoncfg "github.com/schmackofatz/recipes/core/config"
	"github.com/schmackofatz/recipes/internal/prompt"
)

// DefaultUpstreamBaseURL is the OpenAI compatible Groq API root.
const DefaultUpstreamBaseURL = "https://api.groq.com/openai/v1"

// ServerConfig holds configuration for the recipe server.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	MetricsAddr     string        `yaml:"metrics_addr"`
	LogLevel        string        `yaml:"log_level"`
	ConfigFile      string        `yaml:"-"`
	UpstreamAPIKey  string        `yaml:"upstream_api_key"`
	UpstreamBaseURL string        `yaml:"upstream_base_url"`
	Model           string        `yaml:"model"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	HeaderTimeout   time.Duration `yaml:"header_timeout"`
	DrainTimeout    time.Duration `yaml:"drain_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	RedisAddr       string        `yaml:"redis_addr"`
}

// SetDefaults initializes c with built-in defaults.
func (c *ServerConfig) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.UpstreamBaseURL == "" {
		c.UpstreamBaseURL = DefaultUpstreamBaseURL
	}
	if c.Model == "" {
		c.Model = prompt.DefaultModel
	}
	if c.HeaderTimeout == 0 {
		c.HeaderTimeout = 60 * time.Second
	}
	if c.DrainTimeout == 0 {
		c.DrainTimeout = 2 * time.Minute
	}
	if c.ConfigFile == "" {
		c.ConfigFile = commoncfg.DefaultConfigPath("server.yaml")
	}
}

// ApplyEnv overlays environment variables onto the current config values.
func (c *ServerConfig) ApplyEnv() {
	if v := commoncfg.GetEnv("CONFIG_FILE", ""); v != "" {
		c.ConfigFile = v
	}
	if v := commoncfg.GetEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := commoncfg.GetEnv("PORT", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port = n
		}
	}
	if v := commoncfg.GetEnv("METRICS_PORT", ""); v != "" {
		c.MetricsAddr = metricsAddr(v)
	}
	if v := commoncfg.GetEnv("GROQ_API_KEY", ""); v != "" {
		c.UpstreamAPIKey = v
	}
	if v := commoncfg.GetEnv("UPSTREAM_BASE_URL", ""); v != "" {
		c.UpstreamBaseURL = strings.TrimRight(v, "/")
	}
	if v := commoncfg.GetEnv("UPSTREAM_MODEL", ""); v != "" {
		c.Model = v
	}
	if v := commoncfg.GetEnv("IDLE_TIMEOUT", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.IdleTimeout = d
		}
	}
	if v := commoncfg.GetEnv("HEADER_TIMEOUT", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.HeaderTimeout = d
		}
	}
	if v := commoncfg.GetEnv("DRAIN_TIMEOUT", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.DrainTimeout = d
		}
	}
	if v := commoncfg.GetEnv("ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = splitComma(v)
	}
	if v := commoncfg.GetEnv("REDIS_ADDR", ""); v != "" {
		c.RedisAddr = v
	}
}

// BindFlagsFromCurrent binds command line flags on fs using the current
// config values as defaults. A nil fs binds to flag.CommandLine.
func (c *ServerConfig) BindFlagsFromCurrent(fs *flag.FlagSet) {
	if fs == nil {
		fs = flag.CommandLine
	}
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "server config file path")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	fs.IntVar(&c.Port, "port", c.Port, "HTTP listen port for the public API")
	fs.Func("metrics-port", "Prometheus metrics listen address or port; defaults to the value of --port", func(v string) error {
		c.MetricsAddr = metricsAddr(v)
		return nil
	})
	fs.StringVar(&c.UpstreamAPIKey, "upstream-api-key", c.UpstreamAPIKey, "bearer token for the chat completions API (prefer GROQ_API_KEY)")
	fs.StringVar(&c.UpstreamBaseURL, "upstream-base-url", c.UpstreamBaseURL, "chat completions API root")
	fs.StringVar(&c.Model, "model", c.Model, "upstream model name")
	fs.DurationVar(&c.IdleTimeout, "idle-timeout", c.IdleTimeout, "close the upstream stream when no line arrives for this long (0 disables)")
	fs.DurationVar(&c.HeaderTimeout, "header-timeout", c.HeaderTimeout, "time to wait for upstream response headers")
	fs.DurationVar(&c.DrainTimeout, "drain-timeout", c.DrainTimeout, "time to wait for in-flight streams on shutdown (-1 to wait indefinitely, 0 to exit immediately)")
	fs.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "redis connection URL for server state")
	fs.Func("allowed-origins", "comma separated list of allowed CORS origins", func(v string) error {
		c.AllowedOrigins = splitComma(v)
		return nil
	})
}

// Resolve fills values derived from others once every source has been
// applied. An unset metrics address follows the final port, so metrics stay
// on the main router.
func (c *ServerConfig) Resolve() {
	if c.MetricsAddr == "" {
		c.MetricsAddr = fmt.Sprintf(":%d", c.Port)
	} else {
		c.MetricsAddr = metricsAddr(c.MetricsAddr)
	}
}

// MetricsOnMainPort reports whether /metrics is served by the main router.
func (c *ServerConfig) MetricsOnMainPort() bool {
	return c.MetricsAddr == "" || c.MetricsAddr == fmt.Sprintf(":%d", c.Port)
}

func metricsAddr(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || strings.Contains(v, ":") {
		return v
	}
	return ":" + v
}

// Validate reports configuration that prevents startup.
func (c *ServerConfig) Validate() error {
	if strings.TrimSpace(c.UpstreamAPIKey) == "" {
		return fmt.Errorf("upstream api key is required (set GROQ_API_KEY)")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("idle timeout must not be negative")
	}
	return nil
}

func splitComma(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LoadFile populates the config from a YAML file.
func (c *ServerConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, c)
}
