// Package config loads and validates service configuration via Viper.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/sb2gs-service/internal/logging"
	"github.com/JakeFAU/sb2gs-service/internal/policy/ratelimit"
	"github.com/JakeFAU/sb2gs-service/internal/upstream"
	"github.com/JakeFAU/sb2gs-service/internal/workspace"
)

// EnvPrefix is prepended to every environment variable override, so
// decompiler.workers is read from SB2GS_DECOMPILER_WORKERS.
const EnvPrefix = "SB2GS"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    logging.Config   `mapstructure:"logging"`
	Scratch    ScratchConfig    `mapstructure:"scratch"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Decompiler DecompilerConfig `mapstructure:"decompiler"`
	Workspace  workspace.Config `mapstructure:"workspace"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
	// RequestTimeoutSeconds bounds one decompile request end to end; 0 disables it.
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// ScratchConfig points at the upstream Scratch endpoints.
type ScratchConfig struct {
	TokenSources []string `mapstructure:"token_sources"`
	ProjectsBase string   `mapstructure:"projects_base"`
	AssetsBase   string   `mapstructure:"assets_base"`
	UserAgent    string   `mapstructure:"user_agent"`
}

// HTTPConfig configures the outbound HTTP client.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	MaxBodyBytes   int `mapstructure:"max_body_bytes"`
}

// FetchConfig bounds concurrent asset downloads and the per-host request rate.
type FetchConfig struct {
	MaxConcurrency int `mapstructure:"max_concurrency"`
	// RateLimit caps requests per second to each upstream host; rps 0 disables it.
	RateLimit ratelimit.Config `mapstructure:"rate_limit"`
}

// DecompilerConfig configures the sb2gs invocation and its worker pool.
type DecompilerConfig struct {
	Binary         string `mapstructure:"binary"`
	Overwrite      bool   `mapstructure:"overwrite"`
	Verify         bool   `mapstructure:"verify"`
	Workers        int    `mapstructure:"workers"`
	QueueDepth     int    `mapstructure:"queue_depth"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Container platforms inject PORT; the prefixed key still wins.
	if err := v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 300)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
	v.SetDefault("scratch.token_sources", []string{upstream.DefaultAPIBase, upstream.DefaultMirrorBase})
	v.SetDefault("scratch.projects_base", upstream.DefaultProjectsBase)
	v.SetDefault("scratch.assets_base", upstream.DefaultAssetsBase)
	v.SetDefault("scratch.user_agent", upstream.DefaultUserAgent)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_body_bytes", 64<<20)
	v.SetDefault("fetch.max_concurrency", 64)
	v.SetDefault("fetch.rate_limit.rps", 0)
	v.SetDefault("fetch.rate_limit.burst", 64)
	v.SetDefault("decompiler.binary", "sb2gs")
	v.SetDefault("decompiler.overwrite", true)
	v.SetDefault("decompiler.verify", true)
	v.SetDefault("decompiler.workers", 2)
	v.SetDefault("decompiler.queue_depth", 16)
	v.SetDefault("decompiler.timeout_seconds", 120)
	v.SetDefault("workspace.base_dir", filepath.Join(os.TempDir(), "sb2gs"))
	v.SetDefault("workspace.keep", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("server.request_timeout_seconds must be >= 0")
	}
	if len(c.Scratch.TokenSources) == 0 {
		return fmt.Errorf("scratch.token_sources must list at least one base URL")
	}
	for _, src := range c.Scratch.TokenSources {
		if err := validateBaseURL(src); err != nil {
			return fmt.Errorf("scratch.token_sources: %w", err)
		}
	}
	if err := validateBaseURL(c.Scratch.ProjectsBase); err != nil {
		return fmt.Errorf("scratch.projects_base: %w", err)
	}
	if err := validateBaseURL(c.Scratch.AssetsBase); err != nil {
		return fmt.Errorf("scratch.assets_base: %w", err)
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxBodyBytes < 0 {
		return fmt.Errorf("http.max_body_bytes must be >= 0")
	}
	if c.Fetch.MaxConcurrency <= 0 {
		return fmt.Errorf("fetch.max_concurrency must be > 0")
	}
	if c.Fetch.RateLimit.RPS < 0 || c.Fetch.RateLimit.Burst < 0 {
		return fmt.Errorf("fetch.rate_limit rps and burst must be >= 0")
	}
	if strings.TrimSpace(c.Decompiler.Binary) == "" {
		return fmt.Errorf("decompiler.binary must be set")
	}
	if c.Decompiler.Workers <= 0 {
		return fmt.Errorf("decompiler.workers must be > 0")
	}
	if c.Decompiler.QueueDepth < 0 {
		return fmt.Errorf("decompiler.queue_depth must be >= 0")
	}
	if c.Decompiler.TimeoutSeconds < 0 {
		return fmt.Errorf("decompiler.timeout_seconds must be >= 0")
	}
	if strings.TrimSpace(c.Workspace.BaseDir) == "" {
		return fmt.Errorf("workspace.base_dir must be set")
	}
	return nil
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("parse %q: %w", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%q must be an absolute http(s) URL", raw)
	}
	return nil
}

// RequestTimeout is the end-to-end budget for one decompile request.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// HTTPTimeout is the per-request timeout for outbound calls.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// DecompileTimeout bounds a single decompiler process; 0 means no limit.
func (c Config) DecompileTimeout() time.Duration {
	return time.Duration(c.Decompiler.TimeoutSeconds) * time.Second
}

// Describe renders cfg as indented JSON for the config subcommand.
func Describe(cfg Config) (string, error) {
	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(out) + "\n", nil
}
