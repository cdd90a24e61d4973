// Package config loads vkrest settings from an optional .env file, an
// optional config file, VKREST_* environment variables and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "VKREST"

// Config holds the application configuration.
type Config struct {
	AppID       string `mapstructure:"app_id"`
	AppSecret   string `mapstructure:"app_secret"`
	RedirectURI string `mapstructure:"redirect_uri"`
	Scope       string `mapstructure:"scope"`
	APIVersion  string `mapstructure:"api_version"`

	// Endpoint overrides; empty means the vk.com default.
	AuthorizeURL string `mapstructure:"authorize_url"`
	TokenURL     string `mapstructure:"token_url"`
	APIURL       string `mapstructure:"api_url"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	StoreType string `mapstructure:"store_type"`
	StorePath string `mapstructure:"store_path"`

	Transport          string        `mapstructure:"transport"`
	MaxRedirects       int           `mapstructure:"max_redirects"`
	Timeout            time.Duration `mapstructure:"timeout"`
	RateLimit          float64       `mapstructure:"rate_limit"`
	UserAgent          string        `mapstructure:"user_agent"`
	RandomAgent        bool          `mapstructure:"random_agent"`
	Proxy              string        `mapstructure:"proxy"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
}

// keys lists every setting so each one can be bound to its environment
// variable even when no config file mentions it.
var keys = []string{
	"app_id", "app_secret", "redirect_uri", "scope", "api_version",
	"authorize_url", "token_url", "api_url",
	"log_level", "log_format",
	"store_type", "store_path",
	"transport", "max_redirects", "timeout", "rate_limit",
	"user_agent", "random_agent", "proxy", "insecure_skip_verify",
}

// DefaultStorePath is ~/.vkrest/session.db, or a relative path when the
// home directory is unknown.
func DefaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".vkrest", "session.db")
	}
	return filepath.Join(home, ".vkrest", "session.db")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scope", "offline")
	v.SetDefault("api_version", "5.131")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("store_type", "sqlite")
	v.SetDefault("store_path", DefaultStorePath())
	v.SetDefault("transport", "net")
	v.SetDefault("max_redirects", 5)
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("rate_limit", 3.0)
	v.SetDefault("random_agent", false)
	v.SetDefault("insecure_skip_verify", false)
}

// Load reads the configuration. path names a config file (yaml, toml or
// json); when empty, vkrest.{yaml,toml,json} is looked up in the working
// directory and ~/.vkrest, and a missing file is not an error. A .env file
// in the working directory is loaded first and never overrides variables
// that are already set.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", k, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else {
		v.SetConfigName("vkrest")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".vkrest"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	if c.MaxRedirects < 0 {
		return fmt.Errorf("config: invalid max_redirects %d (must not be negative)", c.MaxRedirects)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("config: invalid timeout %s (must not be negative)", c.Timeout)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("config: invalid rate_limit %g (must not be negative)", c.RateLimit)
	}

	switch strings.ToLower(c.Transport) {
	case "", "net", "nethttp", "resty":
	default:
		return fmt.Errorf("config: unsupported transport %q (want net or resty)", c.Transport)
	}

	switch strings.ToLower(c.StoreType) {
	case "", "memory", "none":
	case "sqlite", "bbolt", "bolt":
		if strings.TrimSpace(c.StorePath) == "" {
			return fmt.Errorf("config: store_type %q requires store_path", c.StoreType)
		}
	default:
		return fmt.Errorf("config: unsupported store_type %q (want sqlite, bbolt or memory)", c.StoreType)
	}

	switch strings.ToLower(c.LogFormat) {
	case "", "console", "json":
	default:
		return fmt.Errorf("config: unsupported log_format %q (want console or json)", c.LogFormat)
	}
	return nil
}
