// Package config loads the middleware configuration from a YAML file, with
// environment variables expanded via {{.VAR}} templates and an optional
// .env file loaded by the caller beforehand.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigFile is used when no -config flag or CONFIG_FILE env is set.
	DefaultConfigFile = "./ikmw.yaml"

	defaultCacheExpire     = 5 * time.Second
	defaultReloginInterval = time.Hour
	defaultListenAddr      = ":19198"
)

// Config is the resolved, validated middleware configuration. Constructed
// once at startup and read-only thereafter.
type Config struct {
	// BaseURL is the router management UI root, e.g. "http://10.0.0.1".
	BaseURL  string
	Username string
	Password string

	// CacheExpire bounds how long a monitoring response is served from
	// cache. Zero or negative disables caching entirely.
	CacheExpire time.Duration

	// AccessToken guards the middleware's own endpoints. Empty means open
	// access (logged as a warning at startup).
	AccessToken string

	// ReloginInterval drives the proactive upstream session renewal.
	// Zero or negative disables the background renewal.
	ReloginInterval time.Duration

	ListenAddr string
}

// fileConfig mirrors the YAML file. Pointer fields distinguish "absent"
// (default applies) from an explicit zero, which is meaningful for
// cache_expire and relogin_interval where zero means disabled.
type fileConfig struct {
	BaseURL         string    `yaml:"base_url"`
	Username        string    `yaml:"username"`
	Password        string    `yaml:"password"`
	CacheExpire     *Duration `yaml:"cache_expire"`
	AccessToken     string    `yaml:"access_token"`
	ReloginInterval *Duration `yaml:"relogin_interval"`
	ListenAddr      string    `yaml:"listen_addr"`
}

// Load reads, expands, parses, defaults, and validates the configuration
// file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewLoadError(path, ErrConfigNotFound)
		}
		return nil, NewLoadError(path, err)
	}

	data = expandEnv(data)

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}

	cfg := file.resolve()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.AccessToken == "" {
		slog.Warn("access token not set, endpoints are unauthenticated")
	}
	return cfg, nil
}

func (f *fileConfig) resolve() *Config {
	cfg := &Config{
		BaseURL:         f.BaseURL,
		Username:        f.Username,
		Password:        f.Password,
		AccessToken:     f.AccessToken,
		CacheExpire:     defaultCacheExpire,
		ReloginInterval: defaultReloginInterval,
		ListenAddr:      f.ListenAddr,
	}
	if f.CacheExpire != nil {
		cfg.CacheExpire = time.Duration(*f.CacheExpire)
	}
	if f.ReloginInterval != nil {
		cfg.ReloginInterval = time.Duration(*f.ReloginInterval)
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	return cfg
}

func (c *Config) validate() error {
	if c.BaseURL == "" {
		return NewValidationError("base_url", ErrMissingRequiredField)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return NewValidationError("base_url",
			fmt.Errorf("%w: %q is not an http(s) URL", ErrInvalidValue, c.BaseURL))
	}
	if c.Username == "" {
		return NewValidationError("username", ErrMissingRequiredField)
	}
	if c.Password == "" {
		return NewValidationError("password", ErrMissingRequiredField)
	}
	return nil
}

// Duration unmarshals either a bare number of seconds (the original config
// convention) or a Go duration string such as "30s" or "1h".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var secs float64
	if err := node.Decode(&secs); err == nil {
		*d = Duration(time.Duration(secs * float64(time.Second)))
		return nil
	}

	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("%w: expected seconds or duration string", ErrInvalidValue)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidValue, s, err)
	}
	*d = Duration(parsed)
	return nil
}
