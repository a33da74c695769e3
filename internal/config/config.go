// Package config handles TOML-based configuration loading and validation.
// TOML is parsed as data only, and unknown keys are rejected so typos
// surface instead of silently falling back to defaults.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"

	"linkchain/internal/extract"
	"linkchain/internal/hostalias"
)

const appName = "linkchain"

// Config holds all application configuration.
type Config struct {
	Workers           int     `toml:"workers"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
	MaxHops           int     `toml:"max_hops"`
	UserAgent         string  `toml:"user_agent"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
	ImpersonateTLS    bool    `toml:"impersonate_tls"`
	AllowHTTP         bool    `toml:"allow_http"`
	GenericEndpoint   string  `toml:"generic_endpoint"`
	SubsLanguage      string  `toml:"subs_language"`
	History           bool    `toml:"history"`
	Debug             bool    `toml:"debug"`
	LogLevel          string  `toml:"log_level"`
	LogFormat         string  `toml:"log_format"`
	LogFile           string  `toml:"log_file"`
	DubLabel          string  `toml:"dub_label"`
	SubLabel          string  `toml:"sub_label"`

	Aliases []hostalias.Pair `toml:"alias"`
	Sites   Sites            `toml:"sites"`
}

// Sites configures the extractor table.
type Sites struct {
	FlixHQBase       string                    `toml:"flixhq_base"`
	MegaCloudHosts   []string                  `toml:"megacloud_hosts"`
	MegaCloudKeysURL string                    `toml:"megacloud_keys_url"`
	PatternHosts     []string                  `toml:"pattern_hosts"`
	FormChain        []extract.FormChainConfig `toml:"form_chain"`
	Token            []extract.TokenConfig     `toml:"token"`
	Script           []extract.ScriptConfig    `toml:"script"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Workers:           6,
		TimeoutSeconds:    15,
		MaxHops:           4,
		RequestsPerSecond: 8,
		Burst:             4,
		SubsLanguage:      "english",
		History:           true,
		LogLevel:          "warn",
		LogFormat:         "text",
		DubLabel:          "Dub",
		SubLabel:          "Sub",
		Sites: Sites{
			FlixHQBase: "flixhq.to",
		},
	}
}

// configDir returns the XDG-compliant config directory.
func configDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".config", appName), nil
}

// dataDir returns the XDG-compliant data directory.
func dataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", appName), nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// HistoryPath returns the path to the resolution journal.
func HistoryPath() (string, error) {
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}

// Load reads the config file and merges with defaults.
// If the config file doesn't exist, defaults are returned.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile is Load for an explicit path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("parsing config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks config values are within acceptable bounds.
func (c *Config) Validate() error {
	if c.Workers < 1 || c.Workers > 64 {
		return fmt.Errorf("workers must be between 1 and 64, got %d", c.Workers)
	}
	if c.TimeoutSeconds < 1 || c.TimeoutSeconds > 300 {
		return fmt.Errorf("timeout_seconds must be between 1 and 300, got %d", c.TimeoutSeconds)
	}
	if c.MaxHops < 1 || c.MaxHops > 20 {
		return fmt.Errorf("max_hops must be between 1 and 20, got %d", c.MaxHops)
	}
	if c.RequestsPerSecond < 0 || c.Burst < 0 {
		return fmt.Errorf("requests_per_second and burst cannot be negative")
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log_format %q (valid: text, json)", c.LogFormat)
	}

	if c.GenericEndpoint != "" {
		u, err := url.Parse(c.GenericEndpoint)
		if err != nil || u.Host == "" {
			return fmt.Errorf("generic_endpoint %q is not an absolute URL", c.GenericEndpoint)
		}
		if u.Scheme != "https" && !(c.AllowHTTP && u.Scheme == "http") {
			return fmt.Errorf("generic_endpoint must use https (set allow_http for http)")
		}
	}

	if _, err := hostalias.New(c.Aliases...); err != nil {
		return err
	}
	return c.Sites.validate()
}

func (s Sites) validate() error {
	if s.FlixHQBase == "" {
		return fmt.Errorf("sites.flixhq_base cannot be empty")
	}

	names := map[string]bool{}
	claim := func(kind, name string) error {
		if names[name] {
			return fmt.Errorf("sites.%s: duplicate name %q", kind, name)
		}
		names[name] = true
		return nil
	}
	for _, fc := range s.FormChain {
		if _, err := extract.NewFormChainResolver(fc); err != nil {
			return fmt.Errorf("sites.form_chain: %w", err)
		}
		if err := claim("form_chain", fc.Name); err != nil {
			return err
		}
	}
	for _, tc := range s.Token {
		if _, err := extract.NewTokenStrategy(tc); err != nil {
			return fmt.Errorf("sites.token: %w", err)
		}
		if err := claim("token", tc.Name); err != nil {
			return err
		}
	}
	for _, sc := range s.Script {
		if _, err := extract.NewScriptStrategy(sc); err != nil {
			return fmt.Errorf("sites.script: %w", err)
		}
		if err := claim("script", sc.Name); err != nil {
			return err
		}
	}
	return nil
}

// AliasPairs returns the built-in aliases followed by configured ones, so
// configured pairs win.
func (c *Config) AliasPairs() []hostalias.Pair {
	pairs := make([]hostalias.Pair, 0, len(hostalias.Defaults)+len(c.Aliases))
	pairs = append(pairs, hostalias.Defaults...)
	return append(pairs, c.Aliases...)
}
