// Package config loads the agent configuration from a YAML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvToken           = "HOSTCTL_TOKEN"
	EnvAuthorizedUsers = "HOSTCTL_AUTHORIZED_USERS"
)

const (
	DefaultKeychainAccount = "bot-token"
	defaultLogLevel        = "info"
	defaultLogFormat       = "text"
)

// Config is the on-disk configuration.
type Config struct {
	Token                string          `yaml:"token,omitempty"`
	TokenKeychainAccount string          `yaml:"token_keychain_account,omitempty"`
	AuthorizedUsers      []int64         `yaml:"authorized_users,omitempty"`
	APIBaseURL           string          `yaml:"api_base_url,omitempty"`
	SocketPath           string          `yaml:"socket_path,omitempty"`
	MetricsAddr          string          `yaml:"metrics_addr,omitempty"`
	LogLevel             string          `yaml:"log_level,omitempty"`
	LogFormat            string          `yaml:"log_format,omitempty"`
	Displays             []DisplayConfig `yaml:"displays,omitempty"`
	Actions              ActionsConfig   `yaml:"actions,omitempty"`
	Labels               LabelsConfig    `yaml:"labels,omitempty"`
}

// DisplayConfig is one screen and the command that captures it to stdout.
type DisplayConfig struct {
	Name    string `yaml:"name"`
	X       int    `yaml:"x"`
	Command string `yaml:"command"`
}

// ActionsConfig overrides the OS power directives.
type ActionsConfig struct {
	Sleep     string `yaml:"sleep,omitempty"`
	Hibernate string `yaml:"hibernate,omitempty"`
	Shutdown  string `yaml:"shutdown,omitempty"`
	Restart   string `yaml:"restart,omitempty"`
}

// LabelsConfig overrides the reply keyboard captions.
type LabelsConfig struct {
	Status     string `yaml:"status,omitempty"`
	Screenshot string `yaml:"screenshot,omitempty"`
	Sleep      string `yaml:"sleep,omitempty"`
	Hibernate  string `yaml:"hibernate,omitempty"`
	Shutdown   string `yaml:"shutdown,omitempty"`
	Restart    string `yaml:"restart,omitempty"`
}

// ErrNoToken is returned by ResolveToken when no source has a token.
var ErrNoToken = errors.New("no bot token configured")

// DefaultPath returns ~/.config/hostctl/config.yaml or the platform equivalent.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(dir, "hostctl", "config.yaml")
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		TokenKeychainAccount: DefaultKeychainAccount,
		LogLevel:             defaultLogLevel,
		LogFormat:            defaultLogFormat,
	}
}

// Load reads path, applies environment overrides and validates the
// result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path with owner-only permissions, creating the
// directory if needed.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// RecordKeychainAccount sets token_keychain_account in the file at path
// and saves it. Environment overrides are not written back. It reports
// whether a token in the file still takes precedence over the keychain.
func RecordKeychainAccount(path, account string) (shadowed bool, err error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return false, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return false, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.TokenKeychainAccount = account
	if err := Save(cfg, path); err != nil {
		return false, err
	}
	return cfg.Token != "", nil
}

func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv(EnvToken); ok && strings.TrimSpace(v) != "" {
		c.Token = strings.TrimSpace(v)
	}
	if v, ok := os.LookupEnv(EnvAuthorizedUsers); ok {
		c.AuthorizedUsers = ParseUserIDs(v)
	}
}

// Validate rejects malformed values. A missing token is not an error
// here; it fails the session start instead.
func (c *Config) Validate() error {
	for _, id := range c.AuthorizedUsers {
		if id <= 0 {
			return fmt.Errorf("authorized_users: invalid id %d", id)
		}
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("log_format: unknown format %q", c.LogFormat)
	}
	for i, d := range c.Displays {
		if strings.TrimSpace(d.Command) == "" {
			return fmt.Errorf("displays[%d]: command is required", i)
		}
	}
	return nil
}

// SlogLevel parses LogLevel. Empty means info.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// ResolveToken returns the token from the environment or file, falling
// back to the keychain account. keychainGet may be nil.
func (c *Config) ResolveToken(keychainGet func(account string) (string, error)) (string, error) {
	if c.Token != "" {
		return c.Token, nil
	}
	if keychainGet == nil || c.TokenKeychainAccount == "" {
		return "", ErrNoToken
	}
	token, err := keychainGet(c.TokenKeychainAccount)
	if err != nil {
		return "", fmt.Errorf("%w: keychain account %q: %w", ErrNoToken, c.TokenKeychainAccount, err)
	}
	if token = strings.TrimSpace(token); token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// Directives merges the configured action overrides over defaults.
func (c *Config) Directives(defaults map[string]string) map[string]string {
	out := make(map[string]string, len(defaults))
	for k, v := range defaults {
		out[k] = v
	}
	for name, v := range map[string]string{
		"sleep":     c.Actions.Sleep,
		"hibernate": c.Actions.Hibernate,
		"shutdown":  c.Actions.Shutdown,
		"restart":   c.Actions.Restart,
	} {
		if v != "" {
			out[name] = v
		}
	}
	return out
}

// ParseUserIDs parses a comma separated id list. Entries that are not
// positive integers are skipped.
func ParseUserIDs(s string) []int64 {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
