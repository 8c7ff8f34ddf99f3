package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultSocket       = "/tmp/meerkat.sock"
	DefaultTailInterval = 500 * time.Millisecond
	DefaultFile         = "meerkat.yaml"

	EnvSocket       = "MEERKAT_SOCKET"
	EnvTailInterval = "MEERKAT_TAIL_INTERVAL"
	EnvLogLevel     = "MEERKAT_LOG_LEVEL"
)

// DefaultHome is ~/.meerkat-desktop, or a relative directory when the home
// directory is unknown.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".meerkat-desktop"
	}
	return filepath.Join(home, ".meerkat-desktop")
}

// Load reads, parses and interpolates the file at path, then applies
// environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := applyEnvOverrides(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Parse decodes YAML, fills defaults and expands ${...} references.
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&c)
	interpolate(&c)
	return &c, nil
}

// Save writes c as YAML, creating parent directories.
func Save(path string, c *Config) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func applyDefaults(c *Config) {
	if c.Home == "" {
		c.Home = DefaultHome()
	} else if strings.HasPrefix(c.Home, "~/") {
		if h, err := os.UserHomeDir(); err == nil {
			c.Home = filepath.Join(h, c.Home[2:])
		}
	}
	if c.Socket == "" {
		c.Socket = DefaultSocket
	}
	if c.Tail.Interval == 0 {
		c.Tail.Interval = Duration(DefaultTailInterval)
	}
}

func applyEnvOverrides(c *Config) error {
	if v := os.Getenv(EnvSocket); v != "" {
		c.Socket = v
	}
	if v := os.Getenv(EnvTailInterval); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", EnvTailInterval, v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be > 0", EnvTailInterval)
		}
		c.Tail.Interval = Duration(d)
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	return nil
}

// interpolate expands ${home}, ${name} from vars, and ${VAR} from the
// environment. Unknown references expand to the empty string.
func interpolate(c *Config) {
	expand := func(s string) string {
		return os.Expand(s, func(key string) string {
			if key == "home" {
				return c.Home
			}
			if v, ok := c.Vars[key]; ok {
				return v
			}
			return os.Getenv(key)
		})
	}

	for k, v := range c.Vars {
		c.Vars[k] = os.Expand(v, func(key string) string {
			if key == "home" {
				return c.Home
			}
			return os.Getenv(key)
		})
	}

	for name, s := range c.Slots {
		s.Executable = expand(s.Executable)
		s.Dir = expand(s.Dir)
		for i, a := range s.Args {
			s.Args[i] = expand(a)
		}
		for k, v := range s.Env {
			s.Env[k] = expand(v)
		}
		for i, r := range s.Requires {
			s.Requires[i] = expand(r)
		}
		for i, d := range s.Dirs {
			s.Dirs[i] = expand(d)
		}
		if len(s.Ensure) > 0 {
			ensure := make(map[string]string, len(s.Ensure))
			for p, contents := range s.Ensure {
				ensure[expand(p)] = contents
			}
			s.Ensure = ensure
		}
		c.Slots[name] = s
	}
	c.Tail.Path = expand(c.Tail.Path)
	c.Socket = expand(c.Socket)
}
