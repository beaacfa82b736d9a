package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/mcdonaldj/arcbridge/internal/fsutil"
)

// Compression methods understood by the zip writer.
var compressionMethods = []string{"store", "deflate", "zstd"}

type Config struct {
	Compression string   `yaml:"compression"`
	Level       int      `yaml:"level"`
	Exclude     []string `yaml:"exclude"`
	// Umask is an octal string such as "022". Empty means the process umask.
	Umask    string `yaml:"umask"`
	Password string `yaml:"password,omitempty"`
	LogLevel string `yaml:"log_level"`
}

func DefaultConfig() *Config {
	return &Config{
		Compression: "deflate",
		Exclude: []string{
			".git",
			".DS_Store",
			"Thumbs.db",
			"*.swp",
			"*~",
		},
		LogLevel: "warning",
	}
}

func ConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".arcbridge", "config.yaml")
}

// Load reads the config file, returning defaults if it does not exist.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	path := ConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Use defaults
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

func (c *Config) Save() error {
	path := ConfigPath()

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	// The file may hold a password
	return os.WriteFile(path, data, 0600)
}

// Validate checks the enumerated and parsed fields.
func (c *Config) Validate() error {
	valid := false
	for _, method := range compressionMethods {
		if c.Compression == method {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("unknown compression %q (expected one of %v)", c.Compression, compressionMethods)
	}
	if c.Level < 0 || c.Level > 22 {
		return fmt.Errorf("compression level %d out of range 0-22", c.Level)
	}
	if c.Umask != "" {
		if _, err := fsutil.ParseUmask(c.Umask); err != nil {
			return err
		}
	}
	if _, err := c.ParseLogLevel(); err != nil {
		return err
	}
	return nil
}

// ResolveUmask returns the configured umask, or captures the process umask
// when none is configured. Callers pass the result on; it is never global.
func (c *Config) ResolveUmask() (fsutil.Umask, error) {
	if c.Umask == "" {
		return fsutil.CurrentUmask(), nil
	}
	return fsutil.ParseUmask(c.Umask)
}

// ParseLogLevel returns the logrus level named by LogLevel, defaulting to
// warning.
func (c *Config) ParseLogLevel() (logrus.Level, error) {
	if c.LogLevel == "" {
		return logrus.WarnLevel, nil
	}
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return 0, fmt.Errorf("invalid log level: %w", err)
	}
	return level, nil
}

// ExpandPath expands ~ to home directory
func ExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path // Return unexpanded if home unavailable
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
