// Package config holds host configuration. Values come from the
// environment, optionally layered under a JSON config file; the CLI
// writes plugin enable/disable state back to that file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Config is the host configuration.
type Config struct {
	// PluginDirs are the locations scanned for plugin candidates.
	PluginDirs []string `env:"LOOM_PLUGIN_DIRS" envSeparator:":"`

	// Disabled lists descriptor keys ("Namespace.Identifier") that are
	// skipped at load time even when discovered.
	Disabled []string `env:"LOOM_DISABLED" envSeparator:","`

	// ShutdownTimeout bounds each plugin's shutdown hook.
	ShutdownTimeout time.Duration `env:"LOOM_SHUTDOWN_TIMEOUT" envDefault:"5s"`

	// LogLevel is the host log level (debug, info, warn, error).
	LogLevel string `env:"LOOM_LOG_LEVEL" envDefault:"info"`

	// LogJSON switches the log format to JSON.
	LogJSON bool `env:"LOOM_LOG_JSON"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		PluginDirs:      []string{"plugins"},
		ShutdownTimeout: 5 * time.Second,
		LogLevel:        "info",
	}
}

// Load builds the configuration from defaults, an optional JSON file,
// and the environment, in increasing precedence. An empty path skips
// the file layer; a missing file at an explicit path is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	return cfg, nil
}

// mergeFile layers values from a JSON config file over cfg.
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("config %s: invalid JSON", path)
	}

	doc := string(data)

	if v := gjson.Get(doc, "plugin_dirs"); v.IsArray() {
		c.PluginDirs = nil
		for _, item := range v.Array() {
			c.PluginDirs = append(c.PluginDirs, item.String())
		}
	}
	if v := gjson.Get(doc, "disabled"); v.IsArray() {
		c.Disabled = nil
		for _, item := range v.Array() {
			c.Disabled = append(c.Disabled, item.String())
		}
	}
	if v := gjson.Get(doc, "shutdown_timeout"); v.Exists() {
		d, err := time.ParseDuration(v.String())
		if err != nil {
			return fmt.Errorf("config %s: shutdown_timeout: %w", path, err)
		}
		c.ShutdownTimeout = d
	}
	if v := gjson.Get(doc, "log_level"); v.Exists() {
		c.LogLevel = v.String()
	}
	if v := gjson.Get(doc, "log_json"); v.Exists() {
		c.LogJSON = v.Bool()
	}

	return nil
}

// IsDisabled reports whether a descriptor key is disabled.
func (c Config) IsDisabled(key string) bool {
	for _, d := range c.Disabled {
		if d == key {
			return true
		}
	}
	return false
}

// SetDisabled updates the disabled list in the JSON config file,
// creating the file if needed. Used by the CLI; the running host reads
// the file only at startup.
func SetDisabled(path, key string, disabled bool) error {
	doc := "{}"
	if data, err := os.ReadFile(path); err == nil {
		if !gjson.ValidBytes(data) {
			return fmt.Errorf("config %s: invalid JSON", path)
		}
		doc = string(data)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read config: %w", err)
	}

	var keys []string
	for _, item := range gjson.Get(doc, "disabled").Array() {
		if item.String() != key {
			keys = append(keys, item.String())
		}
	}
	if disabled {
		keys = append(keys, key)
	}

	doc, err := sjson.Set(doc, "disabled", keys)
	if err != nil {
		return fmt.Errorf("update config: %w", err)
	}

	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
