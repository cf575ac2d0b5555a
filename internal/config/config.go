package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the tool-layer settings. Everything has a usable default so a
// missing config file is not an error.
type Config struct {
	// Port the MCP streamable HTTP endpoint listens on.
	Port int `json:"port"`
	// CacheCapacity bounds the per-session source map cache.
	CacheCapacity int `json:"cacheCapacity"`
	// FetchTimeoutMS is the per-artifact fetch timeout in milliseconds.
	FetchTimeoutMS int `json:"fetchTimeoutMs"`
	// SnippetRadius is the number of context lines around resolved
	// positions; -1 disables snippets.
	SnippetRadius int `json:"snippetRadius"`
	// NetworkWindowMS is how far before an error a network request may
	// have started and still be correlated with it, in milliseconds.
	NetworkWindowMS int `json:"networkWindowMs"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:            3000,
		CacheCapacity:   32,
		FetchTimeoutMS:  10_000,
		SnippetRadius:   2,
		NetworkWindowMS: 5_000,
	}
}

// Load reads and parses the configuration file, filling unset fields with
// defaults and applying environment overrides last. An empty path skips the
// file and uses defaults plus environment.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnv overrides config fields from SOURCETRACE_* environment variables.
func applyEnv(cfg *Config) error {
	overrides := []struct {
		key  string
		dest *int
	}{
		{"SOURCETRACE_PORT", &cfg.Port},
		{"SOURCETRACE_CACHE_CAPACITY", &cfg.CacheCapacity},
		{"SOURCETRACE_FETCH_TIMEOUT_MS", &cfg.FetchTimeoutMS},
		{"SOURCETRACE_SNIPPET_RADIUS", &cfg.SnippetRadius},
		{"SOURCETRACE_NETWORK_WINDOW_MS", &cfg.NetworkWindowMS},
	}
	for _, o := range overrides {
		raw := os.Getenv(o.key)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%s must be an integer, got %q", o.key, raw)
		}
		*o.dest = v
	}
	return nil
}

// validate checks if the configuration is valid.
func validate(cfg *Config) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("port %d out of range", cfg.Port)
	}
	if cfg.CacheCapacity < 1 {
		return fmt.Errorf("cacheCapacity must be at least 1, got %d", cfg.CacheCapacity)
	}
	if cfg.FetchTimeoutMS < 1 {
		return fmt.Errorf("fetchTimeoutMs must be positive, got %d", cfg.FetchTimeoutMS)
	}
	if cfg.NetworkWindowMS < 1 {
		return fmt.Errorf("networkWindowMs must be positive, got %d", cfg.NetworkWindowMS)
	}
	return nil
}

// FetchTimeout returns the fetch timeout as a duration.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutMS) * time.Millisecond
}

// NetworkWindow returns the correlation window as a duration.
func (c *Config) NetworkWindow() time.Duration {
	return time.Duration(c.NetworkWindowMS) * time.Millisecond
}
