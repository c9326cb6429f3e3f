/*
Package config loads server configuration.

Resolution order, later wins:
 1. Built-in defaults
 2. YAML config file (if present)
 3. Environment variables (a .env file is loaded best-effort first)

ENVIRONMENT VARIABLES:
  DRAWER_PORT        HTTP port
  DRAWER_DB_PATH     SQLite database path (":memory:" for in-memory)
  DRAWER_LOG_LEVEL   zerolog level (debug, info, warn, error)
*/
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full server configuration.
type Config struct {
	Server struct {
		Port           int      `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Logging struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"logging"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8080
	cfg.Server.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	cfg.Database.Path = "drawer.db"
	cfg.Logging.Level = "info"
	return cfg
}

// Load builds the configuration from defaults, an optional YAML file and
// the environment. A missing file is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	// .env is optional; real environment variables take precedence anyway.
	_ = godotenv.Load()

	if raw := os.Getenv("DRAWER_PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid DRAWER_PORT %q: %w", raw, err)
		}
		cfg.Server.Port = port
	}
	if raw := os.Getenv("DRAWER_DB_PATH"); raw != "" {
		cfg.Database.Path = raw
	}
	if raw := os.Getenv("DRAWER_LOG_LEVEL"); raw != "" {
		cfg.Logging.Level = raw
	}

	return cfg, nil
}
