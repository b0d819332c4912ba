// Package config handles Vox configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/flynn-ai/vox/internal/errors"
)

// APIKeyEnv is consulted when model.api_key is empty.
const APIKeyEnv = "OPENAI_API_KEY"

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".vox")

	return &Config{
		Server: ServerConfig{
			Addr:           "127.0.0.1:9302",
			AnnounceDelay:  Duration{2 * time.Second},
			ActionTimeout:  Duration{30 * time.Second},
			MaxConnections: 16,
			ReadLimit:      1 << 20,
		},
		Model: ModelConfig{
			BaseURL:    "https://api.openai.com/v1",
			Model:      "gpt-4o-mini",
			Timeout:    Duration{120 * time.Second},
			MaxRetries: 3,
		},
		Agent: AgentConfig{
			MaxRegenerations:  3,
			MaxSteps:          16,
			ConcurrentActions: false,
			MaxConcurrent:     8,
			Speak:             true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       filepath.Join(dataDir, "logs", "vox.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Paths: PathsConfig{
			DataDir: dataDir,
		},
	}
}

// DefaultPath returns ~/.vox/config.toml.
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".vox", "config.toml")
}

// Load loads the configuration from the given path.
// If the file doesn't exist, returns defaults.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(configPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, errors.Wrap(err, errors.CodeConfigInvalid, fmt.Sprintf("parse %s", configPath), errors.CategoryPermanent)
		}
	}

	if cfg.Model.APIKey == "" {
		cfg.Model.APIKey = os.Getenv(APIKeyEnv)
	}
	expandPaths(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports settings no component can run with.
func (c *Config) Validate() error {
	switch {
	case c.Server.Addr == "":
		return errors.Permanent(errors.CodeConfigInvalid, "server.addr is empty")
	case c.Server.ActionTimeout.Duration <= 0:
		return errors.Permanent(errors.CodeConfigInvalid, "server.action_timeout must be positive")
	case c.Server.AnnounceDelay.Duration < 0:
		return errors.Permanent(errors.CodeConfigInvalid, "server.announce_delay must not be negative")
	case c.Agent.MaxRegenerations < 0:
		return errors.Permanent(errors.CodeConfigInvalid, "agent.max_regenerations must not be negative")
	case c.Agent.MaxSteps <= 0:
		return errors.Permanent(errors.CodeConfigInvalid, "agent.max_steps must be positive")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.Permanent(errors.CodeConfigInvalid, fmt.Sprintf("unknown logging.level %q", c.Logging.Level))
	}
	return nil
}

// Save saves the configuration to the given path.
func (c *Config) Save(configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	file, err := os.Create(configPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := toml.NewEncoder(file)
	return encoder.Encode(c)
}

// expandPaths expands a leading ~ in path settings.
func expandPaths(cfg *Config) {
	cfg.Paths.DataDir = expandHome(cfg.Paths.DataDir)
	cfg.Paths.TranscriptDB = expandHome(cfg.Paths.TranscriptDB)
	cfg.Logging.File = expandHome(cfg.Logging.File)
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(homeDir, p[1:])
}
