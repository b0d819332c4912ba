// Package config provides configuration types for Vox.
package config

import "time"

// Config represents the main Vox configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Model   ModelConfig   `toml:"model"`
	Agent   AgentConfig   `toml:"agent"`
	Logging LoggingConfig `toml:"logging"`
	Paths   PathsConfig   `toml:"paths"`
}

// ServerConfig configures the peer connection manager.
type ServerConfig struct {
	Addr           string   `toml:"addr"`
	AnnounceDelay  Duration `toml:"announce_delay"`
	ActionTimeout  Duration `toml:"action_timeout"`
	MaxConnections int      `toml:"max_connections"`
	ReadLimit      int64    `toml:"read_limit"` // bytes per inbound frame
}

// ModelConfig configures the chat completions client.
type ModelConfig struct {
	BaseURL    string   `toml:"base_url"`
	Model      string   `toml:"model"`
	APIKey     string   `toml:"api_key"` // falls back to OPENAI_API_KEY
	Timeout    Duration `toml:"timeout"`
	MaxRetries int      `toml:"max_retries"`
}

// AgentConfig configures the orchestration loop.
type AgentConfig struct {
	MaxRegenerations  int      `toml:"max_regenerations"`
	MaxSteps          int      `toml:"max_steps"` // model calls per human turn
	ConcurrentActions bool     `toml:"concurrent_actions"`
	MaxConcurrent     int      `toml:"max_concurrent"`
	Speak             bool     `toml:"speak"`
	SpeechCommand     []string `toml:"speech_command"` // empty prints replies
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level      string `toml:"level"` // debug, info, warn, error
	File       string `toml:"file"`  // empty logs to stderr
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// PathsConfig contains file path settings.
type PathsConfig struct {
	DataDir      string `toml:"data_dir"`
	TranscriptDB string `toml:"transcript_db"` // empty disables the journal
}

// Duration is a time.Duration written as a string ("2s", "1m30s").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}
