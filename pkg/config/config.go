// Package config loads the server's yaml configuration.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Game     GameConfig     `yaml:"game"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds the websocket listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig locates the sqlite room directory.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// GameConfig holds table behavior knobs shared by every room.
type GameConfig struct {
	ActionTimeout  int   `yaml:"action_timeout"`   // seconds before a turn is auto-folded
	AutoStartDelay int   `yaml:"auto_start_delay"` // seconds between hand end and next deal
	BuyIn          int64 `yaml:"buy_in"`           // fixed buy-in, in chips (1 chip = 1 USDC)
	MaxPlayers     int   `yaml:"max_players"`      // default room capacity
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	File       string `yaml:"file"`
	DebugLevel string `yaml:"debug_level"`
}

// ActionTimeoutDuration returns the turn timeout.
func (c *GameConfig) ActionTimeoutDuration() time.Duration {
	return time.Duration(c.ActionTimeout) * time.Second
}

// AutoStartDelayDuration returns the pause before auto-starting the
// next hand.
func (c *GameConfig) AutoStartDelayDuration() time.Duration {
	return time.Duration(c.AutoStartDelay) * time.Second
}

// Load reads the config at path, filling in defaults for anything the
// file leaves unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3001
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "highace.db"
	}
	if cfg.Game.ActionTimeout == 0 {
		cfg.Game.ActionTimeout = 30
	}
	if cfg.Game.AutoStartDelay == 0 {
		cfg.Game.AutoStartDelay = 3
	}
	if cfg.Game.BuyIn == 0 {
		cfg.Game.BuyIn = 1000
	}
	if cfg.Game.MaxPlayers == 0 {
		cfg.Game.MaxPlayers = 6
	}
	if cfg.Logging.DebugLevel == "" {
		cfg.Logging.DebugLevel = "info"
	}
}
