// Package config loads the stagehand server configuration from a TOML file.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath   = "config.toml"
	DefaultHTTPAddr     = ":8080"
	DefaultJWTExpiresIn = "24h"
	DefaultPGHost       = "127.0.0.1"
	DefaultPGPort       = 5432
	DefaultPGUser       = "postgres"
	DefaultPGDatabase   = "stagehand"
	DefaultPGSSLMode    = "disable"
	DefaultDialogueURL  = "https://api.openai.com/v1"

	// DefaultCoalesceWindowSeconds is the quiet window after the last inbound
	// message before a turn is triggered.
	DefaultCoalesceWindowSeconds = 4
	// DefaultTurnTimeoutSeconds bounds the advisory lock held per turn.
	DefaultTurnTimeoutSeconds = 90
	// DefaultSweepIntervalSeconds is the cadence of the maintenance sweep that
	// re-arms overdue batches after a restart.
	DefaultSweepIntervalSeconds = 30
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Auth     AuthConfig     `toml:"auth"`
	Postgres PostgresConfig `toml:"postgres"`
	Dialogue DialogueConfig `toml:"dialogue"`
	Coalesce CoalesceConfig `toml:"coalesce"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr" validate:"required"`
}

type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
}

type PostgresConfig struct {
	Host     string `toml:"host" validate:"required"`
	Port     int    `toml:"port" validate:"gt=0"`
	User     string `toml:"user" validate:"required"`
	Password string `toml:"password"`
	Database string `toml:"database" validate:"required"`
	SSLMode  string `toml:"sslmode"`
}

// DSN renders the pgx connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// DialogueConfig points at the OpenAI-compatible text-generation endpoint.
// Model may be overridden per route.
type DialogueConfig struct {
	BaseURL        string `toml:"base_url" validate:"required,url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds" validate:"gt=0"`
}

type CoalesceConfig struct {
	WindowSeconds      int `toml:"window_seconds" validate:"gt=0"`
	TurnTimeoutSeconds int `toml:"turn_timeout_seconds" validate:"gt=0"`
	SweepSeconds       int `toml:"sweep_interval_seconds" validate:"gt=0"`
}

// Load reads the config file at path, filling defaults first. A missing file is
// not an error; the defaults are returned as-is.
func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Auth: AuthConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Dialogue: DialogueConfig{
			BaseURL:        DefaultDialogueURL,
			Model:          "gpt-4o-mini",
			TimeoutSeconds: 60,
		},
		Coalesce: CoalesceConfig{
			WindowSeconds:      DefaultCoalesceWindowSeconds,
			TurnTimeoutSeconds: DefaultTurnTimeoutSeconds,
			SweepSeconds:       DefaultSweepIntervalSeconds,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}
