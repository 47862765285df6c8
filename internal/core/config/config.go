package config

import (
	redisclient "github.com/zapdesk/wabridge/internal/infra/redis"
	"github.com/zapdesk/wabridge/internal/infra/storage/postgres"
	"github.com/zapdesk/wabridge/internal/session"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	WhatsApp WhatsAppConfig     `yaml:"whatsapp"`
	Redis    redisclient.Config `yaml:"redis"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// WhatsAppConfig holds the session engine settings.
type WhatsAppConfig struct {
	// StoragePath is the base directory for per-session media files.
	StoragePath string `yaml:"storage_path"`
	// AutoStart connects every stored session on boot.
	AutoStart bool `yaml:"auto_start"`

	Engine session.Config `yaml:"engine"`
}
