package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/zapdesk/wabridge/internal/session"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.WhatsApp.StoragePath == "" {
		cfg.WhatsApp.StoragePath = "storage"
	}

	def := session.DefaultConfig()
	eng := &cfg.WhatsApp.Engine
	if eng.MaxRetries == 0 {
		eng.MaxRetries = def.MaxRetries
	}
	if eng.AttemptCooldown == 0 {
		eng.AttemptCooldown = def.AttemptCooldown
	}
	if eng.QR.Expiry == 0 {
		eng.QR.Expiry = def.QR.Expiry
	}
	if eng.QR.PollInterval == 0 {
		eng.QR.PollInterval = def.QR.PollInterval
	}
	if eng.QR.PollCeiling == 0 {
		eng.QR.PollCeiling = def.QR.PollCeiling
	}
	if eng.QR.MaxGenerations == 0 {
		eng.QR.MaxGenerations = def.QR.MaxGenerations
	}
	if eng.Heartbeat.FirstDelay == 0 {
		eng.Heartbeat.FirstDelay = def.Heartbeat.FirstDelay
	}
	if eng.Heartbeat.Interval == 0 {
		eng.Heartbeat.Interval = def.Heartbeat.Interval
	}
	if eng.Heartbeat.SafetyDelay == 0 {
		eng.Heartbeat.SafetyDelay = def.Heartbeat.SafetyDelay
	}
	if eng.Heartbeat.SendTimeout == 0 {
		eng.Heartbeat.SendTimeout = def.Heartbeat.SendTimeout
	}
}
