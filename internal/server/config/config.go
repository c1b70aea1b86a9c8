// Package config handles configuration for the development backend,
// including defaults, environment, JSON overlay and command-line flags.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds runtime settings for the podesk development backend.
//
// An empty SetupCode is replaced at startup with a random one that is
// logged, so first-admin setup is always possible on a fresh server.
// AccessCode falls back to SetupCode when empty.
type Config struct {
	ListenAddr   string `validate:"required"`
	RPID         string `validate:"required"`
	RPName       string `validate:"required"`
	Origin       string `validate:"omitempty,url"`
	SetupCode    string
	AccessCode   string
	RateLimit    int           `validate:"gte=0"`
	ApprovalTTL  time.Duration `validate:"gt=0"`
	OnlineWindow time.Duration `validate:"gt=0"`
	SecureCookie bool
	LogLevel     string `validate:"oneof=debug info warn error"`
	LogFormat    string `validate:"oneof=text json console"`
}

// LoadDefaults populates c with development defaults.
func (c *Config) LoadDefaults() {
	c.ListenAddr = ":8080"
	c.RPID = "localhost"
	c.RPName = "PO Editor"
	c.Origin = ""
	c.SetupCode = ""
	c.AccessCode = ""
	c.RateLimit = 30
	c.ApprovalTTL = 120 * time.Second
	c.OnlineWindow = 12 * time.Second
	c.SecureCookie = false
	c.LogLevel = "info"
	c.LogFormat = "json"
}

var validate = validator.New()

// Validate checks field constraints and reports the first violation.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if ve, ok := err.(validator.ValidationErrors); ok && len(ve) > 0 {
			fe := ve[0]
			return fmt.Errorf("invalid config: %s failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LoadConfig builds a Config from defaults, the environment, an optional
// JSON file and finally command-line flags. The result is validated.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	parseJson(cfg)
	parseFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
