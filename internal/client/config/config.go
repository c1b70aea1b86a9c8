package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds runtime settings for the podesk terminal client.
//
// Intervals mirror the backend's expectations: the sync poller runs every
// SyncInterval, approvers poll every ApprovalPollInterval, and a requester
// waiting for approval polls at RequesterCadence but never sooner than
// RequesterMinWait after the previous poll.
type Config struct {
	ServerURL            string        `validate:"required,url"`
	Username             string        `validate:"required"`
	RequestTimeout       time.Duration `validate:"gt=0"`
	SyncInterval         time.Duration `validate:"gt=0"`
	ApprovalPollInterval time.Duration `validate:"gt=0"`
	RequesterCadence     time.Duration `validate:"gt=0"`
	RequesterMinWait     time.Duration `validate:"gt=0"`
	ApprovalTimeout      time.Duration `validate:"gt=0"`
	SnoozeWindow         time.Duration `validate:"gt=0"`
	DriftThreshold       time.Duration `validate:"gte=0"`
	AuthenticatorCommand string
	// KeyFile stores the built-in software authenticator's keys. It is
	// used only when AuthenticatorCommand is empty.
	KeyFile              string
	LogLevel             string `validate:"oneof=debug info warn error"`
	LogFormat            string `validate:"oneof=text json console"`
}

// LoadDefaults populates c with the values the backend is tuned for.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080/api"
	c.Username = "admin"
	c.RequestTimeout = 10 * time.Second
	c.SyncInterval = 5 * time.Second
	c.ApprovalPollInterval = 4 * time.Second
	c.RequesterCadence = time.Second
	c.RequesterMinWait = 180 * time.Millisecond
	c.ApprovalTimeout = 120 * time.Second
	c.SnoozeWindow = 120 * time.Second
	c.DriftThreshold = 3 * time.Second
	c.AuthenticatorCommand = ""
	c.KeyFile = ".podesk-keys.json"
	c.LogLevel = "info"
	c.LogFormat = "console"
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

// LoadConfig constructs a Config from defaults, then the environment
// (optionally seeded from a .env file), then a JSON file, then command-line
// flags. Later sources take precedence. The result is validated.
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
