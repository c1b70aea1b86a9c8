package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/podesk/internal/flagx"
	"github.com/joho/godotenv"
)

const envPrefix = "PODESK_"

// parseEnv overlays cfg with PODESK_* variables. A dotenv file named by
// -e/-env, or ./.env when present, is loaded first without overriding
// variables already set in the process environment.
func parseEnv(cfg *Config) error {
	if path := flagx.EnvFilePath(); path != "" {
		if err := godotenv.Load(path); err != nil {
			return err
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	cfg.ServerURL = getEnv("SERVER_URL", cfg.ServerURL)
	cfg.Username = getEnv("USERNAME", cfg.Username)
	cfg.RequestTimeout = getEnvAsDuration("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.SyncInterval = getEnvAsDuration("SYNC_INTERVAL", cfg.SyncInterval)
	cfg.ApprovalPollInterval = getEnvAsDuration("APPROVAL_POLL_INTERVAL", cfg.ApprovalPollInterval)
	cfg.RequesterCadence = getEnvAsDuration("REQUESTER_CADENCE", cfg.RequesterCadence)
	cfg.RequesterMinWait = getEnvAsDuration("REQUESTER_MIN_WAIT", cfg.RequesterMinWait)
	cfg.ApprovalTimeout = getEnvAsDuration("APPROVAL_TIMEOUT", cfg.ApprovalTimeout)
	cfg.SnoozeWindow = getEnvAsDuration("SNOOZE_WINDOW", cfg.SnoozeWindow)
	cfg.DriftThreshold = getEnvAsDuration("DRIFT_THRESHOLD", cfg.DriftThreshold)
	cfg.AuthenticatorCommand = getEnv("AUTHENTICATOR", cfg.AuthenticatorCommand)
	cfg.KeyFile = getEnv("KEY_FILE", cfg.KeyFile)
	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", cfg.LogFormat))
	return nil
}

func getEnv(key, defaultVal string) string {
	if value := strings.TrimSpace(os.Getenv(envPrefix + key)); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := getEnv(key, ""); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}
