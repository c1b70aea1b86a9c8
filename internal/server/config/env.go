package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/podesk/internal/flagx"
	"github.com/joho/godotenv"
)

const envPrefix = "PODESK_SERVER_"

// parseEnv overlays cfg with PODESK_SERVER_* variables, after loading the
// dotenv file named by -e/-env or ./.env when present.
func parseEnv(cfg *Config) error {
	if path := flagx.EnvFilePath(); path != "" {
		if err := godotenv.Load(path); err != nil {
			return err
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	cfg.ListenAddr = getEnv("LISTEN_ADDR", cfg.ListenAddr)
	cfg.RPID = getEnv("RP_ID", cfg.RPID)
	cfg.RPName = getEnv("RP_NAME", cfg.RPName)
	cfg.Origin = getEnv("ORIGIN", cfg.Origin)
	cfg.SetupCode = getEnv("SETUP_CODE", cfg.SetupCode)
	cfg.AccessCode = getEnv("ACCESS_CODE", cfg.AccessCode)
	cfg.ApprovalTTL = getEnvAsDuration("APPROVAL_TTL", cfg.ApprovalTTL)
	cfg.OnlineWindow = getEnvAsDuration("ONLINE_WINDOW", cfg.OnlineWindow)
	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", cfg.LogFormat))
	if v := getEnv("RATE_LIMIT", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit = n
		}
	}
	if v := getEnv("SECURE_COOKIE", ""); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.SecureCookie = b
		}
	}
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
