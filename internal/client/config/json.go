package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/podesk/internal/flagx"
	"github.com/dmitrijs2005/podesk/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations use
// timex.Duration so they may be written as "5s" or integer nanoseconds.
// Absent fields leave the current value untouched.
type JsonConfig struct {
	ServerURL            string          `json:"server_url"`
	Username             string          `json:"username"`
	RequestTimeout       *timex.Duration `json:"request_timeout"`
	SyncInterval         *timex.Duration `json:"sync_interval"`
	ApprovalPollInterval *timex.Duration `json:"approval_poll_interval"`
	RequesterCadence     *timex.Duration `json:"requester_cadence"`
	RequesterMinWait     *timex.Duration `json:"requester_min_wait"`
	ApprovalTimeout      *timex.Duration `json:"approval_timeout"`
	SnoozeWindow         *timex.Duration `json:"snooze_window"`
	DriftThreshold       *timex.Duration `json:"drift_threshold"`
	AuthenticatorCommand string          `json:"authenticator_command"`
	KeyFile              string          `json:"key_file"`
	LogLevel             string          `json:"log_level"`
	LogFormat            string          `json:"log_format"`
}

// parseJson overlays cfg with the file named by -c/-config. Without the flag
// it does nothing. Read or decode failures panic.
func parseJson(cfg *Config) {
	path := flagx.ConfigFilePath()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}
	jc.apply(cfg)
}

func (jc *JsonConfig) apply(cfg *Config) {
	setString(&cfg.ServerURL, jc.ServerURL)
	setString(&cfg.Username, jc.Username)
	setString(&cfg.AuthenticatorCommand, jc.AuthenticatorCommand)
	setString(&cfg.KeyFile, jc.KeyFile)
	setString(&cfg.LogLevel, jc.LogLevel)
	setString(&cfg.LogFormat, jc.LogFormat)

	for _, d := range []struct {
		src *timex.Duration
		dst *time.Duration
	}{
		{jc.RequestTimeout, &cfg.RequestTimeout},
		{jc.SyncInterval, &cfg.SyncInterval},
		{jc.ApprovalPollInterval, &cfg.ApprovalPollInterval},
		{jc.RequesterCadence, &cfg.RequesterCadence},
		{jc.RequesterMinWait, &cfg.RequesterMinWait},
		{jc.ApprovalTimeout, &cfg.ApprovalTimeout},
		{jc.SnoozeWindow, &cfg.SnoozeWindow},
		{jc.DriftThreshold, &cfg.DriftThreshold},
	} {
		if d.src != nil {
			*d.dst = d.src.Duration
		}
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
