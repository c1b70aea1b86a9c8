package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/podesk/internal/flagx"
	"github.com/dmitrijs2005/podesk/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Absent fields leave
// the current value untouched.
type JsonConfig struct {
	ListenAddr   string          `json:"listen_addr"`
	RPID         string          `json:"rp_id"`
	RPName       string          `json:"rp_name"`
	Origin       string          `json:"origin"`
	SetupCode    string          `json:"setup_code"`
	AccessCode   string          `json:"access_code"`
	RateLimit    *int            `json:"rate_limit"`
	ApprovalTTL  *timex.Duration `json:"approval_ttl"`
	OnlineWindow *timex.Duration `json:"online_window"`
	SecureCookie *bool           `json:"secure_cookie"`
	LogLevel     string          `json:"log_level"`
	LogFormat    string          `json:"log_format"`
}

// parseJson overlays cfg with the file named by -c/-config. Read or decode
// failures panic.
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
	setString(&cfg.ListenAddr, jc.ListenAddr)
	setString(&cfg.RPID, jc.RPID)
	setString(&cfg.RPName, jc.RPName)
	setString(&cfg.Origin, jc.Origin)
	setString(&cfg.SetupCode, jc.SetupCode)
	setString(&cfg.AccessCode, jc.AccessCode)
	setString(&cfg.LogLevel, jc.LogLevel)
	setString(&cfg.LogFormat, jc.LogFormat)
	if jc.RateLimit != nil {
		cfg.RateLimit = *jc.RateLimit
	}
	if jc.ApprovalTTL != nil {
		cfg.ApprovalTTL = jc.ApprovalTTL.Duration
	}
	if jc.OnlineWindow != nil {
		cfg.OnlineWindow = jc.OnlineWindow.Duration
	}
	if jc.SecureCookie != nil {
		cfg.SecureCookie = *jc.SecureCookie
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
