package config

import (
	"flag"
	"io"
	"os"
	"time"

	"github.com/dmitrijs2005/podesk/internal/flagx"
)

// parseFlags overlays cfg with command-line flags:
//
//	-a string   backend API base URL
//	-u string   account name used for first passkey setup
//	-s int      sync poll interval (seconds)
//	-p int      approval poll interval (seconds)
//	-t int      request timeout (seconds)
//	-x string   authenticator helper command
//	-k string   software authenticator key file
//	-l string   log level
//
// Only these flags are looked at; the rest of os.Args is ignored.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-u", "-s", "-p", "-t", "-x", "-k", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "backend API base URL")
	fs.StringVar(&cfg.Username, "u", cfg.Username, "account name for first passkey setup")
	syncInterval := fs.Int("s", int(cfg.SyncInterval.Seconds()), "sync poll interval (in seconds)")
	approvalInterval := fs.Int("p", int(cfg.ApprovalPollInterval.Seconds()), "approval poll interval (in seconds)")
	requestTimeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")
	fs.StringVar(&cfg.AuthenticatorCommand, "x", cfg.AuthenticatorCommand, "authenticator helper command")
	fs.StringVar(&cfg.KeyFile, "k", cfg.KeyFile, "software authenticator key file")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	// Whole-second flags only override when given, so sub-second defaults survive.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "s":
			cfg.SyncInterval = time.Duration(*syncInterval) * time.Second
		case "p":
			cfg.ApprovalPollInterval = time.Duration(*approvalInterval) * time.Second
		case "t":
			cfg.RequestTimeout = time.Duration(*requestTimeout) * time.Second
		}
	})
}
