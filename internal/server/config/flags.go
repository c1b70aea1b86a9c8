package config

import (
	"flag"
	"io"
	"os"

	"github.com/dmitrijs2005/podesk/internal/flagx"
)

// parseFlags overlays cfg with command-line flags:
//
//	-a string   listen address (e.g. ":8080")
//	-r string   passkey relying party id
//	-o string   expected client origin
//	-s string   first-admin setup code
//	-k string   access code
//	-q int      sign-in requests per minute per IP (0 disables)
//	-l string   log level
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-r", "-o", "-s", "-k", "-q", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ListenAddr, "a", cfg.ListenAddr, "address and port to run server")
	fs.StringVar(&cfg.RPID, "r", cfg.RPID, "relying party id")
	fs.StringVar(&cfg.Origin, "o", cfg.Origin, "expected client origin")
	fs.StringVar(&cfg.SetupCode, "s", cfg.SetupCode, "first-admin setup code")
	fs.StringVar(&cfg.AccessCode, "k", cfg.AccessCode, "access code")
	fs.IntVar(&cfg.RateLimit, "q", cfg.RateLimit, "sign-in requests per minute per IP")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
