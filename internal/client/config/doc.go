// Package config loads runtime configuration for the podesk terminal client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Environment variables prefixed with PODESK_, optionally seeded from a
//     dotenv file (-e/-env, or ./.env when present).
//  3. Optional JSON file selected with -c or -config.
//  4. Command-line flags, which override earlier values.
//
// The merged result is validated with go-playground/validator.
//
// # JSON schema
//
//	{
//	  "server_url": "http://127.0.0.1:8080/api",
//	  "sync_interval": "5s",
//	  "approval_poll_interval": "4s",
//	  "snooze_window": "2m",
//	  "drift_threshold": "3s",
//	  "log_format": "console"
//	}
package config
