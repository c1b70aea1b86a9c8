package logging

import (
	"log/slog"
	"strings"
)

// Redacted replaces the value of a sensitive field.
const Redacted = "[REDACTED]"

// sensitiveKeys are field names whose values must never reach a log:
// setup and access codes, passkey payloads and the session cookie.
var sensitiveKeys = map[string]bool{
	"setup_code":  true,
	"access_code": true,
	"code":        true,
	"credential":  true,
	"assertion":   true,
	"cookie":      true,
	"session":     true,
}

func isSensitive(key string) bool {
	return sensitiveKeys[strings.ToLower(key)]
}

// redactArgs returns key-value args with sensitive values masked. args is
// not modified.
func redactArgs(args []any) []any {
	var out []any
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok || !isSensitive(key) {
			continue
		}
		if out == nil {
			out = append([]any(nil), args...)
		}
		out[i+1] = Redacted
	}
	if out == nil {
		return args
	}
	return out
}

// redactAttr is a slog ReplaceAttr hook.
func redactAttr(_ []string, a slog.Attr) slog.Attr {
	if isSensitive(a.Key) {
		return slog.String(a.Key, Redacted)
	}
	return a
}
