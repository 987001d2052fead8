package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces credential values in log lines.
const RedactedValue = "[REDACTED]"

// credentialKeys are the log attributes that carry bearer tokens, API keys or secrets.
var credentialKeys = map[string]struct{}{
	"token":         {},
	"authorization": {},
	"api_key":       {},
	"x-api-key":     {},
	"secret":        {},
	"hmac_secret":   {},
}

// MaskField returns key=value with the value replaced by RedactedValue when key names a
// credential. Empty values pass through so a missing credential stays visible.
func MaskField(key, value string) slog.Attr {
	if _, ok := credentialKeys[strings.ToLower(strings.TrimSpace(key))]; ok && strings.TrimSpace(value) != "" {
		return slog.String(key, RedactedValue)
	}
	return slog.String(key, value)
}
