package logging

import (
	"log/slog"
	"net/url"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

var redactionAllowlist = map[string]struct{}{
	"service":   {},
	"env":       {},
	"message":   {},
	"severity":  {},
	"timestamp": {},
	"error":     {},
	"reason":    {},
	"component": {},
	"cdp":       {},
	"ilk":       {},
	"account":   {},
}

func isAllowlisted(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	_, ok := redactionAllowlist[normalized]
	return ok
}

// MaskField returns a slog.Attr that redacts the supplied value unless the key is
// explicitly allowlisted. The original key casing is preserved for readability.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || isAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// MaskURL keeps the scheme and host of an endpoint and redacts everything
// else. Node providers embed API keys in the path or query.
func MaskURL(key, raw string) slog.Attr {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return slog.String(key, raw)
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" {
		return slog.String(key, RedactedValue)
	}
	masked := parsed.Scheme + "://" + parsed.Host
	if (parsed.Path != "" && parsed.Path != "/") || parsed.RawQuery != "" || parsed.User != nil {
		masked += "/" + RedactedValue
	}
	return slog.String(key, masked)
}
