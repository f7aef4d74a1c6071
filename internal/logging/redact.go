package logging

import (
	"net/url"
	"regexp"
	"strings"
)

// sensitivePatterns match secrets that end up inside error strings and URLs.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|api[_-]?secret|access[_-]?token|auth[_-]?token|token|password)([=:]\s*)["']?([^\s"'&]+)`),
	regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9\-_.=]+)`),
	regexp.MustCompile(`(/bot)([0-9]+:[A-Za-z0-9_\-]+)`), // Telegram bot tokens in API paths
}

// urlPattern finds URLs carrying user info.
var urlPattern = regexp.MustCompile(`[a-z][a-z0-9+.\-]*://[^\s/@]+@[^\s]+`)

// MaskSecret keeps the first four characters of long secrets.
func MaskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "****"
	default:
		return s[:4] + strings.Repeat("*", 8)
	}
}

// RedactSecrets masks credentials embedded in s: key=value pairs, bearer
// tokens, bot tokens and passwords in URLs.
func RedactSecrets(s string) string {
	s = urlPattern.ReplaceAllStringFunc(s, RedactURL)
	for _, p := range sensitivePatterns {
		s = p.ReplaceAllStringFunc(s, func(match string) string {
			m := p.FindStringSubmatch(match)
			secret := m[len(m)-1]
			return strings.TrimSuffix(match, secret) + MaskSecret(secret)
		})
	}
	return s
}

// RedactURL hides the password of a connection URL such as a DSN.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
