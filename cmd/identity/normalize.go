package identity

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var usernameRe = regexp.MustCompile(`^[a-z0-9_.]{3,32}$`)

// NormalizeUsername performs case-insensitive canonicalization.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidUsername reports whether a normalized username is acceptable.
func ValidUsername(norm string) bool {
	return usernameRe.MatchString(norm)
}

// ValidEmail is a shape check only; deliverability is not verified.
func ValidEmail(norm string) bool {
	if len(norm) > 254 || strings.ContainsAny(norm, " \t\r\n") {
		return false
	}
	at := strings.LastIndexByte(norm, '@')
	return at > 0 && at < len(norm)-1 && strings.Contains(norm[at+1:], ".")
}

// ValidDisplayName bounds free-form display names.
func ValidDisplayName(s string) bool {
	n := utf8.RuneCountInString(strings.TrimSpace(s))
	return n > 0 && n <= 64
}
