package password

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Validate checks password policy. Length is counted in runes.
func (c Config) Validate(password string) error {
	n := utf8.RuneCountInString(password)

	if n < c.Policy.MinLength {
		return ErrPasswordTooShort
	}
	if n > c.Policy.MaxLength {
		return ErrPasswordTooLong
	}
	if c.Policy.RejectVeryWeak && looksVeryWeak(password) {
		return ErrWeakPassword
	}
	return nil
}

var commonPasswords = map[string]struct{}{
	"password":    {},
	"password1":   {},
	"password123": {},
	"123456":      {},
	"12345678":    {},
	"123456789":   {},
	"qwerty":      {},
	"qwerty123":   {},
	"11111111":    {},
	"iloveyou":    {},
	"letmein1":    {},
}

// looksVeryWeak rejects a handful of trivial shapes; it is not an entropy estimator.
func looksVeryWeak(pw string) bool {
	s := strings.TrimSpace(pw)
	if s == "" {
		return true
	}

	if _, ok := commonPasswords[strings.ToLower(s)]; ok {
		return true
	}

	first, _ := utf8.DecodeRuneInString(s)
	if strings.Count(s, string(first)) == utf8.RuneCountInString(s) {
		return true
	}

	// Short digit-only strings are PIN-like.
	return utf8.RuneCountInString(s) < 12 && strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) }) == -1
}
