// Package sanitizer normalizes and masks user-supplied identifiers before
// they are stored, compared, or logged.
package sanitizer

import (
	"regexp"
	"strings"
)

var dotRegex = regexp.MustCompile(`\.{2,}`)

// NormalizeEmail lowercases and trims an email address and consolidates
// consecutive dots in the local part. Invalid shapes are returned as-is so
// validation can report them.
func NormalizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return email
	}

	local := dotRegex.ReplaceAllString(parts[0], ".")
	local = strings.Trim(local, ".")

	return local + "@" + parts[1]
}

// MaskEmail hides the local part while preserving the full domain, so logs
// stay correlatable without exposing the identifier.
func MaskEmail(email string) string {
	email = strings.TrimSpace(email)
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return email
	}

	local := parts[0]
	switch len(local) {
	case 0:
		return email
	case 1:
		return "*@" + parts[1]
	default:
		return string(local[0]) + strings.Repeat("*", len(local)-1) + "@" + parts[1]
	}
}

// MaskToken keeps the first and last four characters of a token for log
// correlation. Short tokens are fully masked.
func MaskToken(token string) string {
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + "..." + token[len(token)-4:]
}
