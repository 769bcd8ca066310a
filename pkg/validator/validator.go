// Package validator provides rule-based input validation. Rules are composed
// with Apply, which collects every failed rule into a ValidationErrors value.
package validator

import (
	"fmt"
	"net/mail"
	"strings"
)

// ValidationError represents a single validation failure.
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is a collection of validation failures.
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}

	parts := make([]string, 0, len(ve))
	for _, err := range ve {
		parts = append(parts, fmt.Sprintf("%s: %s", err.Field, err.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Has reports whether a failure was recorded for the given field.
func (ve ValidationErrors) Has(field string) bool {
	for _, err := range ve {
		if err.Field == field {
			return true
		}
	}
	return false
}

// Rule represents a single validation rule.
type Rule struct {
	Check func() bool
	Error ValidationError
}

// Apply executes the rules and returns ValidationErrors if any failed.
func Apply(rules ...Rule) error {
	var errs ValidationErrors
	for _, rule := range rules {
		if !rule.Check() {
			errs = append(errs, rule.Error)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// ValidEmail validates that value is a plausible email address: RFC 5322
// parseable with a dotted domain, which is what web signups need.
func ValidEmail(field, value string) Rule {
	return Rule{
		Check: func() bool {
			if strings.TrimSpace(value) == "" {
				return false
			}

			addr, err := mail.ParseAddress(value)
			if err != nil || addr.Address != value {
				return false
			}

			parts := strings.Split(addr.Address, "@")
			if len(parts) != 2 || parts[0] == "" {
				return false
			}

			domain := parts[1]
			return strings.Contains(domain, ".") &&
				!strings.HasPrefix(domain, ".") &&
				!strings.HasSuffix(domain, ".")
		},
		Error: ValidationError{Field: field, Message: "must be a valid email address"},
	}
}

// Required validates that value is not blank.
func Required(field, value string) Rule {
	return Rule{
		Check: func() bool { return strings.TrimSpace(value) != "" },
		Error: ValidationError{Field: field, Message: "is required"},
	}
}
