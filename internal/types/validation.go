package types

import (
	"fmt"
	"strings"
)

// Validation constraint constants.
const (
	MaxNameLength    = 200
	MaxNotesLength   = 5000
	MaxSMSLength     = 1600
	MaxSMSRecipients = 100
	MaxListLimit     = 100
	DefaultListLimit = 50

	// DefaultCountryCode is assumed for national-format phone numbers.
	DefaultCountryCode = "33"
)

// NormalizePhone converts a phone number to E.164-style +<country><number>
// form. National-format numbers (leading 0) are assumed to be French.
// Returns an error when no digits remain after cleaning.
func NormalizePhone(raw string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '.', '-', '(', ')':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))

	if cleaned == "" {
		return "", fmt.Errorf("%s: empty phone number", ErrCodeValidationInvalidPhone)
	}

	switch {
	case strings.HasPrefix(cleaned, "+"):
		// Already international.
	case strings.HasPrefix(cleaned, "00"):
		cleaned = "+" + cleaned[2:]
	case strings.HasPrefix(cleaned, "0"):
		cleaned = "+" + DefaultCountryCode + cleaned[1:]
	default:
		cleaned = "+" + cleaned
	}

	digits := cleaned[1:]
	if len(digits) < 8 || len(digits) > 15 {
		return "", fmt.Errorf("%s: %q has %d digits, expected 8-15", ErrCodeValidationInvalidPhone, raw, len(digits))
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%s: %q contains non-digit characters", ErrCodeValidationInvalidPhone, raw)
		}
	}
	return cleaned, nil
}

// ValidEmailTemplate reports whether t is one of the known templates.
// The email dispatcher is a closed system: unknown templates are rejected,
// never rendered with a default layout.
func ValidEmailTemplate(t EmailTemplate) bool {
	for _, known := range AllEmailTemplates {
		if t == known {
			return true
		}
	}
	return false
}
