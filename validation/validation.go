package validation

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

type Violations map[string]string

func (v Violations) Empty() bool { return len(v) == 0 }

// Basic validators
func Required(field, value string, v Violations) {
	if strings.TrimSpace(value) == "" {
		v[field] = "required"
	}
}

// Email records "invalid_email" unless value is a bare address. Empty values
// are left to Required.
func Email(field, value string, v Violations) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value || !strings.Contains(addr.Address[strings.LastIndex(addr.Address, "@"):], ".") {
		v[field] = "invalid_email"
	}
}

// MinLength records "too_short" when value has fewer than n characters.
func MinLength(field, value string, n int, v Violations) {
	if _, set := v[field]; set {
		return
	}
	if utf8.RuneCountInString(value) < n {
		v[field] = "too_short"
	}
}

// OneOf records "invalid_choice" when value is not one of allowed.
func OneOf(field, value string, allowed []string, v Violations) {
	if value == "" {
		return
	}
	for _, a := range allowed {
		if strings.EqualFold(a, value) {
			return
		}
	}
	v[field] = "invalid_choice"
}
