package configuration

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrHostnameEmpty   = errors.New("hostname is empty")
	ErrHostnameTooLong = errors.New("hostname is longer than 63 characters")
	ErrHostnameEquals  = errors.New("hostname contains '=' - this looks like an environment variable assignment passed as a positional argument; put VAR=value switches before the command name")
	ErrHostnameFormat  = errors.New("hostname must start and end with a letter or digit and contain only letters, digits and hyphens")
)

var validHostname = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?$`)

const maxHostnameLen = 63

// ValidateHostname checks a hostname against RFC 1123 label rules.
// The '=' check runs first so that a mistakenly shifted KEY=VALUE
// token gets the actionable message, not a generic format error.
func ValidateHostname(s string) error {
	if s == "" {
		return ErrHostnameEmpty
	}
	if strings.Contains(s, "=") {
		return fmt.Errorf("%q: %w", s, ErrHostnameEquals)
	}
	if len(s) > maxHostnameLen {
		return fmt.Errorf("%q: %w", s, ErrHostnameTooLong)
	}
	if !validHostname.MatchString(s) {
		return fmt.Errorf("%q: %w", s, ErrHostnameFormat)
	}
	return nil
}
