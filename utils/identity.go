package utils

import (
	"fmt"
	"regexp"
	"strings"
)

// Identity validation constants
const (
	MinIdentityLength = 3
	MaxIdentityLength = 64
	IdentityPattern   = `^[a-zA-Z0-9_\-.@]+$`
)

var identityRegex = regexp.MustCompile(IdentityPattern)

// ValidateIdentity checks that an identity is usable as a login name.
func ValidateIdentity(identity string) error {
	if identity == "" {
		return fmt.Errorf("identity cannot be empty")
	}
	if len(identity) < MinIdentityLength {
		return fmt.Errorf("identity must be at least %d characters", MinIdentityLength)
	}
	if len(identity) > MaxIdentityLength {
		return fmt.Errorf("identity must be at most %d characters", MaxIdentityLength)
	}
	if !identityRegex.MatchString(identity) {
		return fmt.Errorf("identity can only contain letters, numbers, underscores, hyphens, periods, and @")
	}
	if strings.HasPrefix(identity, ".") || strings.HasSuffix(identity, ".") {
		return fmt.Errorf("identity cannot start or end with a period")
	}
	return nil
}

// IsHexString reports whether s is non-empty and only hexadecimal digits.
func IsHexString(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
