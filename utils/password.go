package utils

import (
	"errors"
	"fmt"
	"math"

	"github.com/trustelem/zxcvbn"
)

// The password is the only secret behind a registration: the server stores
// g^x and h^x, which an attacker can test guesses against offline.
const (
	MinPasswordLength  = 12
	MinPasswordScore   = 3
	MinPasswordEntropy = 50.0
)

var ErrWeakPassword = errors.New("password is too weak")

// PasswordStrength summarizes a zxcvbn analysis.
type PasswordStrength struct {
	Score       int      `json:"score"`
	EntropyBits float64  `json:"entropy_bits"`
	Feedback    []string `json:"feedback,omitempty"`
}

// CheckPasswordStrength scores password, penalizing reuse of the identity.
// It returns ErrWeakPassword (wrapped with the reason) when the password
// falls below the minimums.
func CheckPasswordStrength(password, identity string) (*PasswordStrength, error) {
	if len(password) < MinPasswordLength {
		return &PasswordStrength{}, fmt.Errorf("%w: use at least %d characters", ErrWeakPassword, MinPasswordLength)
	}

	result := zxcvbn.PasswordStrength(password, []string{identity})
	strength := &PasswordStrength{Score: result.Score}
	if result.Guesses > 0 {
		strength.EntropyBits = math.Log2(result.Guesses)
	}

	seen := make(map[string]bool)
	for _, m := range result.Sequence {
		var hint string
		switch m.Pattern {
		case "dictionary":
			hint = "contains common words or the identity"
		case "spatial":
			hint = "contains keyboard patterns"
		case "repeat":
			hint = "contains repeated characters"
		case "sequence":
			hint = "contains sequential characters"
		case "date":
			hint = "contains a date"
		}
		if hint != "" && !seen[hint] {
			seen[hint] = true
			strength.Feedback = append(strength.Feedback, hint)
		}
	}

	if strength.Score < MinPasswordScore || strength.EntropyBits < MinPasswordEntropy {
		return strength, fmt.Errorf("%w: score %d/4, %.0f bits", ErrWeakPassword, strength.Score, strength.EntropyBits)
	}
	return strength, nil
}
