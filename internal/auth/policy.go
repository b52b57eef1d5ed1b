package auth

import (
	"regexp"
	"unicode"
	"unicode/utf8"

	"github.com/sonoscan/sonoscan/internal/errors"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 30

	minPasswordLen    = 8
	strongPasswordLen = 12
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Strength grades a password for display. It is advisory; ValidatePassword is the policy.
type Strength string

const (
	StrengthWeak   Strength = "Weak"
	StrengthMedium Strength = "Medium"
	StrengthStrong Strength = "Strong"
)

// ValidateUsername accepts 3 to 30 letters, digits or underscores.
func ValidateUsername(username string) error {
	n := utf8.RuneCountInString(username)
	switch {
	case n < minUsernameLen:
		return policyError("username", "Username must be at least 3 characters long")
	case n > maxUsernameLen:
		return policyError("username", "Username must be at most 30 characters long")
	case !usernamePattern.MatchString(username):
		return policyError("username", "Username can only contain letters, numbers and underscores")
	}
	return nil
}

type passwordTraits struct {
	upper, lower, digit, special bool
}

func classify(pw string) passwordTraits {
	var t passwordTraits
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			t.upper = true
		case unicode.IsLower(r):
			t.lower = true
		case unicode.IsDigit(r):
			t.digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			t.special = true
		}
	}
	return t
}

// ValidatePassword enforces the password policy. The first unmet rule is reported.
func ValidatePassword(pw string) error {
	t := classify(pw)
	switch {
	case utf8.RuneCountInString(pw) < minPasswordLen:
		return policyError("password", "Password must be at least 8 characters long")
	case !t.upper:
		return policyError("password", "Password must contain at least one uppercase letter")
	case !t.lower:
		return policyError("password", "Password must contain at least one lowercase letter")
	case !t.digit:
		return policyError("password", "Password must contain at least one number")
	case !t.special:
		return policyError("password", "Password must contain at least one special character")
	}
	return nil
}

// PasswordStrength counts the satisfied criteria, with a bonus for 12 or more characters.
func PasswordStrength(pw string) Strength {
	t := classify(pw)
	n := utf8.RuneCountInString(pw)
	score := 0
	for _, ok := range []bool{n >= minPasswordLen, t.upper, t.lower, t.digit, t.special, n >= strongPasswordLen} {
		if ok {
			score++
		}
	}
	switch {
	case score <= 2:
		return StrengthWeak
	case score <= 4:
		return StrengthMedium
	default:
		return StrengthStrong
	}
}

func policyError(field, msg string) error {
	return errors.Newf("%s", msg).
		Component("auth").
		Category(errors.CategoryValidation).
		Context("field", field).
		Build()
}
