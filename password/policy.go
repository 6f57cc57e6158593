package password

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// ErrTooShort is returned for passwords below Policy.MinLength characters.
	ErrTooShort = errors.New("password too short")
	// ErrMissingLetter is returned when RequireLetterAndDigit is set and no letter is present.
	ErrMissingLetter = errors.New("password must contain a letter")
	// ErrMissingDigit is returned when RequireLetterAndDigit is set and no digit is present.
	ErrMissingDigit = errors.New("password must contain a digit")
	// ErrCommon is returned for passwords on the common password list.
	ErrCommon = errors.New("password is too common")
)

var commonPasswords = map[string]struct{}{
	"password":    {},
	"12345678":    {},
	"qwerty":      {},
	"abc123":      {},
	"password123": {},
}

// Policy is the complexity rule set applied to new passwords. Length is
// counted in characters, not bytes.
type Policy struct {
	MinLength             int
	RequireLetterAndDigit bool
	RejectCommon          bool
}

// Check returns nil or one of ErrTooShort, ErrMissingLetter, ErrMissingDigit
// and ErrCommon. Checks run in that order.
func (p Policy) Check(pw string) error {
	if n := utf8.RuneCountInString(pw); n < p.MinLength || n == 0 {
		return fmt.Errorf("%w: need at least %d characters", ErrTooShort, max(p.MinLength, 1))
	}

	if p.RequireLetterAndDigit {
		var letter, digit bool
		for _, r := range pw {
			switch {
			case unicode.IsLetter(r):
				letter = true
			case unicode.IsDigit(r):
				digit = true
			}
		}
		if !letter {
			return ErrMissingLetter
		}
		if !digit {
			return ErrMissingDigit
		}
	}

	if p.RejectCommon {
		if _, ok := commonPasswords[strings.ToLower(pw)]; ok {
			return ErrCommon
		}
	}
	return nil
}
