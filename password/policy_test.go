package password

import (
	"encoding/base64"
	"errors"
	"testing"
)

func padded(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func TestPolicyCheck(t *testing.T) {
	p := Policy{MinLength: 8, RequireLetterAndDigit: true, RejectCommon: true}

	cases := []struct {
		pw   string
		want error
	}{
		{"", ErrTooShort},
		{"ab1", ErrTooShort},
		{"12345678", ErrMissingLetter},
		{"abcdefgh", ErrMissingDigit},
		{"Password123", ErrCommon},
		{"ABC123xx", nil},
		{"pässwört9", nil},
		{"correct-horse-7", nil},
	}
	for _, c := range cases {
		err := p.Check(c.pw)
		if c.want == nil {
			if err != nil {
				t.Errorf("Check(%q) = %v, want nil", c.pw, err)
			}
			continue
		}
		if !errors.Is(err, c.want) {
			t.Errorf("Check(%q) = %v, want %v", c.pw, err, c.want)
		}
	}
}

func TestPolicyCountsCharactersNotBytes(t *testing.T) {
	p := Policy{MinLength: 4}
	// Four runes, twelve bytes.
	if err := p.Check("日本語1"); err != nil {
		t.Fatalf("four-character password rejected: %v", err)
	}
	if err := p.Check("日本1"); !errors.Is(err, ErrTooShort) {
		t.Fatalf("three-character password accepted: %v", err)
	}
}

func TestPolicyRelaxed(t *testing.T) {
	p := Policy{MinLength: 6}
	if err := p.Check("qwerty"); err != nil {
		t.Fatalf("relaxed policy should accept %q: %v", "qwerty", err)
	}
}
