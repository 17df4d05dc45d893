package phone

import (
	"errors"
	"regexp"
	"strings"
)

// DefaultCountryCode is used for numbers written with a national trunk prefix.
const DefaultCountryCode = "971"

// ErrInvalid is returned when a number cannot be brought into E.164 shape.
var ErrInvalid = errors.New("phone must be in E.164 format, e.g. +9715xxxxxxxx")

var e164 = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)

// Normalizer rewrites user-entered phone numbers into canonical E.164 form.
type Normalizer struct {
	CountryCode string
}

// NewNormalizer builds a Normalizer for the given default country calling code.
// An empty code falls back to DefaultCountryCode.
func NewNormalizer(countryCode string) Normalizer {
	countryCode = strings.TrimPrefix(strings.TrimSpace(countryCode), "+")
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	return Normalizer{CountryCode: countryCode}
}

// Normalize returns the canonical E.164 representation of raw.
func (n Normalizer) Normalize(raw string) (string, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		if r == '+' || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	s := b.String()

	switch {
	case s == "":
		return "", ErrInvalid
	case strings.HasPrefix(s, "+"):
	case strings.HasPrefix(s, "00"):
		s = "+" + s[2:]
	case strings.HasPrefix(s, "0"):
		cc := n.CountryCode
		if cc == "" {
			cc = DefaultCountryCode
		}
		s = "+" + cc + s[1:]
	default:
		s = "+" + s
	}

	if !e164.MatchString(s) {
		return "", ErrInvalid
	}
	return s, nil
}

// Normalize uses DefaultCountryCode for trunk-prefixed numbers.
func Normalize(raw string) (string, error) {
	return NewNormalizer(DefaultCountryCode).Normalize(raw)
}

// Valid reports whether s is already a canonical E.164 string.
func Valid(s string) bool {
	return e164.MatchString(s)
}
