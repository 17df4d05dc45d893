package phone

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"already canonical", "+971501234567", "+971501234567"},
		{"national trunk prefix", "0501234567", "+971501234567"},
		{"international dialing prefix", "00971501234567", "+971501234567"},
		{"formatting noise", " +971 (50) 123-45.67 ", "+971501234567"},
		{"bare digits with country code", "971501234567", "+971501234567"},
		{"cameroon", "+237650000000", "+237650000000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Normalize(tc.raw)
			if err != nil {
				t.Fatalf("normalize %q: %v", tc.raw, err)
			}
			if got != tc.want {
				t.Fatalf("normalize %q: expected %s got %s", tc.raw, tc.want, got)
			}
		})
	}
}

func TestNormalizeRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"", "abc", "+12", "+0501234567", "+1234567890123456", "++971501234567"} {
		if _, err := Normalize(raw); !errors.Is(err, ErrInvalid) {
			t.Fatalf("expected ErrInvalid for %q, got %v", raw, err)
		}
	}
}

func TestLocalAndInternationalFormsAgree(t *testing.T) {
	local, err := Normalize("0501234567")
	if err != nil {
		t.Fatalf("normalize local: %v", err)
	}
	intl, err := Normalize("+971501234567")
	if err != nil {
		t.Fatalf("normalize international: %v", err)
	}
	if local != intl {
		t.Fatalf("expected equal canonical forms, got %s and %s", local, intl)
	}
}

func TestNormalizerCountryCode(t *testing.T) {
	n := NewNormalizer("+237")
	got, err := n.Normalize("0650000000")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got != "+237650000000" {
		t.Fatalf("expected +237650000000 got %s", got)
	}
	if !Valid(got) {
		t.Fatalf("expected %s to be valid", got)
	}
}
