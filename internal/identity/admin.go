package identity

import (
	"fmt"
	"strings"

	"github.com/petalbox/storefront-auth/internal/phone"
)

// AdminPolicy decides which phones are promoted to admin on sign-in.
type AdminPolicy struct {
	phones map[string]struct{}
}

// NewAdminPolicy normalizes every configured phone. An entry that does not
// normalize is a configuration error.
func NewAdminPolicy(raw []string, normalizer phone.Normalizer) (*AdminPolicy, error) {
	p := &AdminPolicy{phones: make(map[string]struct{}, len(raw))}
	for _, entry := range raw {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		normalized, err := normalizer.Normalize(entry)
		if err != nil {
			return nil, fmt.Errorf("admin phone %q: %w", entry, err)
		}
		p.phones[normalized] = struct{}{}
	}
	return p, nil
}

// IsAdminPhone expects an already normalized phone.
func (p *AdminPolicy) IsAdminPhone(normalized string) bool {
	if p == nil {
		return false
	}
	_, ok := p.phones[normalized]
	return ok
}

// Len is the number of configured admin phones.
func (p *AdminPolicy) Len() int {
	if p == nil {
		return 0
	}
	return len(p.phones)
}
