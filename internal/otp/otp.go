package otp

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultTTL is how long a freshly issued code stays valid.
	DefaultTTL = 10 * time.Minute
	// MaxAttempts is how many rejected checks a code survives. The record is
	// dropped on the last one and the phone has to request a new code.
	MaxAttempts = 5
)

// ErrNotFound covers a missing, expired or rejected code. Callers must not be
// able to tell those cases apart.
var ErrNotFound = errors.New("otp not found")

// Record is one outstanding one-time code for a phone number. Code is opaque to
// the store; callers hand it a hash, never the plain digits.
type Record struct {
	Phone     string
	Code      string
	Attempts  int
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the record can no longer be consumed at now.
func (r Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// Store persists outstanding codes per phone.
type Store interface {
	// Put drops every existing record for phone and stores a new one.
	Put(ctx context.Context, phone, code string, ttl time.Duration) (Record, error)
	// ConsumeLatest loads the newest unexpired record for phone and, when match
	// accepts it, deletes all records for that phone. A rejection counts against
	// the record, which is deleted after MaxAttempts rejections.
	ConsumeLatest(ctx context.Context, phone string, match func(Record) bool) (Record, error)
}

var hashCost = bcrypt.DefaultCost

// HashCode turns a plain code into the opaque value kept at rest.
func HashCode(code string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(code), hashCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CodeMatches compares a submitted plain code against a stored hash.
func CodeMatches(stored, code string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(code)) == nil
}

func clockOrDefault(now func() time.Time) func() time.Time {
	if now == nil {
		return time.Now
	}
	return now
}
