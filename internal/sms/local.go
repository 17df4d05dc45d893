package sms

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"time"

	"github.com/petalbox/storefront-auth/internal/logging"
	"github.com/petalbox/storefront-auth/internal/otp"
)

const codeDigits = 6

var codeSpace = big.NewInt(1_000_000)

// Local issues codes itself and keeps them in an otp.Store. Nothing is sent
// over the air; the dispatch is only logged.
type Local struct {
	store       otp.Store
	ttl         time.Duration
	exposeCodes bool
	logger      *slog.Logger
	random      io.Reader
}

// NewLocal builds a Local gateway. A non-positive ttl uses otp.DefaultTTL.
func NewLocal(store otp.Store, ttl time.Duration, exposeCodes bool, logger *slog.Logger) *Local {
	if ttl <= 0 {
		ttl = otp.DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{store: store, ttl: ttl, exposeCodes: exposeCodes, logger: logger, random: rand.Reader}
}

func (l *Local) Mode() Mode { return ModeLocal }

// Send replaces any outstanding code for phone with a fresh one.
func (l *Local) Send(ctx context.Context, phone string) (Outcome, error) {
	code, err := generateCode(l.random)
	if err != nil {
		return Outcome{}, fmt.Errorf("generate code: %w", err)
	}
	hash, err := otp.HashCode(code)
	if err != nil {
		return Outcome{}, fmt.Errorf("hash code: %w", err)
	}
	rec, err := l.store.Put(ctx, phone, hash, l.ttl)
	if err != nil {
		return Outcome{}, fmt.Errorf("store code: %w", err)
	}

	out := Outcome{Mode: ModeLocal, Message: "OTP created (dev)"}
	attrs := []any{"phone", logging.MaskPhone(phone), "expires_at", rec.ExpiresAt}
	if l.exposeCodes {
		out.DebugCode = code
		attrs = append(attrs, "code", code)
	}
	l.logger.Info("otp issued locally", attrs...)
	return out, nil
}

// Check consumes the latest code for phone when it matches.
func (l *Local) Check(ctx context.Context, phone, code string) (bool, error) {
	_, err := l.store.ConsumeLatest(ctx, phone, func(r otp.Record) bool {
		return otp.CodeMatches(r.Code, code)
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, otp.ErrNotFound):
		l.logger.Debug("otp check rejected", "phone", logging.MaskPhone(phone))
		return false, nil
	default:
		return false, fmt.Errorf("consume code: %w", err)
	}
}

func generateCode(r io.Reader) (string, error) {
	n, err := rand.Int(r, codeSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}
