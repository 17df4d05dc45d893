package sms

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/petalbox/storefront-auth/internal/otp"
)

// Mode says which variant a Gateway runs as. It is fixed at construction.
type Mode string

const (
	ModeProvider Mode = "provider"
	ModeLocal    Mode = "local"
)

// ErrProviderUnavailable is returned when the SMS provider cannot be reached or
// refuses to serve the request.
var ErrProviderUnavailable = errors.New("sms provider unavailable")

// Outcome describes a successful Send. DebugCode is only filled by a Local
// gateway built with ExposeCodes.
type Outcome struct {
	Mode      Mode
	Message   string
	DebugCode string
}

// Gateway dispatches and checks one-time codes.
type Gateway interface {
	Send(ctx context.Context, phone string) (Outcome, error)
	Check(ctx context.Context, phone, code string) (bool, error)
	Mode() Mode
}

// Config selects and parameterizes the gateway variant.
type Config struct {
	AccountSID       string
	AuthToken        string
	VerifyServiceSID string
	BaseURL          string
	Timeout          time.Duration

	DryRun      bool
	ExposeCodes bool
	CodeTTL     time.Duration
}

// ProviderConfigured reports whether all provider credentials are present.
func (c Config) ProviderConfigured() bool {
	return strings.TrimSpace(c.AccountSID) != "" &&
		strings.TrimSpace(c.AuthToken) != "" &&
		strings.TrimSpace(c.VerifyServiceSID) != ""
}

// New picks the variant once: Provider when credentials are complete and dry
// run is off, Local otherwise.
func New(cfg Config, store otp.Store, logger *slog.Logger) (Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ProviderConfigured() && !cfg.DryRun {
		p, err := NewProvider(cfg)
		if err != nil {
			return nil, err
		}
		logger.Info("sms gateway ready", "mode", ModeProvider)
		return p, nil
	}
	if store == nil {
		return nil, errors.New("local sms gateway requires an otp store")
	}
	logger.Info("sms gateway ready", "mode", ModeLocal, "expose_codes", cfg.ExposeCodes)
	return NewLocal(store, cfg.CodeTTL, cfg.ExposeCodes, logger), nil
}
