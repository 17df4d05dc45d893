package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("expected default address :8080, got %s", cfg.Address())
	}
	if cfg.OTPTTL() != 10*time.Minute {
		t.Fatalf("expected 10m otp ttl, got %s", cfg.OTPTTL())
	}
	if cfg.OTPMaxPerHour != 5 {
		t.Fatalf("expected 5 codes per hour, got %d", cfg.OTPMaxPerHour)
	}
	if cfg.JWTExpires != 7*24*time.Hour {
		t.Fatalf("expected 7 day session, got %s", cfg.JWTExpires)
	}
	if !cfg.InsecureJWTSecret || cfg.JWTSecret == "" {
		t.Fatalf("expected development secret fallback")
	}
	if cfg.UserStore != StoreMemory || cfg.OTPStore != StoreMemory || cfg.RateLimitStore != StoreMemory {
		t.Fatalf("expected memory stores by default, got %s/%s/%s", cfg.UserStore, cfg.OTPStore, cfg.RateLimitStore)
	}
	if cfg.AuthMode != AuthModeStandard {
		t.Fatalf("expected standard auth mode, got %s", cfg.AuthMode)
	}
}

func TestLoadAdminPhones(t *testing.T) {
	t.Setenv("ADMIN_PHONES", "+971501111111, 0502222222,")
	t.Setenv("ADMIN_PHONE", "+971503333333")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []string{"+971501111111", "0502222222", "+971503333333"}
	if len(cfg.AdminPhones) != len(want) {
		t.Fatalf("expected %v, got %v", want, cfg.AdminPhones)
	}
	for i := range want {
		if cfg.AdminPhones[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, cfg.AdminPhones)
		}
	}
}

func TestLoadProductionGuards(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("SMS_DEBUG_CODES", "true")
	t.Setenv("AUTH_MODE", "bypass")

	_, err := Load()
	if err == nil {
		t.Fatalf("expected production guard errors")
	}
	for _, key := range []string{"JWT_SECRET", "SMS_DEBUG_CODES", "AUTH_MODE"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("expected error to mention %s, got %v", key, err)
		}
	}
}

func TestLoadProductionWithSecret(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("JWT_SECRET", "a-long-production-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.IsProduction() || cfg.InsecureJWTSecret {
		t.Fatalf("expected production config with explicit secret")
	}
}

func TestLoadStoreValidation(t *testing.T) {
	t.Run("unknown backend", func(t *testing.T) {
		t.Setenv("OTP_STORE", "postgres")
		if _, err := Load(); err == nil || !strings.Contains(err.Error(), "OTP_STORE") {
			t.Fatalf("expected OTP_STORE error, got %v", err)
		}
	})

	t.Run("missing urls", func(t *testing.T) {
		t.Setenv("USER_STORE", "postgres")
		t.Setenv("RATE_LIMIT_STORE", "redis")
		t.Setenv("OTP_STORE", "mongo")
		t.Setenv("DATABASE_URL", "")
		t.Setenv("REDIS_URL", "")
		t.Setenv("MONGO_URI", "")

		_, err := Load()
		if err == nil {
			t.Fatalf("expected missing url errors")
		}
		for _, key := range []string{"DATABASE_URL", "REDIS_URL", "MONGO_URI"} {
			if !strings.Contains(err.Error(), key) {
				t.Fatalf("expected error to mention %s, got %v", key, err)
			}
		}
	})

	t.Run("configured urls", func(t *testing.T) {
		t.Setenv("USER_STORE", "Postgres")
		t.Setenv("RATE_LIMIT_STORE", "redis")
		t.Setenv("DATABASE_URL", "postgres://localhost/storefront")
		t.Setenv("REDIS_URL", "redis://localhost:6379/0")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if !cfg.UsesStore(StorePostgres) || !cfg.UsesStore(StoreRedis) || cfg.UsesStore(StoreMongo) {
			t.Fatalf("unexpected store selection %+v", cfg)
		}
	})
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("OTP_TTL_MINUTES", "0")
	t.Setenv("AUTH_MODE", "magic")

	_, err := Load()
	if err == nil {
		t.Fatalf("expected validation errors")
	}
	if !strings.Contains(err.Error(), "OTP_TTL_MINUTES") || !strings.Contains(err.Error(), "AUTH_MODE") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestLoadParseError(t *testing.T) {
	t.Setenv("JWT_EXPIRES", "a week")
	if _, err := Load(); err == nil {
		t.Fatalf("expected parse error for bad duration")
	}
}

func TestAddress(t *testing.T) {
	if got := (Config{Port: ":9000"}).Address(); got != ":9000" {
		t.Fatalf("expected :9000, got %s", got)
	}
	if got := (Config{Port: "3000"}).Address(); got != ":3000" {
		t.Fatalf("expected :3000, got %s", got)
	}
}

func TestLoadTrustedProxies(t *testing.T) {
	t.Setenv("PROXY_HEADER", "X-Forwarded-For")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.168.1.1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ProxyHeader != "X-Forwarded-For" || len(cfg.TrustedProxies) != 2 || cfg.TrustedProxies[1] != "192.168.1.1" {
		t.Fatalf("unexpected proxy settings %q %v", cfg.ProxyHeader, cfg.TrustedProxies)
	}

	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "a-long-production-secret")
	t.Setenv("TRUSTED_PROXIES", "")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "TRUSTED_PROXIES") {
		t.Fatalf("expected production to require trusted proxies, got %v", err)
	}
}
