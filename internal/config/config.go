package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store backends selectable per concern.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMongo    = "mongo"
)

// Auth modes.
const (
	AuthModeStandard = "standard"
	AuthModeBypass   = "bypass"
)

const devJWTSecret = "dev-only-insecure-secret"

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string        `env:"APP_NAME" envDefault:"storefront-auth"`
	AppEnv         string        `env:"APP_ENV" envDefault:"development"`
	Port           string        `env:"PORT" envDefault:"8080"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	ShutdownPeriod time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"10m"`
	AllowedOrigins string        `env:"ALLOWED_ORIGINS" envDefault:"*"`
	SentryDSN      string        `env:"SENTRY_DSN"`

	// ProxyHeader names the header carrying the client IP, e.g.
	// X-Forwarded-For. When TrustedProxies is set, only their requests may use it.
	ProxyHeader    string   `env:"PROXY_HEADER"`
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	DatabaseURL   string `env:"DATABASE_URL"`
	RedisURL      string `env:"REDIS_URL"`
	MongoURI      string `env:"MONGO_URI"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"storefront"`

	DatabaseMaxConns    int32         `env:"DATABASE_MAX_CONNS" envDefault:"10"`
	DatabaseMinConns    int32         `env:"DATABASE_MIN_CONNS" envDefault:"0"`
	DatabaseMaxConnIdle time.Duration `env:"DATABASE_MAX_CONN_IDLE" envDefault:"30m"`
	RedisPoolSize       int           `env:"REDIS_POOL_SIZE" envDefault:"0"`
	RedisDialTimeout    time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	RedisReadTimeout    time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	RedisWriteTimeout   time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
	MongoMaxPoolSize    uint64        `env:"MONGO_MAX_POOL_SIZE" envDefault:"100"`
	MongoConnectTimeout time.Duration `env:"MONGO_CONNECT_TIMEOUT" envDefault:"10s"`
	BackendPingTimeout  time.Duration `env:"BACKEND_PING_TIMEOUT" envDefault:"5s"`

	UserStore      string `env:"USER_STORE" envDefault:"memory"`
	OTPStore       string `env:"OTP_STORE" envDefault:"memory"`
	RateLimitStore string `env:"RATE_LIMIT_STORE" envDefault:"memory"`

	AuthIPRPS   float64 `env:"AUTH_IP_RPS" envDefault:"1"`
	AuthIPBurst int     `env:"AUTH_IP_BURST" envDefault:"10"`

	DefaultCountryCode string `env:"DEFAULT_COUNTRY_CODE" envDefault:"971"`

	TwilioAccountSID       string        `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken        string        `env:"TWILIO_AUTH_TOKEN"`
	TwilioVerifyServiceSID string        `env:"TWILIO_VERIFY_SERVICE_SID"`
	SMSProviderBaseURL     string        `env:"SMS_PROVIDER_BASE_URL"`
	SMSProviderTimeout     time.Duration `env:"SMS_PROVIDER_TIMEOUT" envDefault:"8s"`
	SMSDryRun              bool          `env:"SMS_DRY_RUN" envDefault:"false"`
	SMSDebugCodes          bool          `env:"SMS_DEBUG_CODES" envDefault:"false"`

	OTPTTLMinutes int `env:"OTP_TTL_MINUTES" envDefault:"10"`
	OTPMaxPerHour int `env:"OTP_MAX_PER_HOUR" envDefault:"5"`

	JWTSecret  string        `env:"JWT_SECRET"`
	JWTIssuer  string        `env:"JWT_ISSUER" envDefault:"storefront-auth"`
	JWTExpires time.Duration `env:"JWT_EXPIRES" envDefault:"168h"`

	AdminPhones []string `env:"ADMIN_PHONES" envSeparator:","`
	// AdminPhone is the older single-number variable, folded into AdminPhones.
	AdminPhone string `env:"ADMIN_PHONE"`

	AuthMode        string `env:"AUTH_MODE" envDefault:"standard"`
	AuthBypassAdmin bool   `env:"AUTH_BYPASS_ADMIN" envDefault:"false"`

	// InsecureJWTSecret is set when a development default replaced a missing
	// JWT_SECRET.
	InsecureJWTSecret bool `env:"-"`
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.UserStore = strings.ToLower(strings.TrimSpace(c.UserStore))
	c.OTPStore = strings.ToLower(strings.TrimSpace(c.OTPStore))
	c.RateLimitStore = strings.ToLower(strings.TrimSpace(c.RateLimitStore))
	c.AuthMode = strings.ToLower(strings.TrimSpace(c.AuthMode))

	c.ProxyHeader = strings.TrimSpace(c.ProxyHeader)
	proxies := make([]string, 0, len(c.TrustedProxies))
	for _, p := range c.TrustedProxies {
		if p = strings.TrimSpace(p); p != "" {
			proxies = append(proxies, p)
		}
	}
	c.TrustedProxies = proxies

	phones := make([]string, 0, len(c.AdminPhones)+1)
	for _, p := range append(c.AdminPhones, c.AdminPhone) {
		if p = strings.TrimSpace(p); p != "" {
			phones = append(phones, p)
		}
	}
	c.AdminPhones = phones

	var errs []error
	if c.OTPTTLMinutes <= 0 {
		errs = append(errs, errors.New("OTP_TTL_MINUTES must be positive"))
	}
	if c.OTPMaxPerHour <= 0 {
		errs = append(errs, errors.New("OTP_MAX_PER_HOUR must be positive"))
	}
	if c.DatabaseMaxConns <= 0 {
		errs = append(errs, errors.New("DATABASE_MAX_CONNS must be positive"))
	}
	if c.DatabaseMinConns < 0 || c.DatabaseMinConns > c.DatabaseMaxConns {
		errs = append(errs, errors.New("DATABASE_MIN_CONNS must be between 0 and DATABASE_MAX_CONNS"))
	}
	if c.JWTExpires <= 0 {
		errs = append(errs, errors.New("JWT_EXPIRES must be positive"))
	}

	errs = append(errs, checkStore("USER_STORE", c.UserStore, StoreMemory, StorePostgres, StoreMongo))
	errs = append(errs, checkStore("OTP_STORE", c.OTPStore, StoreMemory, StoreRedis, StoreMongo))
	errs = append(errs, checkStore("RATE_LIMIT_STORE", c.RateLimitStore, StoreMemory, StoreRedis))

	if c.UsesStore(StorePostgres) && c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL must be set for the postgres store"))
	}
	if c.UsesStore(StoreRedis) && c.RedisURL == "" {
		errs = append(errs, errors.New("REDIS_URL must be set for the redis store"))
	}
	if c.UsesStore(StoreMongo) && c.MongoURI == "" {
		errs = append(errs, errors.New("MONGO_URI must be set for the mongo store"))
	}

	switch c.AuthMode {
	case AuthModeStandard, AuthModeBypass:
	default:
		errs = append(errs, fmt.Errorf("AUTH_MODE must be %q or %q, got %q", AuthModeStandard, AuthModeBypass, c.AuthMode))
	}

	if c.IsProduction() {
		if strings.TrimSpace(c.JWTSecret) == "" {
			errs = append(errs, errors.New("JWT_SECRET must be set in production"))
		}
		if c.SMSDebugCodes {
			errs = append(errs, errors.New("SMS_DEBUG_CODES is not allowed in production"))
		}
		if c.AuthMode == AuthModeBypass {
			errs = append(errs, errors.New("AUTH_MODE=bypass is not allowed in production"))
		}
		if c.ProxyHeader != "" && len(c.TrustedProxies) == 0 {
			errs = append(errs, errors.New("TRUSTED_PROXIES must be set when PROXY_HEADER is used in production"))
		}
	} else if strings.TrimSpace(c.JWTSecret) == "" {
		c.JWTSecret = devJWTSecret
		c.InsecureJWTSecret = true
	}

	return errors.Join(errs...)
}

func checkStore(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, "|"), value)
}

// UsesStore reports whether any concern is configured with backend.
func (c Config) UsesStore(backend string) bool {
	return c.UserStore == backend || c.OTPStore == backend || c.RateLimitStore == backend
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c Config) IsProduction() bool {
	switch strings.ToLower(strings.TrimSpace(c.AppEnv)) {
	case "prod", "production":
		return true
	default:
		return false
	}
}

// OTPTTL is OTP_TTL_MINUTES as a duration.
func (c Config) OTPTTL() time.Duration {
	return time.Duration(c.OTPTTLMinutes) * time.Minute
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}
