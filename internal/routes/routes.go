package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/petalbox/storefront-auth/internal/auth"
	"github.com/petalbox/storefront-auth/internal/config"
	"github.com/petalbox/storefront-auth/internal/identity"
	"github.com/petalbox/storefront-auth/internal/middleware"
	"github.com/petalbox/storefront-auth/internal/phone"
	"github.com/petalbox/storefront-auth/internal/session"
	"github.com/petalbox/storefront-auth/internal/sms"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Mongo  *mongo.Client
	Logger *slog.Logger
	// Now overrides the clock of every time-dependent component. Nil means time.Now.
	Now func() time.Time
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))
	app.Use(cors.New(cors.Config{
		AllowOrigins: d.Cfg.AllowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, Idempotency-Key, X-Request-ID",
		AllowMethods: "GET,POST,PUT,OPTIONS",
	}))

	// Health
	RegisterHealthRoutes(app, d)

	// Services and handlers
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	b, err := buildBackends(ctx, d)
	if err != nil {
		return err
	}

	normalizer := phone.NewNormalizer(d.Cfg.DefaultCountryCode)
	admins, err := identity.NewAdminPolicy(d.Cfg.AdminPhones, normalizer)
	if err != nil {
		return fmt.Errorf("admin phones: %w", err)
	}

	smsGateway, err := sms.New(sms.Config{
		AccountSID:       d.Cfg.TwilioAccountSID,
		AuthToken:        d.Cfg.TwilioAuthToken,
		VerifyServiceSID: d.Cfg.TwilioVerifyServiceSID,
		BaseURL:          d.Cfg.SMSProviderBaseURL,
		Timeout:          d.Cfg.SMSProviderTimeout,
		DryRun:           d.Cfg.SMSDryRun,
		ExposeCodes:      d.Cfg.SMSDebugCodes,
		CodeTTL:          d.Cfg.OTPTTL(),
	}, b.otp, d.Logger)
	if err != nil {
		return fmt.Errorf("sms gateway: %w", err)
	}

	issuer, err := session.NewIssuer(d.Cfg.JWTSecret, d.Cfg.JWTIssuer, d.Cfg.JWTExpires, d.Now)
	if err != nil {
		return fmt.Errorf("session issuer: %w", err)
	}
	if d.Cfg.InsecureJWTSecret {
		d.Logger.Warn("JWT_SECRET not set, using an insecure development secret")
	}

	identitySvc := identity.NewService(b.users, d.Now)
	gateway, err := auth.NewGateway(auth.Deps{
		Normalizer: normalizer,
		Limiter:    b.limiter,
		SMS:        smsGateway,
		Users:      identitySvc,
		Admins:     admins,
		Sessions:   issuer,
		Mode:       authMode(d.Cfg),
		Logger:     d.Logger,
	})
	if err != nil {
		return err
	}
	if _, ok := gateway.Mode().(auth.ModeBypass); ok {
		d.Logger.Warn("auth bypass mode enabled, every request is signed in as the development user")
	}

	authHandler := auth.NewHandler(gateway)
	identityHandler := identity.NewHandler(identitySvc)

	app.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	ipLimiter := middleware.LoginRateLimit(d.Cfg.AuthIPRPS, d.Cfg.AuthIPBurst)
	var idempotency fiber.Handler
	if d.Cache != nil {
		idempotency = middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	}
	RegisterAuthRoutes(app, authHandler, ipLimiter, idempotency)

	// Protected routes
	requireSession := middleware.RequireSession(gateway)
	RegisterIdentityRoutes(app, identityHandler, requireSession, middleware.RequireAdmin())

	d.Logger.Info("routes ready",
		slog.String("user_store", d.Cfg.UserStore),
		slog.String("otp_store", d.Cfg.OTPStore),
		slog.String("rate_limit_store", d.Cfg.RateLimitStore),
		slog.String("sms_mode", string(smsGateway.Mode())),
		slog.Int("admin_phones", admins.Len()),
	)

	return nil
}

func authMode(cfg config.Config) auth.Mode {
	if cfg.AuthMode == config.AuthModeBypass {
		return auth.ModeBypass{AsAdmin: cfg.AuthBypassAdmin}
	}
	return auth.ModeStandard{}
}
