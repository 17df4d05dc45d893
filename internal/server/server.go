package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/petalbox/storefront-auth/internal/auth"
	"github.com/petalbox/storefront-auth/internal/config"
	"github.com/petalbox/storefront-auth/internal/middleware"
	"github.com/petalbox/storefront-auth/internal/reporting"
	"github.com/petalbox/storefront-auth/internal/routes"
)

// Server wraps the Fiber application and shared dependencies.
type Server struct {
	app *fiber.App
	cfg config.Config
}

// Backends groups the optional storage clients. Any of them may be nil when
// the configuration does not select it.
type Backends struct {
	DB    *pgxpool.Pool
	Cache *redis.Client
	Mongo *mongo.Client
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(cfg config.Config, backends Backends, reporter *reporting.Reporter, logger *slog.Logger) (*Server, error) {
	app := fiber.New(AppConfig(cfg, reporter))

	if err := routes.Setup(app, routes.Deps{
		Cfg:    cfg,
		DB:     backends.DB,
		Cache:  backends.Cache,
		Mongo:  backends.Mongo,
		Logger: logger,
	}); err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: cfg}, nil
}

// AppConfig builds the Fiber settings. With PROXY_HEADER set, c.IP() reads the
// client address from that header, but only for requests arriving from
// TRUSTED_PROXIES when that list is non-empty.
func AppConfig(cfg config.Config, reporter *reporting.Reporter) fiber.Config {
	fc := fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: ErrorHandler(reporter),
	}
	if cfg.ProxyHeader != "" {
		fc.ProxyHeader = cfg.ProxyHeader
		fc.EnableIPValidation = true
		if len(cfg.TrustedProxies) > 0 {
			fc.EnableTrustedProxyCheck = true
			fc.TrustedProxies = cfg.TrustedProxies
		}
	}
	return fc
}

// ErrorHandler renders every returned error through the auth taxonomy and
// forwards server-side failures to the reporter.
func ErrorHandler(reporter *reporting.Reporter) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		if auth.StatusOf(err) >= fiber.StatusInternalServerError {
			reporter.Capture(err, map[string]string{
				"method":     c.Method(),
				"route":      c.Path(),
				"request_id": middleware.RequestIDFrom(c),
				"error_code": auth.CodeOf(err),
			})
		}
		return auth.WriteError(c, err)
	}
}

// App exposes the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
