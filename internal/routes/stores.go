package routes

import (
	"context"
	"fmt"

	"github.com/petalbox/storefront-auth/internal/config"
	"github.com/petalbox/storefront-auth/internal/identity"
	"github.com/petalbox/storefront-auth/internal/otp"
	"github.com/petalbox/storefront-auth/internal/ratelimit"
)

type backends struct {
	users   identity.Repository
	otp     otp.Store
	limiter ratelimit.Limiter
}

// buildBackends picks the user, code and limiter stores named by the
// configuration and prepares their schema or indexes.
func buildBackends(ctx context.Context, d Deps) (backends, error) {
	var b backends
	cfg := d.Cfg

	switch cfg.UserStore {
	case config.StorePostgres:
		if d.DB == nil {
			return b, fmt.Errorf("USER_STORE=%s requires a postgres connection", cfg.UserStore)
		}
		repo := identity.NewPostgresRepository(d.DB)
		if err := repo.EnsureSchema(ctx); err != nil {
			return b, err
		}
		b.users = repo
	case config.StoreMongo:
		if d.Mongo == nil {
			return b, fmt.Errorf("USER_STORE=%s requires a mongo connection", cfg.UserStore)
		}
		repo := identity.NewMongoRepository(d.Mongo.Database(cfg.MongoDatabase))
		if err := repo.EnsureIndexes(ctx); err != nil {
			return b, err
		}
		b.users = repo
	default:
		b.users = identity.NewMemoryRepository()
	}

	switch cfg.OTPStore {
	case config.StoreRedis:
		if d.Cache == nil {
			return b, fmt.Errorf("OTP_STORE=%s requires a redis connection", cfg.OTPStore)
		}
		b.otp = otp.NewRedisStore(d.Cache, d.Now)
	case config.StoreMongo:
		if d.Mongo == nil {
			return b, fmt.Errorf("OTP_STORE=%s requires a mongo connection", cfg.OTPStore)
		}
		store := otp.NewMongoStore(d.Mongo.Database(cfg.MongoDatabase), d.Now)
		if err := store.EnsureIndexes(ctx); err != nil {
			return b, err
		}
		b.otp = store
	default:
		b.otp = otp.NewMemoryStore(d.Now)
	}

	switch cfg.RateLimitStore {
	case config.StoreRedis:
		if d.Cache == nil {
			return b, fmt.Errorf("RATE_LIMIT_STORE=%s requires a redis connection", cfg.RateLimitStore)
		}
		b.limiter = ratelimit.NewRedis(d.Cache, cfg.OTPMaxPerHour, ratelimit.DefaultWindow, d.Now)
	default:
		b.limiter = ratelimit.NewMemory(cfg.OTPMaxPerHour, ratelimit.DefaultWindow, d.Now)
	}

	return b, nil
}
