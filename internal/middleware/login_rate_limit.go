package middleware

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"

	"github.com/petalbox/storefront-auth/internal/auth"
)

const (
	defaultAuthIPRPS   = 1
	defaultAuthIPBurst = 10
	ipLimiterTTL       = 30 * time.Minute
	ipSweepInterval    = 5 * time.Minute
)

type ipEntry struct {
	limiter *rate.Limiter
	lastUse time.Time
}

// ipLimiter keeps one token bucket per client IP. Idle buckets are swept on
// access instead of by a background goroutine.
type ipLimiter struct {
	mu        sync.Mutex
	entries   map[string]*ipEntry
	limit     rate.Limit
	burst     int
	now       func() time.Time
	lastSweep time.Time
}

func newIPLimiter(rps float64, burst int, now func() time.Time) *ipLimiter {
	if rps <= 0 {
		rps = defaultAuthIPRPS
	}
	if burst <= 0 {
		burst = defaultAuthIPBurst
	}
	if now == nil {
		now = time.Now
	}
	return &ipLimiter{
		entries:   make(map[string]*ipEntry),
		limit:     rate.Limit(rps),
		burst:     burst,
		now:       now,
		lastSweep: now(),
	}
}

// reserve reports whether ip may proceed and, if not, how long to wait.
func (l *ipLimiter) reserve(ip string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > ipSweepInterval {
		for key, e := range l.entries {
			if now.Sub(e.lastUse) > ipLimiterTTL {
				delete(l.entries, key)
			}
		}
		l.lastSweep = now
	}

	e, ok := l.entries[ip]
	if !ok {
		e = &ipEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[ip] = e
	}
	e.lastUse = now

	r := e.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (l *ipLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// LoginRateLimit throttles sign-in endpoints per client IP with a token bucket
// of rps requests per second and the given burst. It sits in front of the
// per-phone code limit and guards against one client cycling through phones.
func LoginRateLimit(rps float64, burst int) fiber.Handler {
	return loginRateLimit(newIPLimiter(rps, burst, nil))
}

func loginRateLimit(l *ipLimiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ok, wait := l.reserve(c.IP())
		if ok {
			return c.Next()
		}
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		return &auth.RateLimitError{RetryAfter: wait}
	}
}
