package infra

import (
	"context"
	"fmt"
	"time"
)

// DefaultPingTimeout bounds the startup connectivity check of each backend.
const DefaultPingTimeout = 5 * time.Second

// verify pings a freshly built client and closes it when the ping fails, so
// callers never receive a half-working backend.
func verify(ctx context.Context, name string, timeout time.Duration, ping func(context.Context) error, closeFn func()) error {
	if timeout <= 0 {
		timeout = DefaultPingTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := ping(pingCtx); err != nil {
		closeFn()
		return fmt.Errorf("ping %s: %w", name, err)
	}
	return nil
}
