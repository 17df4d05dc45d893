package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/petalbox/storefront-auth/internal/auth"
	"github.com/petalbox/storefront-auth/internal/identity"
)

// RequireSession resolves the bearer token through the gateway and stores the
// session in locals. In bypass mode every caller gets the development identity.
func RequireSession(gateway *auth.Gateway) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := gateway.CurrentSession(c.UserContext(), auth.BearerToken(c))
		if err != nil {
			return err
		}
		c.Locals(auth.LocalSession, sess)
		c.Locals(identity.LocalUserID, sess.User.ID)
		return c.Next()
	}
}

// RequireAdmin must run after RequireSession. The admin flag is the live one
// read by the gateway, not the claim baked into the token.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, ok := c.Locals(auth.LocalSession).(auth.Session)
		if !ok {
			return auth.ErrUnauthorized
		}
		if !sess.User.IsAdmin {
			return auth.ErrForbidden
		}
		return c.Next()
	}
}
