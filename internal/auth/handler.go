package auth

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/petalbox/storefront-auth/internal/identity"
)

// LocalSession is the fiber.Ctx locals key holding the resolved Session.
const LocalSession = "session"

// Handler exposes the phone sign-in endpoints.
type Handler struct {
	gateway *Gateway
}

func NewHandler(gateway *Gateway) *Handler {
	return &Handler{gateway: gateway}
}

type sendCodeRequest struct {
	Phone string `json:"phone"`
}

type sendCodeResponse struct {
	OK        bool   `json:"ok"`
	Message   string `json:"message"`
	Phone     string `json:"phone"`
	State     State  `json:"state"`
	DebugCode string `json:"debugCode,omitempty"`
}

// SendCode handles POST /auth/send-code.
func (h *Handler) SendCode(c *fiber.Ctx) error {
	var req sendCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrInvalidPhone
	}
	res, err := h.gateway.RequestCode(c.UserContext(), req.Phone)
	if err != nil {
		var rl *RateLimitError
		if errors.As(err, &rl) {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(math.Ceil(rl.RetryAfter.Seconds()))))
		}
		return err
	}
	return c.Status(http.StatusOK).JSON(sendCodeResponse{
		OK:        true,
		Message:   res.Message,
		Phone:     res.Phone,
		State:     res.State,
		DebugCode: res.DebugCode,
	})
}

type verifyCodeRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

// VerifyCode handles POST /auth/verify-code.
func (h *Handler) VerifyCode(c *fiber.Ctx) error {
	var req verifyCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrInvalidInput
	}
	res, err := h.gateway.VerifyCode(c.UserContext(), req.Phone, req.Code)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"ok":        true,
		"state":     res.State,
		"token":     res.Token.Value,
		"expiresAt": res.Token.ExpiresAt,
		"user":      identity.View(res.User),
	})
}

// Session handles GET /auth/session and its /auth/me alias.
func (h *Handler) Session(c *fiber.Ctx) error {
	sess, ok := c.Locals(LocalSession).(Session)
	if !ok {
		var err error
		sess, err = h.gateway.CurrentSession(c.UserContext(), BearerToken(c))
		if err != nil {
			return err
		}
	}
	body := fiber.Map{
		"ok":    true,
		"state": sess.State,
		"user":  identity.View(sess.User),
	}
	if !sess.ExpiresAt.IsZero() {
		body["expiresAt"] = sess.ExpiresAt
	}
	if sess.Bypass {
		body["bypass"] = true
	}
	return c.Status(http.StatusOK).JSON(body)
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(c *fiber.Ctx) string {
	authz := c.Get(fiber.HeaderAuthorization)
	if len(authz) < len("bearer ") || !strings.EqualFold(authz[:len("bearer ")], "bearer ") {
		return ""
	}
	return strings.TrimSpace(authz[len("bearer "):])
}

// WriteError renders err as {ok:false, error, message} with its mapped status.
func WriteError(c *fiber.Ctx, err error) error {
	return c.Status(StatusOf(err)).JSON(fiber.Map{
		"ok":      false,
		"error":   CodeOf(err),
		"message": MessageOf(err),
	})
}
