package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/petalbox/storefront-auth/internal/identity"
)

// Error codes rendered in the "error" field of failed responses.
const (
	CodeInvalidPhone         = "InvalidPhone"
	CodeInvalidInput         = "InvalidInput"
	CodeRateLimited          = "RateLimited"
	CodeInvalidOrExpiredCode = "InvalidOrExpiredCode"
	CodeProviderUnavailable  = "ProviderUnavailable"
	CodeUnauthorized         = "Unauthorized"
	CodeForbidden            = "Forbidden"
	CodeNotFound             = "NotFound"
	CodeConflict             = "Conflict"
	CodeInternal             = "Internal"
)

var (
	ErrInvalidPhone         = errors.New("invalid phone")
	ErrInvalidInput         = errors.New("invalid input")
	ErrRateLimited          = errors.New("rate limited")
	ErrInvalidOrExpiredCode = errors.New("invalid or expired code")
	ErrProviderUnavailable  = errors.New("sms provider unavailable")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrForbidden            = errors.New("forbidden")
)

// RateLimitError is ErrRateLimited plus how long the caller should wait.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%v: retry after %s", ErrRateLimited, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

type classified struct {
	target  error
	code    string
	status  int
	message string
}

var taxonomy = []classified{
	{ErrInvalidPhone, CodeInvalidPhone, http.StatusBadRequest, "Phone must be in E.164 format, e.g. +9715xxxxxxx"},
	{ErrInvalidInput, CodeInvalidInput, http.StatusBadRequest, "Phone and 6-digit code are required"},
	{ErrRateLimited, CodeRateLimited, http.StatusTooManyRequests, "Too many OTP requests. Try later."},
	{ErrInvalidOrExpiredCode, CodeInvalidOrExpiredCode, http.StatusBadRequest, "Invalid or expired OTP"},
	{ErrProviderUnavailable, CodeProviderUnavailable, http.StatusInternalServerError, "Could not send the code. Try again."},
	{ErrUnauthorized, CodeUnauthorized, http.StatusUnauthorized, "Unauthorized"},
	{ErrForbidden, CodeForbidden, http.StatusForbidden, "Admin access required"},
	{identity.ErrInvalidProfile, CodeInvalidInput, http.StatusBadRequest, ""},
	{identity.ErrNotFound, CodeNotFound, http.StatusNotFound, "User not found"},
}

// CodeOf maps err to its taxonomy code.
func CodeOf(err error) string {
	code, _ := classify(err)
	return code
}

// StatusOf maps err to the HTTP status it is rendered with.
func StatusOf(err error) int {
	_, status := classify(err)
	return status
}

// MessageOf is the client-facing message for err. Unclassified errors are not
// echoed back.
func MessageOf(err error) string {
	for _, c := range taxonomy {
		if errors.Is(err, c.target) {
			if c.message == "" {
				return err.Error()
			}
			return c.message
		}
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Message
	}
	return "Internal server error"
}

func classify(err error) (string, int) {
	for _, c := range taxonomy {
		if errors.Is(err, c.target) {
			return c.code, c.status
		}
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return codeForStatus(fe.Code), fe.Code
	}
	return CodeInternal, http.StatusInternalServerError
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return CodeInvalidInput
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return CodeNotFound
	case http.StatusConflict:
		return CodeConflict
	case http.StatusTooManyRequests:
		return CodeRateLimited
	default:
		return CodeInternal
	}
}
