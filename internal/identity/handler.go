package identity

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes profile and user listing endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// UserResponse is the public JSON shape of a user.
type UserResponse struct {
	ID              string    `json:"id"`
	Phone           string    `json:"phone"`
	Name            string    `json:"name"`
	Email           string    `json:"email,omitempty"`
	Location        string    `json:"location,omitempty"`
	IsAdmin         bool      `json:"isAdmin"`
	ProfileComplete bool      `json:"profileComplete"`
	CreatedAt       time.Time `json:"createdAt"`
}

// View renders u for API responses.
func View(u User) UserResponse {
	return UserResponse{
		ID:              u.ID,
		Phone:           u.Phone,
		Name:            u.Name,
		Email:           u.Email,
		Location:        u.Location,
		IsAdmin:         u.IsAdmin,
		ProfileComplete: u.ProfileComplete,
		CreatedAt:       u.CreatedAt,
	}
}

type profileRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Location *string `json:"location"`
}

// UpdateMe handles PUT /users/me for the authenticated user.
func (h *Handler) UpdateMe(c *fiber.Ctx) error {
	uid, _ := c.Locals(LocalUserID).(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "missing session")
	}
	var req profileRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	user, err := h.service.UpdateProfile(c.UserContext(), uid, ProfileInput{Name: req.Name, Email: req.Email, Location: req.Location})
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"ok": true, "user": View(user)})
}

// List handles GET /users for admins.
func (h *Handler) List(c *fiber.Ctx) error {
	filter := ListFilter{
		Query:      c.Query("q"),
		AdminsOnly: strings.EqualFold(c.Query("role"), "admin"),
		Page:       c.QueryInt("page", 1),
		Limit:      c.QueryInt("limit", defaultPageSize),
	}
	page, err := h.service.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]UserResponse, 0, len(page.Items))
	for _, u := range page.Items {
		items = append(items, View(u))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"ok":    true,
		"items": items,
		"pagination": fiber.Map{
			"page":  page.Page,
			"limit": page.Limit,
			"total": page.Total,
			"pages": page.Pages(),
		},
	})
}
