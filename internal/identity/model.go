package identity

import (
	"errors"
	"strings"
	"time"
)

// DefaultName is given to users created on their first verification.
const DefaultName = "User"

// LocalUserID is the fiber.Ctx locals key holding the authenticated user id.
const LocalUserID = "user_id"

var (
	ErrNotFound       = errors.New("user not found")
	ErrExists         = errors.New("user exists")
	ErrInvalidProfile = errors.New("invalid profile")
)

// User is a storefront customer identified by a normalized phone number.
type User struct {
	ID              string
	Phone           string
	Name            string
	Email           string
	Location        string
	IsAdmin         bool
	ProfileComplete bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Refresh recomputes derived fields. Every mutation path calls it before
// persisting.
func (u *User) Refresh() {
	u.ProfileComplete = strings.TrimSpace(u.Name) != "" && strings.TrimSpace(u.Location) != ""
}

// ProfileInput carries a partial profile update. Nil fields are left alone.
type ProfileInput struct {
	Name     *string
	Email    *string
	Location *string
}

// ListFilter narrows and pages a user listing.
type ListFilter struct {
	Query      string
	AdminsOnly bool
	Page       int
	Limit      int
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func (f ListFilter) normalized() ListFilter {
	f.Query = strings.TrimSpace(f.Query)
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	return f
}

func (f ListFilter) offset() int {
	return (f.Page - 1) * f.Limit
}

// Page is one page of a user listing.
type Page struct {
	Items []User
	Total int
	Page  int
	Limit int
}

// Pages is the number of pages needed for Total at the page size.
func (p Page) Pages() int {
	if p.Limit <= 0 {
		return 0
	}
	return (p.Total + p.Limit - 1) / p.Limit
}
