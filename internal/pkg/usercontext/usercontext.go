package usercontext

import "github.com/gofiber/fiber/v2"

// LocalsKey is the request Locals slot the API key middleware writes the
// resolved account into.
const LocalsKey = "USER_CONTEXT"

// UserContext carries the authenticated account and its effective plan tier
// for one request. The API key middleware writes it; controllers read it.
// Requests that never passed the middleware see the zero value.
type UserContext struct {
	UserID        uint   `json:"user_id"`
	Name          string `json:"name"`
	Authenticated bool   `json:"authenticated"`
	IsAdmin       bool   `json:"is_admin"`
	Tier          string `json:"tier"`
}

// GetUserContext retrieves the user context from the fiber context.
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx := c.Locals(LocalsKey); ctx != nil {
		return ctx.(UserContext)
	}
	return UserContext{}
}

// IsAuthenticated reports whether the request carries a valid API key.
func IsAuthenticated(c *fiber.Ctx) bool {
	return GetUserContext(c).Authenticated
}

// IsAdmin reports whether the authenticated account has the admin role.
func IsAdmin(c *fiber.Ctx) bool {
	return GetUserContext(c).IsAdmin
}

// GetUserID returns the authenticated account's ID, or 0.
func GetUserID(c *fiber.Ctx) uint {
	return GetUserContext(c).UserID
}
