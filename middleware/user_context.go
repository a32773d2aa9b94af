package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"
)

const (
	localUserID    = "user_id"
	localUserRoles = "user_roles"
)

// UserContext copies the caller identity the gateway forwards in X-User-ID
// and X-User-Roles into request locals.
func UserContext() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var roles []string
		for _, r := range strings.Split(c.Get("X-User-Roles"), ",") {
			if r = strings.TrimSpace(r); r != "" {
				roles = append(roles, strings.ToLower(r))
			}
		}
		c.Locals(localUserID, strings.TrimSpace(c.Get("X-User-ID")))
		c.Locals(localUserRoles, roles)
		return c.Next()
	}
}

// UserID returns the forwarded caller id, or "" when none was sent.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(localUserID).(string)
	return id
}

func Roles(c *fiber.Ctx) []string {
	roles, _ := c.Locals(localUserRoles).([]string)
	return roles
}

// RequireRole rejects callers holding none of the given roles.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		held := Roles(c)
		if lo.ContainsBy(roles, func(r string) bool { return lo.Contains(held, r) }) {
			return c.Next()
		}
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "insufficient role",
		})
	}
}
