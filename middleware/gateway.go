package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// GatewayAuth accepts only requests carrying the shared service token, as
// "Authorization: Bearer <token>", a raw Authorization value, or
// X-Service-Token. An empty token disables the check.
func GatewayAuth(expectedToken string, logger *zap.Logger) fiber.Handler {
	logger = logger.Named("gateway-auth")
	if expectedToken == "" {
		logger.Warn("gateway authentication disabled")
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	want := []byte(expectedToken)

	return func(c *fiber.Ctx) error {
		token := c.Get("X-Service-Token")
		if token == "" {
			authHeader := c.Get(fiber.HeaderAuthorization)
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}

		if token == "" {
			logger.Debug("missing gateway token", zap.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "gateway authentication token missing",
			})
		}
		if subtle.ConstantTimeCompare([]byte(token), want) != 1 {
			logger.Warn("invalid gateway token", zap.String("path", c.Path()), zap.String("ip", c.IP()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid gateway authentication token",
			})
		}
		return c.Next()
	}
}
