package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"subbox_backend/pkg/utils/jwt"
)

const claimsKey = "user"

// TokenValidator is satisfied by *jwt.Manager.
type TokenValidator interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

// AuthMiddleware requires a valid Bearer token and stores its claims in
// the request locals.
func AuthMiddleware(tokens TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing bearer token",
			})
		}

		claims, err := tokens.ValidateToken(strings.TrimSpace(raw))
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals(claimsKey, claims)
		return c.Next()
	}
}

// Claims returns the authenticated caller, or nil outside AuthMiddleware.
func Claims(c *fiber.Ctx) *jwt.Claims {
	claims, _ := c.Locals(claimsKey).(*jwt.Claims)
	return claims
}
