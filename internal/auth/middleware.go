package auth

import (
	"strings"

	"nexile-backend/internal/config"
	"nexile-backend/internal/database"
	"nexile-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

const (
	CtxUserKey     = "user"
	CtxUserIDKey   = "user_id"
	CtxUserRoleKey = "user_role"
)

// JWTMiddleware resolves the bearer token to a live user. The user is reloaded on
// every request so branch assignments take effect without a new login.
func JWTMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "Authorization header missing")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return fiber.NewError(fiber.StatusUnauthorized, "Authorization format must be 'Bearer <token>'")
		}

		claims, err := ParseToken(cfg.JWTSecret, strings.TrimSpace(parts[1]))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid or expired token")
		}

		var user models.User
		if err := database.DB.Preload("ManagedBranches").First(&user, claims.UserID).Error; err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "User no longer exists")
		}

		c.Locals(CtxUserKey, &user)
		c.Locals(CtxUserIDKey, user.ID)
		c.Locals(CtxUserRoleKey, user.Role)

		return c.Next()
	}
}

func RequireRole(allowedRoles ...models.UserRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, ok := c.Locals(CtxUserRoleKey).(models.UserRole)
		if !ok {
			return fiber.NewError(fiber.StatusForbidden, "Role information unavailable")
		}

		for _, r := range allowedRoles {
			if r == role {
				return c.Next()
			}
		}
		return fiber.NewError(fiber.StatusForbidden, "You are not allowed to perform this action")
	}
}

// CurrentUser returns the user resolved by JWTMiddleware.
func CurrentUser(c *fiber.Ctx) (*models.User, error) {
	u, ok := c.Locals(CtxUserKey).(*models.User)
	if !ok || u == nil {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "Not authenticated")
	}
	return u, nil
}
