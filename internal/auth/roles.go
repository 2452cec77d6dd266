package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/uni-helpdesk/internal/domain"
)

// RequireStaffRole ensures the session principal has one of the allowed
// roles. It must run after SessionMiddleware.Handle.
func RequireStaffRole(allowed ...domain.StaffRole) fiber.Handler {
	allowedSet := make(map[domain.StaffRole]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.Staff == nil {
			return errDenied
		}
		if _, exists := allowedSet[principal.Role]; !exists {
			return errDenied
		}
		return c.Next()
	}
}

// RequireAdmin is RequireStaffRole for the ADMIN role.
func RequireAdmin() fiber.Handler {
	return RequireStaffRole(domain.StaffRoleAdmin)
}
