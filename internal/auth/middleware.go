package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/uni-helpdesk/internal/domain"
	"github.com/spec-kit/uni-helpdesk/internal/repository"
	apperrors "github.com/spec-kit/uni-helpdesk/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// errDenied is the single answer for every failed session check.
var errDenied = apperrors.NewUnauthorized("unauthorized")

// Principal represents the authenticated staff caller.
type Principal struct {
	Staff *domain.StaffMember
	Role  domain.StaffRole
}

// SessionMiddleware validates admin session credentials and loads principals.
type SessionMiddleware struct {
	tokens     *TokenManager
	staff      repository.StaffRepository
	cookieName string
}

// NewSessionMiddleware constructs middleware.
func NewSessionMiddleware(tokens *TokenManager, staff repository.StaffRepository, cookieName string) *SessionMiddleware {
	return &SessionMiddleware{tokens: tokens, staff: staff, cookieName: cookieName}
}

// Handle enforces a valid session for protected routes. The credential is
// read from the session cookie, falling back to a Bearer header.
func (m *SessionMiddleware) Handle(c *fiber.Ctx) error {
	principal, err := m.Authenticate(c.UserContext(), m.credential(c))
	if err != nil {
		return err
	}
	c.Locals(principalKey, principal)
	return c.Next()
}

// Authenticate resolves a session credential to a principal. The staff
// account is reloaded so deactivated accounts lose access before their token
// expires.
func (m *SessionMiddleware) Authenticate(ctx context.Context, credential string) (*Principal, error) {
	if credential == "" {
		return nil, errDenied
	}
	claims, err := m.tokens.ParseToken(credential)
	if err != nil {
		return nil, errDenied
	}

	staff, err := m.staff.GetByID(ctx, claims.StaffID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errDenied
		}
		return nil, apperrors.MapError(err)
	}
	if !staff.Active || staff.Role != claims.Role {
		return nil, errDenied
	}
	return &Principal{Staff: staff, Role: claims.Role}, nil
}

func (m *SessionMiddleware) credential(c *fiber.Ctx) string {
	if token := c.Cookies(m.cookieName); token != "" {
		return token
	}
	parts := strings.SplitN(c.Get(fiber.HeaderAuthorization), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
