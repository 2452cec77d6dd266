package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/uni-helpdesk/internal/api/dto"
	"github.com/spec-kit/uni-helpdesk/internal/domain"
	"github.com/spec-kit/uni-helpdesk/internal/service"
)

// SessionCookie describes the admin session cookie.
type SessionCookie struct {
	Name   string
	Secure bool
}

// StaffHandler exposes staff session endpoints.
type StaffHandler struct {
	authService *service.AuthService
	cookie      SessionCookie
}

// NewStaffHandler constructs handler.
func NewStaffHandler(authService *service.AuthService, cookie SessionCookie) *StaffHandler {
	return &StaffHandler{authService: authService, cookie: cookie}
}

// Login handles POST /api/auth/login. The session token is set as an
// HttpOnly cookie and also returned for non-browser clients.
func (h *StaffHandler) Login(c *fiber.Ctx) error {
	var req dto.StaffLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload()
	}

	session, err := h.authService.LoginStaff(c.UserContext(), service.LoginInput{
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
	})
	if err != nil {
		return err
	}

	c.Cookie(&fiber.Cookie{
		Name:     h.cookie.Name,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HTTPOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	if isFormPost(c) {
		return c.Redirect("/admin", fiber.StatusSeeOther)
	}
	return c.JSON(dto.LoginResponse{
		Staff: staffResponse(session.Staff),
		Auth:  dto.AuthResponse{Token: session.Token, ExpiresAt: session.ExpiresAt},
	})
}

// Logout handles POST /api/auth/logout. Tokens are stateless; the cookie is
// cleared and the token simply expires.
func (h *StaffHandler) Logout(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	if isFormPost(c) {
		return c.Redirect("/admin/login", fiber.StatusSeeOther)
	}
	return c.JSON(dto.AckResponse{OK: true})
}

// Me handles GET /api/admin/me.
func (h *StaffHandler) Me(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"staff": staffResponse(staff)})
}

func staffResponse(staff *domain.StaffMember) dto.StaffResponse {
	return dto.StaffResponse{
		ID:    staff.ID,
		Name:  staff.Name,
		Email: staff.Email,
		Role:  string(staff.Role),
	}
}
