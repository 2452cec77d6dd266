package auth

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/uni-helpdesk/internal/domain"
	"github.com/spec-kit/uni-helpdesk/internal/repository"
	apperrors "github.com/spec-kit/uni-helpdesk/pkg/util/errorutil"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	token, expiresAt, err := tm.GenerateToken("staff-1", domain.StaffRoleAdmin)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "staff-1", claims.StaffID)
	assert.Equal(t, domain.StaffRoleAdmin, claims.Role)
}

func TestTokenManager_RejectsForeignAndExpiredTokens(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	other := NewTokenManager("other-secret", time.Hour)

	token, _, err := other.GenerateToken("staff-1", domain.StaffRoleAdmin)
	require.NoError(t, err)
	_, err = tm.ParseToken(token)
	assert.Error(t, err)

	issued := time.Now().Add(-2 * time.Hour)
	tm.now = func() time.Time { return issued }
	expired, _, err := tm.GenerateToken("staff-1", domain.StaffRoleAdmin)
	require.NoError(t, err)
	tm.now = time.Now
	_, err = tm.ParseToken(expired)
	assert.Error(t, err)

	_, err = tm.ParseToken("not-a-jwt")
	assert.Error(t, err)
}

func TestVerifyViewToken(t *testing.T) {
	stored := NewViewToken()
	assert.Len(t, stored, 36)
	assert.NotEqual(t, stored, NewViewToken())

	assert.True(t, VerifyViewToken(stored, stored))
	assert.False(t, VerifyViewToken("", stored))
	assert.False(t, VerifyViewToken(stored[:35], stored), "shorter prefix")
	assert.False(t, VerifyViewToken(stored+"0", stored), "longer")

	sameLength := []byte(stored)
	sameLength[0] ^= 0x01
	assert.False(t, VerifyViewToken(string(sameLength), stored))

	assert.False(t, VerifyViewToken("", ""), "an empty stored token never verifies")
}

func TestCheckSameOrigin(t *testing.T) {
	cases := []struct {
		name   string
		origin string
		host   string
		ok     bool
	}{
		{"no headers", "", "", true},
		{"origin only", "https://evil.example", "", true},
		{"host only", "", "helpdesk.britishuniversity.krd", true},
		{"same host", "https://helpdesk.britishuniversity.krd", "helpdesk.britishuniversity.krd", true},
		{"same host and port", "http://localhost:8080", "localhost:8080", true},
		{"port mismatch", "http://localhost:3000", "localhost:8080", false},
		{"cross site", "https://evil.example", "helpdesk.britishuniversity.krd", false},
		{"opaque origin", "null", "helpdesk.britishuniversity.krd", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckSameOrigin(tc.origin, tc.host)
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
			assert.Equal(t, "Invalid origin", err.Error())
		})
	}
}

func TestClientIP(t *testing.T) {
	app := fiber.New()
	app.Get("/trusted", func(c *fiber.Ctx) error { return c.SendString(ClientIP(c, true)) })
	app.Get("/direct", func(c *fiber.Ctx) error { return c.SendString(ClientIP(c, false)) })

	get := func(path string, headers map[string]string) string {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return string(body)
	}

	assert.Equal(t, "203.0.113.4", get("/trusted", map[string]string{"X-Forwarded-For": "203.0.113.4, 10.0.0.1"}))
	assert.Equal(t, "198.51.100.9", get("/trusted", map[string]string{"X-Real-IP": "198.51.100.9"}))
	assert.Equal(t, "unknown", get("/trusted", nil))
	assert.Equal(t, "0.0.0.0", get("/direct", map[string]string{"X-Forwarded-For": "203.0.113.4"}))
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("correct horse", 4)
	require.NoError(t, err)
	assert.NoError(t, ComparePassword(hash, "correct horse"))
	assert.ErrorIs(t, ComparePassword(hash, "battery staple"), ErrPasswordMismatch)
	assert.ErrorIs(t, ComparePassword("", "correct horse"), ErrPasswordMismatch)
}

func seedStaff(t *testing.T, repo *repository.MemoryStaffRepository, email string, role domain.StaffRole, active bool) *domain.StaffMember {
	t.Helper()
	staff := &domain.StaffMember{Name: "Staff", Email: email, PasswordHash: "x", Role: role, Active: active}
	require.NoError(t, repo.Upsert(context.Background(), staff))
	return staff
}

func TestSessionMiddleware_Authenticate(t *testing.T) {
	staffRepo := repository.NewMemoryStaffRepository(nil)
	tm := NewTokenManager("secret", time.Hour)
	mw := NewSessionMiddleware(tm, staffRepo, "helpdesk_session")
	ctx := context.Background()

	admin := seedStaff(t, staffRepo, "admin@britishuniversity.krd", domain.StaffRoleAdmin, true)
	inactive := seedStaff(t, staffRepo, "former@britishuniversity.krd", domain.StaffRoleAdmin, false)

	token, _, err := tm.GenerateToken(admin.ID, domain.StaffRoleAdmin)
	require.NoError(t, err)
	principal, err := mw.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, principal.Staff.ID)
	assert.Equal(t, domain.StaffRoleAdmin, principal.Role)

	denied := func(credential string) {
		t.Helper()
		_, err := mw.Authenticate(ctx, credential)
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
		assert.Equal(t, "unauthorized", err.Error(), "denials never say which check failed")
	}

	denied("")
	denied("garbage")

	inactiveToken, _, _ := tm.GenerateToken(inactive.ID, domain.StaffRoleAdmin)
	denied(inactiveToken)

	unknownToken, _, _ := tm.GenerateToken("5b0c0b5e-7a7e-4a4f-8c4a-2f1f4f7e9d11", domain.StaffRoleAdmin)
	denied(unknownToken)

	forgedRole, _, _ := tm.GenerateToken(admin.ID, domain.StaffRoleAgent)
	denied(forgedRole)
}

func TestRequireAdmin(t *testing.T) {
	staffRepo := repository.NewMemoryStaffRepository(nil)
	tm := NewTokenManager("secret", time.Hour)
	mw := NewSessionMiddleware(tm, staffRepo, "helpdesk_session")

	admin := seedStaff(t, staffRepo, "admin@britishuniversity.krd", domain.StaffRoleAdmin, true)
	agent := seedStaff(t, staffRepo, "agent@britishuniversity.krd", domain.StaffRoleAgent, true)

	app := fiber.New(fiber.Config{ErrorHandler: func(c *fiber.Ctx, err error) error {
		de := apperrors.ToDomainError(err)
		return c.Status(de.HTTPStatus).SendString(de.Code)
	}})
	app.Get("/admin", mw.Handle, RequireAdmin(), func(c *fiber.Ctx) error {
		principal, _ := PrincipalFromContext(c)
		return c.SendString(principal.Staff.Email)
	})

	call := func(req *http.Request) (int, string) {
		resp, err := app.Test(req)
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	adminToken, _, _ := tm.GenerateToken(admin.ID, domain.StaffRoleAdmin)
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.AddCookie(&http.Cookie{Name: "helpdesk_session", Value: adminToken})
	status, body := call(req)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "admin@britishuniversity.krd", body)

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	status, _ = call(req)
	assert.Equal(t, http.StatusOK, status)

	agentToken, _, _ := tm.GenerateToken(agent.ID, domain.StaffRoleAgent)
	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+agentToken)
	status, body = call(req)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, apperrors.CodeUnauthorized, body)

	status, _ = call(httptest.NewRequest(http.MethodGet, "/admin", nil))
	assert.Equal(t, http.StatusUnauthorized, status)
}
