package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/uni-helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/uni-helpdesk/internal/auth"
	"github.com/spec-kit/uni-helpdesk/internal/config"
	"github.com/spec-kit/uni-helpdesk/internal/events"
	"github.com/spec-kit/uni-helpdesk/internal/observability"
	"github.com/spec-kit/uni-helpdesk/internal/ratelimit"
	"github.com/spec-kit/uni-helpdesk/internal/repository"
	"github.com/spec-kit/uni-helpdesk/internal/service"
	"github.com/spec-kit/uni-helpdesk/internal/storage"
)

const (
	cookieName    = "helpdesk_session"
	adminEmail    = "registry@britishuniversity.krd"
	adminPassword = "correct-horse-battery"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	return newTestAppWithLimiter(t, ratelimit.NewMemoryLimiter(ratelimit.DefaultPolicy()))
}

func newTestAppWithLimiter(t *testing.T, limiter ratelimit.Limiter) *fiber.App {
	t.Helper()

	clock := func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	logger := zap.NewNop()
	metrics := observability.NewMetrics()

	uploadCfg := config.UploadConfig{
		Provider:     "local",
		LocalDir:     t.TempDir(),
		PublicPrefix: "/uploads",
		MaxBytes:     1 << 20,
		AllowedMimes: []string{"image/png", "image/jpeg", "application/pdf"},
	}
	backend, err := storage.NewBackend(uploadCfg)
	require.NoError(t, err)

	ticketRepo := repository.NewMemoryTicketRepository(clock)
	staffRepo := repository.NewMemoryStaffRepository(clock)
	validator := service.NewValidator("britishuniversity.krd", uploadCfg.AllowedReferencePrefixes())
	dispatcher := events.NewInMemoryDispatcher()
	tokens := auth.NewTokenManager("test-secret", time.Hour)

	tickets := service.NewTicketService(service.TicketDependencies{
		TicketRepo: ticketRepo,
		Validator:  validator,
		Dispatcher: dispatcher,
		Logger:     logger,
		Clock:      clock,
	})
	workflow := service.NewWorkflowService(service.WorkflowDependencies{
		TicketRepo: ticketRepo,
		Dispatcher: dispatcher,
		Logger:     logger,
		Clock:      clock,
	})
	assignments := service.NewAssignmentService(service.AssignmentDependencies{
		TicketRepo: ticketRepo,
		StaffRepo:  staffRepo,
		Dispatcher: dispatcher,
		Logger:     logger,
		Clock:      clock,
	})
	authService := service.NewAuthService(service.AuthDependencies{
		StaffRepo:    staffRepo,
		TokenManager: tokens,
		Validator:    validator,
		Logger:       logger,
		BcryptCost:   bcrypt.MinCost,
	})
	_, err = service.NewStaffService(staffRepo, bcrypt.MinCost, logger).
		EnsureAdmin(context.Background(), "Registry Office", adminEmail, adminPassword)
	require.NoError(t, err)

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, 5*time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("uni-helpdesk", "test", nil, nil, metrics),
		Tickets:        handlers.NewTicketsHandler(tickets, workflow, validator),
		StaffTickets:   handlers.NewStaffTicketsHandler(tickets, workflow, assignments, validator),
		Staff:          handlers.NewStaffHandler(authService, handlers.SessionCookie{Name: cookieName}),
		Uploads:        handlers.NewUploadsHandler(storage.NewUploader(backend, uploadCfg), uploadCfg.MaxBytes),
		Pipeline:       NewPipeline(limiter, metrics, logger, false),
		AuthMiddleware: auth.NewSessionMiddleware(tokens, staffRepo, cookieName),
		UploadsDir:     uploadCfg.LocalDir,
		UploadsPrefix:  uploadCfg.PublicPrefix,
	})
	return app
}

type request struct {
	method  string
	path    string
	json    any
	form    url.Values
	headers map[string]string
	session string
}

func do(t *testing.T, app *fiber.App, r request) (*http.Response, map[string]any) {
	t.Helper()

	var (
		body        io.Reader
		contentType string
	)
	switch {
	case r.json != nil:
		raw, err := json.Marshal(r.json)
		require.NoError(t, err)
		body, contentType = bytes.NewReader(raw), fiber.MIMEApplicationJSON
	case r.form != nil:
		body, contentType = strings.NewReader(r.form.Encode()), fiber.MIMEApplicationForm
	}
	req := httptest.NewRequest(r.method, r.path, body)
	if contentType != "" {
		req.Header.Set(fiber.HeaderContentType, contentType)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	if r.session != "" {
		req.Header.Set(fiber.HeaderCookie, cookieName+"="+r.session)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]any
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(raw, &decoded), string(raw))
	}
	return resp, decoded
}

func ticketPayload() map[string]any {
	return map[string]any{
		"issueType":           "LETTERS",
		"department":          "Registry",
		"title":               "Enrolment letter",
		"description":         "I need an enrolment letter for my visa appointment.",
		"studentName":         "Sara Ahmed",
		"studentId":           "BUK-22-0141",
		"studentEmailOrPhone": "sara@britishuniversity.krd",
	}
}

func createTicket(t *testing.T, app *fiber.App) (publicID, token string) {
	t.Helper()
	resp, body := do(t, app, request{method: fiber.MethodPost, path: "/api/tickets", json: ticketPayload()})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, body)
	return body["publicTicketId"].(string), body["viewToken"].(string)
}

func login(t *testing.T, app *fiber.App) string {
	t.Helper()
	resp, body := do(t, app, request{
		method: fiber.MethodPost,
		path:   "/api/auth/login",
		json:   map[string]string{"email": adminEmail, "password": adminPassword},
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	for _, cookie := range resp.Cookies() {
		if cookie.Name == cookieName {
			assert.True(t, cookie.HttpOnly)
			return cookie.Value
		}
	}
	t.Fatal("session cookie not set")
	return ""
}

func errorCode(body map[string]any) string {
	errBody, _ := body["error"].(map[string]any)
	code, _ := errBody["code"].(string)
	return code
}

func TestCreateAndViewTicket(t *testing.T) {
	app := newTestApp(t)

	publicID, token := createTicket(t, app)
	assert.Equal(t, "UHD-2026-000001", publicID)
	assert.Len(t, token, 36)

	resp, body := do(t, app, request{method: fiber.MethodGet, path: "/api/tickets/" + publicID + "?token=" + token})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	ticket := body["ticket"].(map[string]any)
	assert.Equal(t, "SUBMITTED", ticket["status"])
	assert.NotContains(t, ticket, "id")
	assert.NotContains(t, ticket, "viewToken")
	events := ticket["events"].([]any)
	require.Len(t, events, 1)
	assert.Equal(t, "CREATED", events[0].(map[string]any)["type"])
}

func TestViewTicketTokenChecks(t *testing.T) {
	app := newTestApp(t)
	publicID, _ := createTicket(t, app)

	resp, body := do(t, app, request{method: fiber.MethodGet, path: "/api/tickets/" + publicID})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	wrong, _ := do(t, app, request{method: fiber.MethodGet, path: "/api/tickets/" + publicID + "?token=" + strings.Repeat("0", 64)})
	unknown, _ := do(t, app, request{method: fiber.MethodGet, path: "/api/tickets/UHD-2026-999999?token=" + strings.Repeat("0", 64)})
	assert.Equal(t, fiber.StatusNotFound, wrong.StatusCode)
	assert.Equal(t, wrong.StatusCode, unknown.StatusCode)
}

func TestViewWithoutTokenSpendsNoBudget(t *testing.T) {
	app := newTestApp(t)
	publicID, token := createTicket(t, app)

	for i := 0; i < 8; i++ {
		resp, body := do(t, app, request{method: fiber.MethodGet, path: "/api/tickets/" + publicID})
		require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "UNAUTHORIZED", errorCode(body))
	}

	resp, _ := do(t, app, request{method: fiber.MethodGet, path: "/api/tickets/" + publicID + "?token=" + token})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestCreateTicketRejectsForeignEmail(t *testing.T) {
	app := newTestApp(t)
	payload := ticketPayload()
	payload["studentEmailOrPhone"] = "sara@gmail.com"

	resp, body := do(t, app, request{method: fiber.MethodPost, path: "/api/tickets", json: payload})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
	assert.Contains(t, body["error"].(map[string]any)["message"], "britishuniversity.krd")
}

func TestCreateTicketRateLimited(t *testing.T) {
	app := newTestApp(t)
	for i := 0; i < 5; i++ {
		createTicket(t, app)
	}

	resp, body := do(t, app, request{method: fiber.MethodPost, path: "/api/tickets", json: ticketPayload()})
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "Too many requests", body["error"])
	retryAfter := body["retryAfter"].(float64)
	assert.GreaterOrEqual(t, retryAfter, float64(1))
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderRetryAfter))
}

type unavailableLimiter struct{}

func (unavailableLimiter) Admit(context.Context, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("redis down")
}

func TestLimiterFailureDeniesRequests(t *testing.T) {
	app := newTestAppWithLimiter(t, unavailableLimiter{})

	resp, body := do(t, app, request{method: fiber.MethodPost, path: "/api/tickets", json: ticketPayload()})
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "SERVICE_UNAVAILABLE", errorCode(body))

	resp, body = do(t, app, request{
		method: fiber.MethodPost,
		path:   "/api/auth/login",
		json:   map[string]string{"email": adminEmail, "password": adminPassword},
	})
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "SERVICE_UNAVAILABLE", errorCode(body))
	assert.Empty(t, resp.Cookies())
}

func TestLimiterFailureNeverReachesHandler(t *testing.T) {
	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), observability.NewMetrics(), time.Second)
	p := NewPipeline(unavailableLimiter{}, observability.NewMetrics(), zap.NewNop(), false)

	reached := false
	app.Post("/api/tickets", p.Limit("ticket:create"), func(c *fiber.Ctx) error {
		reached = true
		return c.SendStatus(fiber.StatusCreated)
	})

	resp, body := do(t, app, request{method: fiber.MethodPost, path: "/api/tickets", json: ticketPayload()})
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "SERVICE_UNAVAILABLE", errorCode(body))
	assert.False(t, reached)
}

func TestOriginMismatchRejectedBeforeRateLimit(t *testing.T) {
	app := newTestApp(t)
	foreign := map[string]string{fiber.HeaderOrigin: "https://attacker.example"}

	for i := 0; i < 7; i++ {
		resp, body := do(t, app, request{method: fiber.MethodPost, path: "/api/tickets", json: ticketPayload(), headers: foreign})
		require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "FORBIDDEN", errorCode(body))
	}

	// rejected requests never consumed the budget
	same := map[string]string{fiber.HeaderOrigin: "http://example.com"}
	resp, _ := do(t, app, request{method: fiber.MethodPost, path: "/api/tickets", json: ticketPayload(), headers: same})
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
}

func TestStudentNote(t *testing.T) {
	app := newTestApp(t)
	publicID, token := createTicket(t, app)

	resp, body := do(t, app, request{
		method: fiber.MethodPost,
		path:   "/api/tickets/" + publicID + "/note",
		json:   map[string]string{"token": token, "message": "Attached my passport scan."},
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	assert.Equal(t, true, body["ok"])

	_, body = do(t, app, request{method: fiber.MethodGet, path: "/api/tickets/" + publicID + "?token=" + token})
	events := body["ticket"].(map[string]any)["events"].([]any)
	require.Len(t, events, 2)
	assert.Equal(t, "STUDENT_NOTE", events[0].(map[string]any)["type"])
}

func TestAdminRoutesRequireSession(t *testing.T) {
	app := newTestApp(t)

	resp, body := do(t, app, request{method: fiber.MethodGet, path: "/api/admin/tickets"})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	resp, _ = do(t, app, request{method: fiber.MethodGet, path: "/api/admin/tickets", session: "not-a-token"})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestLoginFailure(t *testing.T) {
	app := newTestApp(t)
	resp, body := do(t, app, request{
		method: fiber.MethodPost,
		path:   "/api/auth/login",
		json:   map[string]string{"email": adminEmail, "password": "wrong-password"},
	})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid email or password", body["error"].(map[string]any)["message"])
}

func TestAdminWorkflow(t *testing.T) {
	app := newTestApp(t)
	publicID, token := createTicket(t, app)
	session := login(t, app)

	resp, body := do(t, app, request{method: fiber.MethodGet, path: "/api/admin/tickets", session: session})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	list := body["tickets"].([]any)
	require.Len(t, list, 1)
	ticketID := list[0].(map[string]any)["id"].(string)
	assert.Equal(t, float64(1), body["stats"].(map[string]any)["total"])

	resp, body = do(t, app, request{
		method:  fiber.MethodPost,
		path:    "/api/admin/tickets/" + ticketID + "/status",
		json:    map[string]string{"status": "IN_REVIEW"},
		session: session,
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "IN_REVIEW", body["status"])

	resp, _ = do(t, app, request{
		method:  fiber.MethodPost,
		path:    "/api/admin/tickets/" + ticketID + "/reply",
		form:    url.Values{"message": {"Please upload your passport."}, "setWaiting": {"on"}},
		session: session,
	})
	require.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/admin/tickets/"+ticketID, resp.Header.Get(fiber.HeaderLocation))

	_, body = do(t, app, request{method: fiber.MethodGet, path: "/api/tickets/" + publicID + "?token=" + token})
	ticket := body["ticket"].(map[string]any)
	assert.Equal(t, "WAITING_STUDENT", ticket["status"])
	var types []string
	for _, e := range ticket["events"].([]any) {
		types = append(types, e.(map[string]any)["type"].(string))
	}
	assert.Equal(t, []string{"STATUS_CHANGED", "ADMIN_REPLY", "STATUS_CHANGED", "CREATED"}, types)
}

func TestAdminJSONReplyEscalates(t *testing.T) {
	app := newTestApp(t)
	createTicket(t, app)
	session := login(t, app)

	_, body := do(t, app, request{method: fiber.MethodGet, path: "/api/admin/tickets", session: session})
	ticketID := body["tickets"].([]any)[0].(map[string]any)["id"].(string)

	resp, body := do(t, app, request{
		method:  fiber.MethodPost,
		path:    "/api/admin/tickets/" + ticketID + "/reply",
		json:    map[string]any{"message": "Please bring your student card.", "escalateToWaiting": true},
		session: session,
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)

	_, body = do(t, app, request{method: fiber.MethodGet, path: "/api/admin/tickets/" + ticketID, session: session})
	assert.Equal(t, "WAITING_STUDENT", body["ticket"].(map[string]any)["status"])
}

func TestAdminAssignSelf(t *testing.T) {
	app := newTestApp(t)
	createTicket(t, app)
	session := login(t, app)

	_, me := do(t, app, request{method: fiber.MethodGet, path: "/api/admin/me", session: session})
	staffID := me["staff"].(map[string]any)["id"].(string)
	_, body := do(t, app, request{method: fiber.MethodGet, path: "/api/admin/tickets", session: session})
	ticketID := body["tickets"].([]any)[0].(map[string]any)["id"].(string)

	resp, body := do(t, app, request{
		method:  fiber.MethodPost,
		path:    "/api/admin/tickets/" + ticketID + "/assign",
		json:    map[string]string{"staffId": staffID},
		session: session,
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	assignee := body["assignedTo"].(map[string]any)
	assert.Equal(t, staffID, assignee["id"])
	assert.Equal(t, "Registry Office", assignee["name"])

	_, body = do(t, app, request{method: fiber.MethodGet, path: "/api/admin/tickets/" + ticketID, session: session})
	assert.Equal(t, "Registry Office", body["ticket"].(map[string]any)["assignedTo"].(map[string]any)["name"])
}

func TestAdminStatusRejectsUnknownStatus(t *testing.T) {
	app := newTestApp(t)
	createTicket(t, app)
	session := login(t, app)

	_, body := do(t, app, request{method: fiber.MethodGet, path: "/api/admin/tickets", session: session})
	ticketID := body["tickets"].([]any)[0].(map[string]any)["id"].(string)

	resp, body := do(t, app, request{
		method:  fiber.MethodPost,
		path:    "/api/admin/tickets/" + ticketID + "/status",
		json:    map[string]string{"status": "CLOSED"},
		session: session,
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Valid status is required", body["error"].(map[string]any)["message"])
}

func TestSecurityHeadersAndUnknownRoute(t *testing.T) {
	app := newTestApp(t)

	resp, body := do(t, app, request{method: fiber.MethodGet, path: "/api/nothing-here"})
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
	assert.Equal(t, "DENY", resp.Header.Get(fiber.HeaderXFrameOptions))
	assert.Equal(t, "nosniff", resp.Header.Get(fiber.HeaderXContentTypeOptions))
	assert.Equal(t, "no-referrer", resp.Header.Get(fiber.HeaderReferrerPolicy))
	assert.Contains(t, resp.Header.Get(fiber.HeaderContentSecurityPolicy), "frame-ancestors 'none'")
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)
	resp, body := do(t, app, request{method: fiber.MethodGet, path: "/api/health"})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
	assert.NotEmpty(t, body["timestamp"])
}
