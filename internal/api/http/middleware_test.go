package http

import (
	"fmt"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/uni-helpdesk/internal/observability"
	apperrors "github.com/spec-kit/uni-helpdesk/pkg/util/errorutil"
)

func TestMetricsKeyedByRoutePattern(t *testing.T) {
	metrics := observability.NewMetrics()
	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), metrics, time.Second)
	app.Get("/api/tickets/:publicTicketId", func(c *fiber.Ctx) error {
		if c.Params("publicTicketId") == "UHD-2026-000404" {
			return apperrors.NewNotFound("Ticket", nil)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	for i := 0; i < 50; i++ {
		resp, body := do(t, app, request{method: fiber.MethodGet, path: fmt.Sprintf("/api/nothing-%d", i)})
		require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "NOT_FOUND", errorCode(body))
	}
	for i := 0; i < 3; i++ {
		resp, _ := do(t, app, request{method: fiber.MethodGet, path: fmt.Sprintf("/api/tickets/UHD-2026-%06d", i+1)})
		require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	}
	resp, _ := do(t, app, request{method: fiber.MethodGet, path: "/api/tickets/UHD-2026-000404"})
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	snap := metrics.Snapshot()
	assert.Equal(t, map[string]int64{
		"unmatched|GET|404":                    50,
		"/api/tickets/:publicTicketId|GET|204": 3,
		"/api/tickets/:publicTicketId|GET|404": 1,
	}, snap.Requests)
	assert.Equal(t, map[string]int64{
		"unmatched|GET|NOT_FOUND":                    50,
		"/api/tickets/:publicTicketId|GET|NOT_FOUND": 1,
	}, snap.Errors)
}

func TestPanicRecordedAsServerError(t *testing.T) {
	metrics := observability.NewMetrics()
	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), metrics, 0)
	app.Get("/boom", func(*fiber.Ctx) error { panic("boom") })

	resp, body := do(t, app, request{method: fiber.MethodGet, path: "/boom"})
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "INTERNAL_ERROR", errorCode(body))
	assert.Equal(t, int64(1), metrics.Snapshot().Requests["/boom|GET|500"])
}
