package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/atomic"

	"github.com/spec-kit/uni-helpdesk/internal/observability"
	"github.com/spec-kit/uni-helpdesk/internal/persistence"
)

// HealthHandler responds to liveness and readiness probes.
type HealthHandler struct {
	serviceName string
	version     string
	postgres    *persistence.Postgres
	redis       *persistence.Redis
	metrics     *observability.Metrics
	draining    *atomic.Bool
}

// NewHealthHandler returns a new handler instance. Postgres and Redis are
// only probed when configured.
func NewHealthHandler(serviceName, version string, postgres *persistence.Postgres, redis *persistence.Redis, metrics *observability.Metrics) *HealthHandler {
	return &HealthHandler{
		serviceName: serviceName,
		version:     version,
		postgres:    postgres,
		redis:       redis,
		metrics:     metrics,
		draining:    atomic.NewBool(false),
	}
}

// StartDraining flips readiness to failing so load balancers stop routing
// here before shutdown. It reports whether this call started the drain.
func (h *HealthHandler) StartDraining() bool {
	return !h.draining.Swap(true)
}

// Health reports whether the ticket store answers. GET /api/health.
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	if h.postgres.Enabled() {
		if err := h.postgres.Ping(ctx); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"ok": false})
		}
	}
	return c.JSON(fiber.Map{
		"ok":        true,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// Live reports service liveness.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

// Ready reports service readiness by checking dependencies.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	if h.draining.Load() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    "DRAINING",
				"message": "service is shutting down",
			},
		})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	depStatus := fiber.Map{}
	ready := true

	if h.postgres.Enabled() {
		if err := h.postgres.Ping(ctx); err != nil {
			depStatus["postgres"] = "unavailable"
			ready = false
		} else {
			depStatus["postgres"] = "ok"
		}
	} else {
		depStatus["postgres"] = "disabled"
	}

	if h.redis.Enabled() {
		if err := h.redis.Ping(ctx); err != nil {
			depStatus["redis"] = "unavailable"
			ready = false
		} else {
			depStatus["redis"] = "ok"
		}
	} else {
		depStatus["redis"] = "disabled"
	}

	if ready {
		return c.JSON(fiber.Map{
			"status":       "ready",
			"dependencies": depStatus,
		})
	}

	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "DEPENDENCY_UNAVAILABLE",
			"message": "one or more dependencies unavailable",
			"details": depStatus,
		},
	})
}

// Metrics returns the in-process counters. GET /api/admin/metrics.
func (h *HealthHandler) Metrics(c *fiber.Ctx) error {
	return c.JSON(h.metrics.Snapshot())
}
