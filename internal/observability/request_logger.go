package observability

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	apperrors "github.com/spec-kit/uni-helpdesk/pkg/util/errorutil"
)

// UnmatchedRoute is the metrics bucket for requests no route handled.
const UnmatchedRoute = "unmatched"

// RequestLogger logs one line per request and feeds the request counters.
// It expects to wrap the error renderer, so the status is read from the
// written response. Query strings are never logged because student links
// carry a view token.
func RequestLogger(logger *zap.Logger, metrics *Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		latency := time.Since(start)

		status := c.Response().StatusCode()
		if err != nil {
			status = statusOf(err)
		}
		metrics.RecordRequest(RouteKey(c), c.Method(), status, latency)

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("latency", latency),
		}
		switch {
		case status >= fiber.StatusInternalServerError:
			logger.Error("request", fields...)
		case status >= fiber.StatusBadRequest:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}
		return err
	}
}

// RouteKey names the registered route pattern that served the request, such
// as /api/tickets/:publicTicketId. Once the handler chain has run, fiber
// reports the last route it matched; a bare "/" middleware there means no
// route handled the path.
func RouteKey(c *fiber.Ctx) string {
	r := c.Route()
	if r == nil || r.Path == "" || (r.Path == "/" && c.Path() != "/") {
		return UnmatchedRoute
	}
	return r.Path
}

func statusOf(err error) int {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code
	}
	return apperrors.ToDomainError(err).HTTPStatus
}
