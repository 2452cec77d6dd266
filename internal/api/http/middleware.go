package http

import (
	"context"
	"errors"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/uni-helpdesk/internal/observability"
	apperrors "github.com/spec-kit/uni-helpdesk/pkg/util/errorutil"
)

const contentSecurityPolicy = "default-src 'self'; img-src 'self' data:; style-src 'self' 'unsafe-inline'; script-src 'self'; connect-src 'self'; frame-ancestors 'none'"

// RegisterMiddlewares attaches global middlewares such as error handling and logging.
func RegisterMiddlewares(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration) {
	app.Use(securityHeadersMiddleware())
	if timeout > 0 {
		app.Use(requestTimeoutMiddleware(timeout))
	}
	app.Use(observability.RequestLogger(logger, metrics))
	app.Use(errorHandlingMiddleware(logger, metrics))
}

func securityHeadersMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderXFrameOptions, "DENY")
		c.Set(fiber.HeaderXContentTypeOptions, "nosniff")
		c.Set(fiber.HeaderReferrerPolicy, "no-referrer")
		c.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=(), interest-cohort=()")
		c.Set(fiber.HeaderContentSecurityPolicy, contentSecurityPolicy)
		return c.Next()
	}
}

func requestTimeoutMiddleware(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

func errorHandlingMiddleware(logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				err = apperrors.NewInternalError(nil)
			}
			if err != nil {
				domainErr := toDomainError(err)
				metrics.RecordError(observability.RouteKey(c), c.Method(), domainErr.Code)
				if domainErr.HTTPStatus >= 500 {
					logger.Error("request failed",
						zap.String("method", c.Method()),
						zap.String("path", c.Path()),
						zap.Error(domainErr))
				}
				_ = writeError(c, domainErr)
				err = nil
			}
		}()
		return c.Next()
	}
}

// writeError renders a DomainError. Rate-limit rejections use the flat body
// shared by every mutating endpoint.
func writeError(c *fiber.Ctx, domainErr *apperrors.DomainError) error {
	c.Status(domainErr.HTTPStatus)
	if domainErr.Code == apperrors.CodeRateLimited {
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(domainErr.RetryAfter))
		return c.JSON(fiber.Map{
			"error":      domainErr.Message,
			"retryAfter": domainErr.RetryAfter,
		})
	}
	body := fiber.Map{
		"code":    domainErr.Code,
		"message": domainErr.Message,
	}
	if len(domainErr.Details) > 0 {
		body["details"] = domainErr.Details
	}
	return c.JSON(fiber.Map{"error": body})
}

// toDomainError also maps fiber's own errors, such as unmatched routes and
// oversized bodies, onto the application taxonomy.
func toDomainError(err error) *apperrors.DomainError {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		switch fiberErr.Code {
		case fiber.StatusNotFound:
			return apperrors.NewDomainError(apperrors.CodeNotFound, "Not found", fiberErr.Code, nil)
		case fiber.StatusRequestEntityTooLarge:
			return apperrors.NewDomainError(apperrors.CodeValidation, "Request too large", fiberErr.Code, nil)
		}
		if fiberErr.Code < fiber.StatusInternalServerError {
			return apperrors.NewDomainError(apperrors.CodeValidation, fiberErr.Message, fiberErr.Code, nil)
		}
	}
	return apperrors.ToDomainError(err)
}
