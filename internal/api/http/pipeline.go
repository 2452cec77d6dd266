package http

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/uni-helpdesk/internal/auth"
	"github.com/spec-kit/uni-helpdesk/internal/observability"
	"github.com/spec-kit/uni-helpdesk/internal/ratelimit"
	apperrors "github.com/spec-kit/uni-helpdesk/pkg/util/errorutil"
)

// Pipeline builds the admission stages that guard mutating routes. Stages
// run in order origin, rate limit, credential; any stage may end the request.
type Pipeline struct {
	limiter    ratelimit.Limiter
	metrics    *observability.Metrics
	logger     *zap.Logger
	trustProxy bool
}

// NewPipeline constructs the stage factory.
func NewPipeline(limiter ratelimit.Limiter, metrics *observability.Metrics, logger *zap.Logger, trustProxy bool) *Pipeline {
	return &Pipeline{limiter: limiter, metrics: metrics, logger: logger, trustProxy: trustProxy}
}

// SameOrigin rejects cross-site requests.
func (p *Pipeline) SameOrigin() fiber.Handler {
	return auth.RequireSameOrigin()
}

// Limit admits at most the configured number of requests per window for the
// key <operation>[:<param>...]:<client ip>. params name route parameters
// that scope the budget, such as the public ticket id.
//
// A limiter that cannot decide denies the request.
func (p *Pipeline) Limit(operation string, params ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		parts := make([]string, 0, len(params)+1)
		for _, name := range params {
			parts = append(parts, c.Params(name))
		}
		parts = append(parts, auth.ClientIP(c, p.trustProxy))

		decision, err := p.limiter.Admit(c.UserContext(), ratelimit.Key(operation, parts...))
		if err != nil {
			p.logger.Error("rate limiter unavailable", zap.String("operation", operation), zap.Error(err))
			return apperrors.NewServiceUnavailable(err)
		}
		if !decision.Allowed {
			p.metrics.RecordRateLimited(operation)
			return apperrors.NewRateLimited(decision.RetryAfterSeconds())
		}
		return c.Next()
	}
}
