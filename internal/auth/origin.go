package auth

import (
	"net/url"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/uni-helpdesk/pkg/util/errorutil"
)

// CheckSameOrigin compares the declared Origin with the request Host.
//
// When either header is absent the check passes: non-browser clients and
// same-process callers cannot be verified this way. When both are present
// the origin's host[:port] must equal Host exactly.
func CheckSameOrigin(origin, host string) error {
	if origin == "" || host == "" {
		return nil
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host != host {
		return apperrors.NewForbidden("Invalid origin")
	}
	return nil
}

// RequireSameOrigin rejects cross-site state-changing requests.
func RequireSameOrigin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := CheckSameOrigin(c.Get(fiber.HeaderOrigin), c.Get(fiber.HeaderHost)); err != nil {
			return err
		}
		return c.Next()
	}
}
