package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const unknownIP = "unknown"

// ClientIP resolves the caller address used in rate-limit keys. Behind a
// trusted proxy the first X-Forwarded-For hop wins, then X-Real-IP.
func ClientIP(c *fiber.Ctx, trustProxy bool) string {
	if !trustProxy {
		if ip := c.IP(); ip != "" {
			return ip
		}
		return unknownIP
	}
	if forwarded := c.Get(fiber.HeaderXForwardedFor); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
		return unknownIP
	}
	if real := strings.TrimSpace(c.Get("X-Real-IP")); real != "" {
		return real
	}
	return unknownIP
}
