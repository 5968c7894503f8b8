package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimiter creates a rate limiting middleware keyed by user, or by IP
// before authentication
func RateLimiter(max int, expiration time.Duration) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: expiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			if userID := GetUserID(c); userID != "" {
				return userID
			}
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success": false,
				"message": "Too many requests, please try again later",
			})
		},
	})
}

// Limits holds the route group limiters. Disabled limits pass through.
type Limits struct {
	Auth  fiber.Handler
	Write fiber.Handler
	Read  fiber.Handler
}

// DefaultLimits are used in production: credentials are tightly limited,
// message writes moderately, reads loosely.
func DefaultLimits() Limits {
	return Limits{
		Auth:  RateLimiter(10, 15*time.Minute),
		Write: RateLimiter(60, time.Minute),
		Read:  RateLimiter(300, time.Minute),
	}
}

// NoLimits disables rate limiting.
func NoLimits() Limits {
	next := func(c *fiber.Ctx) error { return c.Next() }
	return Limits{Auth: next, Write: next, Read: next}
}
