package middleware

import (
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/wirevault/backend/internal/database"
	"github.com/wirevault/backend/internal/models"
)

const defaultRateLimit = 100 // requests per minute

// getRateLimitSetting reads the configured request limit through the
// Redis cache; the settings table is only hit on a cache miss so the
// limiter does not add a query to every request
func getRateLimitSetting() int {
	if database.Redis != nil {
		var cached int
		if err := database.CacheGet(database.CacheKeyRateLimit, &cached); err == nil && cached > 0 {
			return cached
		}
	}

	limit := defaultRateLimit
	var pref models.SystemPreference
	if err := database.DB.Where("key = ?", models.SettingAPIRateLimit).First(&pref).Error; err == nil {
		if val, err := strconv.Atoi(pref.Value); err == nil && val > 0 {
			limit = val
		}
	}

	if database.Redis != nil {
		database.CacheSet(database.CacheKeyRateLimit, limit, database.CacheTTLRateLimit)
	}
	return limit
}

// Logger middleware for request logging
func Logger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		// Process request
		err := c.Next()

		// Calculate duration
		duration := time.Since(start)

		// Log the request
		log.Printf(
			"%s | %3d | %13v | %15s | %-7s %s",
			time.Now().Format("2006/01/02 - 15:04:05"),
			c.Response().StatusCode(),
			duration,
			c.IP(),
			c.Method(),
			c.Path(),
		)

		return err
	}
}

// CORS middleware for cross-origin requests
func CORS() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("Access-Control-Allow-Origin", "*")
		c.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
		c.Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
		c.Set("Access-Control-Allow-Credentials", "true")
		c.Set("Access-Control-Max-Age", "86400")

		if c.Method() == "OPTIONS" {
			return c.SendStatus(fiber.StatusNoContent)
		}

		return c.Next()
	}
}

// RateLimiter gates how often a principal may call the API. The counter
// lives in Redis so the limit holds across every running API instance,
// not just the one that served the request.
func RateLimiter(maxRequests int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.IP()
		if userID := GetCurrentUserID(c); userID != 0 {
			key = "user:" + strconv.FormatUint(uint64(userID), 10)
		}

		// Get rate limit from settings (overrides parameter if set)
		limit := getRateLimitSetting()
		if limit > 0 {
			maxRequests = limit
		}

		count, err := database.RateLimitHit(key, window)
		if err != nil {
			// Redis being down should not take the API with it
			log.Printf("RateLimiter: counter unavailable: %v", err)
			return c.Next()
		}

		if count > int64(maxRequests) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success": false,
				"message": "Rate limit exceeded. Try again later",
			})
		}

		return c.Next()
	}
}
