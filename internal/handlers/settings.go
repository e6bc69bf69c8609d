package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/wirevault/backend/internal/database"
	"github.com/wirevault/backend/internal/models"
	"github.com/wirevault/backend/internal/services"
	"github.com/wirevault/backend/internal/wgconfig"
)

type SettingsHandler struct {
	settings *services.SettingsService
}

func NewSettingsHandler() *SettingsHandler {
	return &SettingsHandler{
		settings: services.NewSettingsService(database.DB),
	}
}

// GetWGDefaults returns the server-wide WireGuard defaults
func (h *SettingsHandler) GetWGDefaults(c *fiber.Ctx) error {
	defaults := h.settings.WGDefaults()
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"public_key":  defaults.PublicKey,
			"dns_servers": defaults.DNSServers,
			"allowed_ips": defaults.AllowedIPs,
			"mtu":         defaults.MTU,
		},
	})
}

// WGDefaultsRequest represents a defaults update; only non-nil fields
// are written, so a partial body cannot clear unrelated settings
type WGDefaultsRequest struct {
	PublicKey  *string `json:"public_key"`
	DNSServers *string `json:"dns_servers"`
	AllowedIPs *string `json:"allowed_ips"`
	MTU        *string `json:"mtu"`
}

// UpdateWGDefaults updates the server-wide WireGuard defaults
func (h *SettingsHandler) UpdateWGDefaults(c *fiber.Ctx) error {
	var req WGDefaultsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	updates := map[string]*string{
		models.SettingWGServerPublicKey: req.PublicKey,
		models.SettingWGDNSServers:      req.DNSServers,
		models.SettingWGAllowedIPs:      req.AllowedIPs,
		models.SettingWGMTU:             req.MTU,
	}

	for key, value := range updates {
		if value == nil {
			continue
		}
		if err := h.settings.Set(key, *value, "string"); err != nil {
			return c.Status(500).JSON(fiber.Map{
				"success": false,
				"message": "Failed to update " + key + ": " + err.Error(),
			})
		}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "WireGuard defaults updated",
	})
}

// GetFilenamePattern returns the configured export filename pattern
func (h *SettingsHandler) GetFilenamePattern(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"pattern": h.settings.FilenamePattern(),
			"default": wgconfig.DefaultFilenamePattern,
		},
	})
}

// UpdateFilenamePattern updates the export filename pattern
func (h *SettingsHandler) UpdateFilenamePattern(c *fiber.Ctx) error {
	var req struct {
		Pattern string `json:"pattern"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	if err := h.settings.Set(models.SettingFilenamePattern, req.Pattern, "string"); err != nil {
		return c.Status(500).JSON(fiber.Map{
			"success": false,
			"message": "Failed to update pattern: " + err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Filename pattern updated",
	})
}

// UpdateRateLimit updates the API rate limit setting
func (h *SettingsHandler) UpdateRateLimit(c *fiber.Ctx) error {
	var req struct {
		RequestsPerMinute int `json:"requests_per_minute"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	if req.RequestsPerMinute < 1 {
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"message": "requests_per_minute must be positive",
		})
	}

	if err := h.settings.Set(models.SettingAPIRateLimit, strconv.Itoa(req.RequestsPerMinute), "int"); err != nil {
		return c.Status(500).JSON(fiber.Map{
			"success": false,
			"message": "Failed to update rate limit: " + err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Rate limit updated",
	})
}
