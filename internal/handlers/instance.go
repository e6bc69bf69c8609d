package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/wirevault/backend/internal/database"
	"github.com/wirevault/backend/internal/models"
	"github.com/wirevault/backend/internal/pool"
)

type InstanceHandler struct {
	allocator *pool.Allocator
}

func NewInstanceHandler() *InstanceHandler {
	return &InstanceHandler{
		allocator: pool.NewAllocator(database.DB),
	}
}

// List returns all instances
func (h *InstanceHandler) List(c *fiber.Ctx) error {
	var instances []models.Instance
	if err := database.DB.Order("id").Find(&instances).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{
			"success": false,
			"message": "Failed to get instances: " + err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    instances,
	})
}

// CreateInstanceRequest represents instance registration. The machine is
// provisioned elsewhere; this records it so credentials can be linked.
type CreateInstanceRequest struct {
	Name       string                  `json:"name"`
	Provider   models.InstanceProvider `json:"provider"`
	ExternalID string                  `json:"external_id"`
	OwnerID    *uint                   `json:"owner_id"`
}

// Create registers a provisioned instance
func (h *InstanceHandler) Create(c *fiber.Ctx) error {
	var req CreateInstanceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	if req.Name == "" {
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"message": "Name is required",
		})
	}

	instance := models.Instance{
		Name:       req.Name,
		Provider:   req.Provider,
		ExternalID: req.ExternalID,
		OwnerID:    req.OwnerID,
		Status:     "active",
	}

	if err := database.DB.Create(&instance).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{
			"success": false,
			"message": "Failed to create instance: " + err.Error(),
		})
	}

	return c.Status(201).JSON(fiber.Map{
		"success": true,
		"data":    instance,
	})
}

// Delete removes an instance and releases its credential back to the pool
func (h *InstanceHandler) Delete(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"message": "Invalid instance ID",
		})
	}

	var instance models.Instance
	if err := database.DB.First(&instance, id).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{
			"success": false,
			"message": "Instance not found",
		})
	}

	if err := h.allocator.ReleaseByInstance(instance.ID); err != nil {
		return c.Status(500).JSON(fiber.Map{
			"success": false,
			"message": "Failed to release instance credential: " + err.Error(),
		})
	}

	if err := database.DB.Delete(&instance).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{
			"success": false,
			"message": "Failed to delete instance: " + err.Error(),
		})
	}

	log.Printf("InstanceHandler: Deleted instance %s", instance.Name)
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Instance deleted",
	})
}
