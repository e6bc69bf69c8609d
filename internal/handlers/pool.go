package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/wirevault/backend/internal/database"
	"github.com/wirevault/backend/internal/middleware"
	"github.com/wirevault/backend/internal/models"
	"github.com/wirevault/backend/internal/pool"
)

type PoolHandler struct {
	allocator *pool.Allocator
}

func NewPoolHandler() *PoolHandler {
	return &PoolHandler{
		allocator: pool.NewAllocator(database.DB),
	}
}

// ClaimRequest represents a self-service claim
type ClaimRequest struct {
	Count          int                   `json:"count"`
	AssignmentType models.AssignmentType `json:"assignment_type"`
}

// Claim hands out up to Count available credentials to the caller.
// Partial success and zero capacity are regular 200 responses so bulk
// callers can report "0 of N assigned" without special-casing errors.
func (h *PoolHandler) Claim(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Unauthorized",
		})
	}

	var req ClaimRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	assignmentType := req.AssignmentType
	if user.UserType != models.UserTypeAdmin || assignmentType == "" {
		// Members may only draw from the self-service pool
		assignmentType = models.AssignmentTypeUserRequestable
	}

	result, err := h.allocator.Claim(pool.ClaimRequest{
		UserID:         &user.ID,
		Username:       user.Username,
		Count:          req.Count,
		AssignmentType: assignmentType,
	})
	if err != nil {
		return c.Status(500).JSON(fiber.Map{
			"success": false,
			"message": "Failed to claim credentials: " + err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success": result.AssignedCount > 0,
		"message": result.Message,
		"data":    result,
	})
}

// InstanceClaimRequest represents an instance auto-assignment
type InstanceClaimRequest struct {
	InstanceID *uint `json:"instance_id"`
}

// ClaimForInstance reserves exactly one auto-assign credential. When the
// instance id is not yet known (it is created after the credential is
// reserved) the row is held without the foreign key and linked later.
func (h *PoolHandler) ClaimForInstance(c *fiber.Ctx) error {
	var req InstanceClaimRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	if req.InstanceID != nil {
		var instance models.Instance
		if err := database.DB.First(&instance, *req.InstanceID).Error; err != nil {
			return c.Status(404).JSON(fiber.Map{
				"success": false,
				"message": "Instance not found",
			})
		}
	}

	cred, err := h.allocator.ReserveForInstance(req.InstanceID)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{
			"success": false,
			"message": "Failed to reserve credential: " + err.Error(),
		})
	}
	if cred == nil {
		return c.JSON(fiber.Map{
			"success": false,
			"message": "No credentials available in the instance pool",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Credential reserved",
		"data":    cred,
	})
}

// LinkInstanceRequest represents the follow-up link of a reserved credential
type LinkInstanceRequest struct {
	CredentialID uint `json:"credential_id"`
}

// LinkInstance attaches a reserved credential to its now-existing instance
func (h *PoolHandler) LinkInstance(c *fiber.Ctx) error {
	instanceID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"message": "Invalid instance ID",
		})
	}

	var req LinkInstanceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	var instance models.Instance
	if err := database.DB.First(&instance, instanceID).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{
			"success": false,
			"message": "Instance not found",
		})
	}

	if err := h.allocator.LinkInstance(req.CredentialID, uint(instanceID)); err != nil {
		return c.Status(409).JSON(fiber.Map{
			"success": false,
			"message": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Credential linked to instance",
	})
}

// Release returns a credential to the pool (admin action). Deactivated
// credentials have their assignment cleared but stay out of the pool.
func (h *PoolHandler) Release(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"message": "Invalid credential ID",
		})
	}

	if err := h.allocator.Release(uint(id)); err != nil {
		if err == pool.ErrCredentialNotFound {
			return c.Status(404).JSON(fiber.Map{
				"success": false,
				"message": "Credential not found",
			})
		}
		return c.Status(500).JSON(fiber.Map{
			"success": false,
			"message": "Failed to release credential: " + err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Credential released",
	})
}

// Stats returns per-class pool statistics
func (h *PoolHandler) Stats(c *fiber.Ctx) error {
	var stats []pool.PoolStats
	if database.Redis != nil {
		if err := database.CacheGet(database.CacheKeyPoolStats, &stats); err == nil {
			return c.JSON(fiber.Map{
				"success": true,
				"data":    stats,
			})
		}
	}

	stats, err := h.allocator.Stats()
	if err != nil {
		return c.Status(500).JSON(fiber.Map{
			"success": false,
			"message": "Failed to get pool stats: " + err.Error(),
		})
	}

	if database.Redis != nil {
		if err := database.CacheSet(database.CacheKeyPoolStats, stats, database.CacheTTLPoolStats); err != nil {
			log.Printf("PoolHandler: Failed to cache stats: %v", err)
		}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    stats,
	})
}
