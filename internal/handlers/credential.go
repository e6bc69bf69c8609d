package handlers

import (
	"bytes"
	"errors"
	"io"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/wirevault/backend/internal/config"
	"github.com/wirevault/backend/internal/database"
	"github.com/wirevault/backend/internal/importer"
	"github.com/wirevault/backend/internal/middleware"
	"github.com/wirevault/backend/internal/models"
	"github.com/wirevault/backend/internal/pool"
	"github.com/wirevault/backend/internal/services"
	"github.com/wirevault/backend/internal/wgconfig"
)

type CredentialHandler struct {
	cfg      *config.Config
	importer *importer.Importer
	types    *pool.TypeManager
	settings *services.SettingsService
}

func NewCredentialHandler(cfg *config.Config) *CredentialHandler {
	return &CredentialHandler{
		cfg:      cfg,
		importer: importer.New(database.DB),
		types:    pool.NewTypeManager(database.DB),
		settings: services.NewSettingsService(database.DB),
	}
}

// List returns credentials with filtering and pagination
func (h *CredentialHandler) List(c *fiber.Ctx) error {
	assignmentType := c.Query("assignment_type")
	batchID := c.Query("batch_id")
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 100)

	offset := (page - 1) * limit

	query := database.DB.Model(&models.Credential{})

	if assignmentType != "" {
		query = query.Where("assignment_type = ?", assignmentType)
	}
	if batchID != "" {
		query = query.Where("request_batch_id = ?", batchID)
	}
	if c.Query("available") != "" {
		query = query.Where("is_available = ?", c.QueryBool("available"))
	}
	if c.Query("active") != "" {
		query = query.Where("is_active = ?", c.QueryBool("active"))
	}

	var total int64
	query.Count(&total)

	var credentials []models.Credential
	if err := query.Offset(offset).Limit(limit).Order("id").Find(&credentials).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{
			"success": false,
			"message": "Failed to get credentials: " + err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    credentials,
		"pagination": fiber.Map{
			"total":       total,
			"page":        page,
			"limit":       limit,
			"total_pages": (total + int64(limit) - 1) / int64(limit),
		},
	})
}

// Get returns a single credential
func (h *CredentialHandler) Get(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"message": "Invalid credential ID",
		})
	}

	var cred models.Credential
	if err := database.DB.First(&cred, id).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{
			"success": false,
			"message": "Credential not found",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    cred,
	})
}

// Import ingests an uploaded ZIP archive of config files
func (h *CredentialHandler) Import(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"message": "No file uploaded",
		})
	}

	f, err := file.Open()
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"message": "Failed to open file",
		})
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"message": "Failed to read file",
		})
	}

	assignmentType := models.AssignmentType(c.FormValue("assignment_type", string(models.AssignmentTypeUserRequestable)))
	endpointOverride := c.FormValue("endpoint_override", h.cfg.EndpointOverride)

	log.Printf("CredentialHandler: Importing archive %s (%d bytes, type=%s)", file.Filename, len(data), assignmentType)

	result, err := h.importer.ImportArchive(data, endpointOverride, assignmentType)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"message": "Failed to import archive: " + err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Archive imported",
		"data":    result,
	})
}

// Download returns one credential's rendered config text
func (h *CredentialHandler) Download(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"message": "Invalid credential ID",
		})
	}

	var cred models.Credential
	if err := database.DB.First(&cred, id).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{
			"success": false,
			"message": "Credential not found",
		})
	}

	user := middleware.GetCurrentUser(c)
	if user != nil && user.UserType != models.UserTypeAdmin {
		if cred.AssignedToUserID == nil || *cred.AssignedToUserID != user.ID {
			return c.Status(403).JSON(fiber.Map{
				"success": false,
				"message": "Credential is not assigned to you",
			})
		}
	}

	name := wgconfig.FormatFilename(h.settings.FilenamePattern(), &cred, user, 1)
	text := wgconfig.Generate(&cred, h.settings.WGDefaults())

	c.Set("Content-Type", "text/plain")
	c.Set("Content-Disposition", `attachment; filename="`+name+`"`)
	return c.SendString(text)
}

// Export returns a ZIP of rendered configs plus a SHA256SUMS manifest
func (h *CredentialHandler) Export(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	query := database.DB.Model(&models.Credential{})
	if batchID := c.Query("batch_id"); batchID != "" {
		query = query.Where("request_batch_id = ?", batchID)
	}
	if user != nil && user.UserType != models.UserTypeAdmin {
		query = query.Where("assigned_to_user_id = ?", user.ID)
	} else if userID := c.QueryInt("user_id", 0); userID > 0 {
		query = query.Where("assigned_to_user_id = ?", userID)
	}

	var credentials []models.Credential
	if err := query.Order("id").Find(&credentials).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{
			"success": false,
			"message": "Failed to get credentials: " + err.Error(),
		})
	}

	if len(credentials) == 0 {
		return c.Status(404).JSON(fiber.Map{
			"success": false,
			"message": "No credentials matched the export filter",
		})
	}

	exporter := importer.NewExporter(h.settings.FilenamePattern(), h.settings.WGDefaults())
	archive, err := exporter.BuildArchive(credentials, user)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{
			"success": false,
			"message": "Failed to build archive: " + err.Error(),
		})
	}

	c.Set("Content-Type", "application/zip")
	c.Set("Content-Disposition", `attachment; filename="wirevault-configs.zip"`)
	return c.SendStream(bytes.NewReader(archive), len(archive))
}

// Delete removes a credential entirely (admin action)
func (h *CredentialHandler) Delete(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"message": "Invalid credential ID",
		})
	}

	result := database.DB.Delete(&models.Credential{}, id)
	if result.Error != nil {
		return c.Status(500).JSON(fiber.Map{
			"success": false,
			"message": "Failed to delete credential: " + result.Error.Error(),
		})
	}
	if result.RowsAffected == 0 {
		return c.Status(404).JSON(fiber.Map{
			"success": false,
			"message": "Credential not found",
		})
	}

	log.Printf("CredentialHandler: Deleted credential %d", id)
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Credential deleted",
	})
}

// SetAssignmentTypeRequest represents a pool class change
type SetAssignmentTypeRequest struct {
	AssignmentType models.AssignmentType `json:"assignment_type"`
}

// SetAssignmentType moves one unassigned credential between pool classes
func (h *CredentialHandler) SetAssignmentType(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"message": "Invalid credential ID",
		})
	}

	var req SetAssignmentTypeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	if err := h.types.SetAssignmentType(uint(id), req.AssignmentType); err != nil {
		return assignmentTypeError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Assignment type updated",
	})
}

// BulkSetAssignmentTypeRequest represents a bulk pool class change
type BulkSetAssignmentTypeRequest struct {
	CredentialIDs  []uint                `json:"credential_ids"`
	AssignmentType models.AssignmentType `json:"assignment_type"`
}

// BulkSetAssignmentType applies the class change to every listed id,
// reporting per-id failures instead of aborting the batch
func (h *CredentialHandler) BulkSetAssignmentType(c *fiber.Ctx) error {
	var req BulkSetAssignmentTypeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	if len(req.CredentialIDs) == 0 {
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"message": "credential_ids is required",
		})
	}

	result, err := h.types.BulkSetAssignmentType(req.CredentialIDs, req.AssignmentType)
	if err != nil {
		return assignmentTypeError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    result,
	})
}

func assignmentTypeError(c *fiber.Ctx, err error) error {
	var stillAssigned *pool.StillAssignedError
	switch {
	case errors.Is(err, pool.ErrInvalidAssignmentType):
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"message": err.Error(),
		})
	case errors.Is(err, pool.ErrCredentialNotFound):
		return c.Status(404).JSON(fiber.Map{
			"success": false,
			"message": err.Error(),
		})
	case errors.As(err, &stillAssigned):
		return c.Status(409).JSON(fiber.Map{
			"success": false,
			"message": err.Error(),
		})
	}
	return c.Status(500).JSON(fiber.Map{
		"success": false,
		"message": "Failed to update assignment type: " + err.Error(),
	})
}
