package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/wirevault/backend/internal/database"
	"github.com/wirevault/backend/internal/models"
	"github.com/wirevault/backend/internal/pool"
	"golang.org/x/crypto/bcrypt"
)

type UserHandler struct {
	allocator *pool.Allocator
}

func NewUserHandler() *UserHandler {
	return &UserHandler{
		allocator: pool.NewAllocator(database.DB),
	}
}

// List returns all users
func (h *UserHandler) List(c *fiber.Ctx) error {
	var users []models.User
	if err := database.DB.Order("id").Find(&users).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{
			"success": false,
			"message": "Failed to get users: " + err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    users,
	})
}

// Get returns a single user
func (h *UserHandler) Get(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"message": "Invalid user ID",
		})
	}

	var user models.User
	if err := database.DB.First(&user, id).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{
			"success": false,
			"message": "User not found",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    user,
	})
}

// CreateUserRequest represents user creation
type CreateUserRequest struct {
	Username string          `json:"username"`
	Password string          `json:"password"`
	Email    string          `json:"email"`
	FullName string          `json:"full_name"`
	UserType models.UserType `json:"user_type"`
}

// Create adds a new user
func (h *UserHandler) Create(c *fiber.Ctx) error {
	var req CreateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	if req.Username == "" || len(req.Password) < 8 {
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"message": "Username and a password of at least 8 characters are required",
		})
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{
			"success": false,
			"message": "Failed to hash password",
		})
	}

	userType := req.UserType
	if userType == 0 {
		userType = models.UserTypeMember
	}

	user := models.User{
		Username:            req.Username,
		Password:            string(hashed),
		Email:               req.Email,
		FullName:            req.FullName,
		UserType:            userType,
		IsActive:            true,
		ForcePasswordChange: true,
	}

	if err := database.DB.Create(&user).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{
			"success": false,
			"message": "Failed to create user: " + err.Error(),
		})
	}

	return c.Status(201).JSON(fiber.Map{
		"success": true,
		"data":    user,
	})
}

// UpdateUserRequest is the allow-listed set of mutable user fields; only
// non-nil fields are written
type UpdateUserRequest struct {
	Email    *string          `json:"email"`
	FullName *string          `json:"full_name"`
	UserType *models.UserType `json:"user_type"`
	IsActive *bool            `json:"is_active"`
}

// Update modifies an existing user
func (h *UserHandler) Update(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"message": "Invalid user ID",
		})
	}

	var user models.User
	if err := database.DB.First(&user, id).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{
			"success": false,
			"message": "User not found",
		})
	}

	var req UpdateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	updates := map[string]interface{}{}
	if req.Email != nil {
		updates["email"] = *req.Email
	}
	if req.FullName != nil {
		updates["full_name"] = *req.FullName
	}
	if req.UserType != nil {
		updates["user_type"] = *req.UserType
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}

	if len(updates) == 0 {
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"message": "No updatable fields supplied",
		})
	}

	if err := database.DB.Model(&user).Updates(updates).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{
			"success": false,
			"message": "Failed to update user: " + err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    user,
	})
}

// Delete removes a user and permanently revokes every credential ever
// assigned to them. Downloaded configs may still be usable offline, so
// their credentials are deactivated, never recycled.
func (h *UserHandler) Delete(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"message": "Invalid user ID",
		})
	}

	var user models.User
	if err := database.DB.First(&user, id).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{
			"success": false,
			"message": "User not found",
		})
	}

	revoked, err := h.allocator.DeactivateForUser(user.ID)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{
			"success": false,
			"message": "Failed to revoke user credentials: " + err.Error(),
		})
	}

	if err := database.DB.Delete(&user).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{
			"success": false,
			"message": "Failed to delete user: " + err.Error(),
		})
	}

	log.Printf("UserHandler: Deleted user %s (revoked %d credentials)", user.Username, revoked)
	return c.JSON(fiber.Map{
		"success": true,
		"message": "User deleted",
		"data": fiber.Map{
			"revoked_credentials": revoked,
		},
	})
}
