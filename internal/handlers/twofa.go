package handlers

import (
	"bytes"
	"encoding/base64"
	"image/png"

	"github.com/gofiber/fiber/v2"
	"github.com/pquerna/otp/totp"
	"github.com/wirevault/backend/internal/database"
	"github.com/wirevault/backend/internal/middleware"
	"github.com/wirevault/backend/internal/models"
	"github.com/wirevault/backend/internal/services"
	"golang.org/x/crypto/bcrypt"
)

type TwoFAHandler struct {
	settings *services.SettingsService
}

func NewTwoFAHandler() *TwoFAHandler {
	return &TwoFAHandler{
		settings: services.NewSettingsService(database.DB),
	}
}

// freshUser reloads the caller's row; the context copy predates any
// secret written during this session
func (h *TwoFAHandler) freshUser(c *fiber.Ctx) (*models.User, error) {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return nil, c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Unauthorized",
		})
	}

	var fresh models.User
	if err := database.DB.First(&fresh, user.ID).Error; err != nil {
		return nil, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to get user data",
		})
	}
	return &fresh, nil
}

// Setup generates a TOTP secret and returns it with a QR code. The
// secret is stored immediately but 2FA stays off until Verify proves
// the authenticator was enrolled.
func (h *TwoFAHandler) Setup(c *fiber.Ctx) error {
	user, err := h.freshUser(c)
	if user == nil {
		return err
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      h.settings.TwoFAIssuer(),
		AccountName: user.Username,
		SecretSize:  32,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to generate 2FA secret",
		})
	}

	img, err := key.Image(200, 200)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to generate QR code",
		})
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to encode QR code",
		})
	}

	if err := database.DB.Model(&models.User{}).
		Where("id = ?", user.ID).
		Update("two_factor_secret", key.Secret()).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to store 2FA secret",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"secret":  key.Secret(),
			"qr_code": "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
			"otpauth": key.URL(),
		},
	})
}

// Verify checks the first authenticator code and turns 2FA on
func (h *TwoFAHandler) Verify(c *fiber.Ctx) error {
	user, err := h.freshUser(c)
	if user == nil {
		return err
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := c.BodyParser(&req); err != nil || req.Code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Code is required",
		})
	}

	if user.TwoFactorSecret == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "2FA not set up. Call setup first",
		})
	}

	if !totp.Validate(req.Code, user.TwoFactorSecret) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid code",
		})
	}

	if err := database.DB.Model(&models.User{}).
		Where("id = ?", user.ID).
		Update("two_factor_enabled", true).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to enable 2FA",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "2FA enabled",
	})
}

// Disable turns 2FA off. Requires both the password and a current code
// so a hijacked session cannot silently weaken the account.
func (h *TwoFAHandler) Disable(c *fiber.Ctx) error {
	user, err := h.freshUser(c)
	if user == nil {
		return err
	}

	var req struct {
		Password string `json:"password"`
		Code     string `json:"code"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	if !user.TwoFactorEnabled {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "2FA is not enabled",
		})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid password",
		})
	}

	if !totp.Validate(req.Code, user.TwoFactorSecret) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid 2FA code",
		})
	}

	if err := database.DB.Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]interface{}{
			"two_factor_enabled": false,
			"two_factor_secret":  "",
		}).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to disable 2FA",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "2FA disabled",
	})
}

// Status reports whether 2FA is enabled for the caller
func (h *TwoFAHandler) Status(c *fiber.Ctx) error {
	user, err := h.freshUser(c)
	if user == nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"enabled": user.TwoFactorEnabled,
		},
	})
}
