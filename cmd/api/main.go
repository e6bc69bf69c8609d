package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/wirevault/backend/internal/config"
	"github.com/wirevault/backend/internal/database"
	"github.com/wirevault/backend/internal/handlers"
	"github.com/wirevault/backend/internal/middleware"
	"github.com/wirevault/backend/internal/models"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Connect to database
	if err := database.Connect(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Run migrations
	if err := models.AutoMigrate(database.DB); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Persist the JWT signing secret so sessions survive restarts
	cfg.JWTSecret = database.EnsureJWTSecret(cfg)

	// Seed admin user if not exists
	seedAdminUser()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "WireVault API v1.0",
		ServerHeader: "WireVault",
		BodyLimit:    50 * 1024 * 1024, // 50MB config archives
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(compress.New())
	app.Use(middleware.Logger())
	app.Use(middleware.CORS())

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "wirevault-api",
		})
	})

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(cfg)
	twoFAHandler := handlers.NewTwoFAHandler()
	credentialHandler := handlers.NewCredentialHandler(cfg)
	poolHandler := handlers.NewPoolHandler()
	instanceHandler := handlers.NewInstanceHandler()
	settingsHandler := handlers.NewSettingsHandler()
	userHandler := handlers.NewUserHandler()

	// API routes
	api := app.Group("/api")

	// Public routes
	api.Post("/auth/login", authHandler.Login)

	// Protected routes
	protected := api.Group("", middleware.AuthRequired(cfg))

	// Auth routes
	protected.Post("/auth/logout", authHandler.Logout)
	protected.Get("/auth/me", authHandler.Me)
	protected.Put("/auth/password", authHandler.ChangePassword)

	// 2FA routes
	protected.Get("/auth/2fa/status", twoFAHandler.Status)
	protected.Post("/auth/2fa/setup", twoFAHandler.Setup)
	protected.Post("/auth/2fa/verify", twoFAHandler.Verify)
	protected.Post("/auth/2fa/disable", twoFAHandler.Disable)

	// Pool routes; claims are throttled per principal through Redis so
	// the limit holds across every API instance
	poolRoutes := protected.Group("/pool", middleware.RateLimiter(100, 1*time.Minute))
	poolRoutes.Post("/claim", poolHandler.Claim)
	poolRoutes.Post("/instances/claim", middleware.AdminOnly(), poolHandler.ClaimForInstance)
	poolRoutes.Post("/instances/:id/link", middleware.AdminOnly(), poolHandler.LinkInstance)
	poolRoutes.Post("/release/:id", middleware.AdminOnly(), poolHandler.Release)
	poolRoutes.Get("/stats", poolHandler.Stats)

	// Credential routes
	credentials := protected.Group("/credentials")
	credentials.Get("/", credentialHandler.List)
	credentials.Get("/export", credentialHandler.Export)
	credentials.Get("/:id", credentialHandler.Get)
	credentials.Get("/:id/download", credentialHandler.Download)
	credentials.Post("/import", middleware.AdminOnly(), credentialHandler.Import)
	credentials.Delete("/:id", middleware.AdminOnly(), credentialHandler.Delete)
	credentials.Put("/:id/assignment-type", middleware.AdminOnly(), credentialHandler.SetAssignmentType)
	credentials.Put("/assignment-type", middleware.AdminOnly(), credentialHandler.BulkSetAssignmentType)

	// Instance routes (Admin only)
	instances := protected.Group("/instances", middleware.AdminOnly())
	instances.Get("/", instanceHandler.List)
	instances.Post("/", instanceHandler.Create)
	instances.Delete("/:id", instanceHandler.Delete)

	// Settings routes (Admin only)
	settings := protected.Group("/settings", middleware.AdminOnly())
	settings.Get("/wg-defaults", settingsHandler.GetWGDefaults)
	settings.Put("/wg-defaults", settingsHandler.UpdateWGDefaults)
	settings.Get("/filename-pattern", settingsHandler.GetFilenamePattern)
	settings.Put("/filename-pattern", settingsHandler.UpdateFilenamePattern)
	settings.Put("/rate-limit", settingsHandler.UpdateRateLimit)

	// User management routes (Admin only)
	users := protected.Group("/users", middleware.AdminOnly())
	users.Get("/", userHandler.List)
	users.Get("/:id", userHandler.Get)
	users.Post("/", userHandler.Create)
	users.Put("/:id", userHandler.Update)
	users.Delete("/:id", userHandler.Delete)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		app.Shutdown()
	}()

	// Start server
	addr := fmt.Sprintf(":%d", cfg.APIPort)
	log.Printf("Starting WireVault API server on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func seedAdminUser() {
	var count int64
	database.DB.Model(&models.User{}).Where("user_type = ?", models.UserTypeAdmin).Count(&count)

	if count == 0 {
		log.Println("Creating default admin user...")

		hashedPassword, _ := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)

		admin := models.User{
			Username:            "admin",
			Password:            string(hashedPassword),
			Email:               "admin@wirevault.local",
			FullName:            "System Administrator",
			UserType:            models.UserTypeAdmin,
			ForcePasswordChange: true,
			IsActive:            true,
		}

		if err := database.DB.Create(&admin).Error; err != nil {
			log.Printf("Failed to create admin user: %v", err)
		} else {
			log.Println("Admin user created successfully (username: admin, password: admin123)")
		}
	}
}
