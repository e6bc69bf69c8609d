package database

import (
	"crypto/rand"
	"encoding/hex"
	"log"

	"github.com/wirevault/backend/internal/config"
	"github.com/wirevault/backend/internal/models"
)

// EnsureJWTSecret makes the signing secret durable. A secret already
// stored in system_preferences wins so tokens issued before a restart
// stay valid; otherwise the configured (or freshly generated) secret is
// persisted. Returns the secret to sign with.
func EnsureJWTSecret(cfg *config.Config) string {
	if DB == nil {
		log.Println("Warning: Database not connected, JWT secret will not persist")
		return cfg.JWTSecret
	}

	var pref models.SystemPreference
	result := DB.Where("key = ?", models.SettingJWTSecret).First(&pref)

	if result.Error == nil && pref.Value != "" {
		log.Println("JWT secret loaded from database - sessions persist across restarts")
		return pref.Value
	}

	secret := cfg.JWTSecret
	if secret == "" {
		secret = randomSecret(32)
	}

	pref = models.SystemPreference{
		Key:       models.SettingJWTSecret,
		Value:     secret,
		ValueType: "string",
	}
	if err := DB.Create(&pref).Error; err != nil {
		// Another instance may have persisted one first; take theirs
		var existing models.SystemPreference
		if err := DB.Where("key = ?", models.SettingJWTSecret).First(&existing).Error; err == nil && existing.Value != "" {
			return existing.Value
		}
		log.Printf("Warning: Failed to persist JWT secret: %v", err)
		return secret
	}

	log.Println("JWT secret generated and persisted to database")
	return secret
}

func randomSecret(length int) string {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(bytes)
}
