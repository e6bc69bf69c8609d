package services

import (
	"log"

	"github.com/wirevault/backend/internal/database"
	"github.com/wirevault/backend/internal/models"
	"github.com/wirevault/backend/internal/wgconfig"
	"gorm.io/gorm"
)

// SettingsService reads and writes system preferences, including the
// server-wide WireGuard defaults consumed at config generation time.
type SettingsService struct {
	db *gorm.DB
}

func NewSettingsService(db *gorm.DB) *SettingsService {
	return &SettingsService{db: db}
}

// Get returns a preference value, or the default when unset
func (s *SettingsService) Get(key, defaultValue string) string {
	var pref models.SystemPreference
	if err := s.db.Where("key = ?", key).First(&pref).Error; err != nil {
		return defaultValue
	}
	if pref.Value == "" {
		return defaultValue
	}
	return pref.Value
}

// Set upserts a preference value and invalidates the settings cache
func (s *SettingsService) Set(key, value, valueType string) error {
	pref := models.SystemPreference{Key: key, Value: value, ValueType: valueType}
	err := s.db.Where("key = ?", key).
		Assign(map[string]interface{}{"value": value, "value_type": valueType}).
		FirstOrCreate(&pref).Error
	if err != nil {
		return err
	}
	if database.Redis != nil {
		database.InvalidateSettingsCache()
	}
	return nil
}

// WGDefaults fetches the server-wide WireGuard defaults once per call
// site, through the Redis cache when available
func (s *SettingsService) WGDefaults() *wgconfig.ServerDefaults {
	if database.Redis != nil {
		var cached wgconfig.ServerDefaults
		if err := database.CacheGet(database.CacheKeyWGDefaults, &cached); err == nil {
			return &cached
		}
	}

	defaults := &wgconfig.ServerDefaults{
		PublicKey:  s.Get(models.SettingWGServerPublicKey, ""),
		DNSServers: s.Get(models.SettingWGDNSServers, ""),
		AllowedIPs: s.Get(models.SettingWGAllowedIPs, ""),
		MTU:        s.Get(models.SettingWGMTU, ""),
	}

	if database.Redis != nil {
		if err := database.CacheSet(database.CacheKeyWGDefaults, defaults, database.CacheTTLWGDefaults); err != nil {
			log.Printf("SettingsService: Failed to cache WireGuard defaults: %v", err)
		}
	}
	return defaults
}

// FilenamePattern returns the configured export filename pattern
func (s *SettingsService) FilenamePattern() string {
	return s.Get(models.SettingFilenamePattern, wgconfig.DefaultFilenamePattern)
}

// TwoFAIssuer returns the issuer label shown in authenticator apps
func (s *SettingsService) TwoFAIssuer() string {
	return s.Get(models.SettingTwoFAIssuer, "WireVault")
}
