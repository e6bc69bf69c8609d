package middleware

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wirevault/backend/internal/database"
	"github.com/wirevault/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))

	database.DB = db
	t.Cleanup(func() { database.DB = nil })
}

func TestGetRateLimitSetting(t *testing.T) {
	setupTestDB(t)

	// Unset falls back to the default
	assert.Equal(t, defaultRateLimit, getRateLimitSetting())

	require.NoError(t, database.DB.Create(&models.SystemPreference{
		Key:       models.SettingAPIRateLimit,
		Value:     "250",
		ValueType: "int",
	}).Error)
	assert.Equal(t, 250, getRateLimitSetting())
}

func TestGetRateLimitSettingIgnoresGarbage(t *testing.T) {
	setupTestDB(t)

	require.NoError(t, database.DB.Create(&models.SystemPreference{
		Key:       models.SettingAPIRateLimit,
		Value:     "not-a-number",
		ValueType: "int",
	}).Error)
	assert.Equal(t, defaultRateLimit, getRateLimitSetting())
}
