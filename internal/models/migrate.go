package models

import (
	"log"

	"gorm.io/gorm"
)

// AutoMigrate creates or updates the schema for every WireVault table
func AutoMigrate(db *gorm.DB) error {
	log.Println("Running database migrations...")

	if err := db.AutoMigrate(
		&User{},
		&Instance{},
		&Credential{},
		&SystemPreference{},
	); err != nil {
		return err
	}

	log.Println("Database migrations completed successfully")
	return nil
}
