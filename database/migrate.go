package database

import (
	"fmt"

	"gorm.io/gorm"

	"mwork_attachments/internal/logger"
	"mwork_attachments/internal/models"
)

// AutoMigrate creates or updates the entities table.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Record{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	logger.Info("auto migrate finished")
	return nil
}
