package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/byefat/backend/internal/models"
)

// Models lists every table owned by the service, in creation order.
func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&models.UserProfile{},
		&models.DailyLog{},
		&models.FoodLogItem{},
		&models.ActivityLogItem{},
		&models.WeightEntry{},
		&models.Product{},
	}
}

// Migrate brings the schema up to date for both postgres and sqlite.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
