package db

import (
	"context"

	"gorm.io/gorm"

	"visiond/internal/models"
)

// Migrate performs schema migrations for the persistent models.
func Migrate(ctx context.Context, database *gorm.DB) error {
	return database.WithContext(ctx).AutoMigrate(
		&models.Role{},
		&models.User{},
		&models.UserSession{},
		&models.AuditLog{},
		&models.Dataset{},
		&models.Model{},
		&models.Inference{},
		&models.Scene{},
	)
}
