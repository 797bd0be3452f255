package db

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"visiond/internal/models"
	"visiond/internal/security"
)

// SeedOptions carries the accounts baseline data that Seed ensures exist.
type SeedOptions struct {
	SystemUserEmail  string
	SuperAdminEmail  string
	SuperAdminPasswd string
}

// Seed inserts baseline lookup data: the role rows, the system identity that
// owns auto-synced datasets, and optionally a first superadmin account.
// Inserts use ON CONFLICT DO NOTHING so re-running is harmless.
func Seed(ctx context.Context, database *gorm.DB, opts SeedOptions) error {
	tx := database.WithContext(ctx)

	for _, roleName := range []models.RoleName{models.RoleUser, models.RoleAdmin, models.RoleSuperAdmin} {
		role := models.Role{Name: roleName}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&role).Error; err != nil {
			return fmt.Errorf("seed role %s: %w", roleName, err)
		}
	}

	if opts.SystemUserEmail != "" {
		if err := ensureUser(tx, opts.SystemUserEmail, "System", "", models.RoleAdmin, ""); err != nil {
			return fmt.Errorf("seed system user: %w", err)
		}
	}

	if opts.SuperAdminEmail != "" && opts.SuperAdminPasswd != "" {
		if err := ensureUser(tx, opts.SuperAdminEmail, "Super", "Admin", models.RoleSuperAdmin, opts.SuperAdminPasswd); err != nil {
			return fmt.Errorf("seed superadmin: %w", err)
		}
	}

	return nil
}

// SystemUser looks up the well-known identity that owns auto-created
// dataset records. Callers must handle its absence explicitly instead of
// assuming a hardcoded id.
func SystemUser(ctx context.Context, database *gorm.DB, email string) (*models.User, error) {
	var user models.User
	err := database.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("system user %q not seeded", email)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func ensureUser(tx *gorm.DB, email, name, lastName string, roleName models.RoleName, password string) error {
	var existing models.User
	err := tx.Where("email = ?", email).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	var role models.Role
	if err := tx.Where("name = ?", roleName).First(&role).Error; err != nil {
		return err
	}

	if password == "" {
		// Accounts without a password (the system identity) get an
		// unguessable hash so they can never be logged into.
		password = security.RandomSecret()
	}
	hash, err := security.HashPassword(password)
	if err != nil {
		return err
	}

	return tx.Create(&models.User{
		Name:         name,
		LastName:     lastName,
		Email:        email,
		PasswordHash: hash,
		RoleID:       role.ID,
	}).Error
}
