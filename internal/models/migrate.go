package models

import (
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Migrate creates or updates every table the backend uses
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&Tenant{},
		&Nas{},
		&Package{},
		&Subscriber{},
		&Session{},
		&User{},
		&AuditLog{},
	)
	if err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

// SeedDefaults creates a default tenant and platform admin on a fresh
// database. Safe to call on every startup; existing rows short-circuit.
func SeedDefaults(db *gorm.DB, adminPassword string) error {
	var tenants int64
	if err := db.Model(&Tenant{}).Count(&tenants).Error; err != nil {
		return fmt.Errorf("count tenants: %w", err)
	}
	if tenants == 0 {
		if err := db.Create(&Tenant{Name: "default", IsActive: true}).Error; err != nil {
			return fmt.Errorf("seed tenant: %w", err)
		}
	}

	var users int64
	if err := db.Model(&User{}).Count(&users).Error; err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if users == 0 {
		if adminPassword == "" {
			adminPassword = "admin"
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash admin password: %w", err)
		}
		admin := &User{
			Username:  "admin",
			Password:  string(hash),
			FullName:  "Platform Administrator",
			Role:      UserRoleAdmin,
			IsActive:  true,
			CreatedAt: time.Now(),
		}
		if err := db.Create(admin).Error; err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
	}
	return nil
}
