package models

import (
	"time"

	"gorm.io/gorm"
)

// UserRole represents the privilege level of an admin account
type UserRole string

const (
	UserRoleAdmin    UserRole = "admin"    // platform operator, tenant-wild when TenantID is nil
	UserRoleOperator UserRole = "operator" // tenant staff
	UserRoleReadonly UserRole = "readonly"
)

// User represents an operator account for the admin API. RADIUS
// subscribers live in Subscriber, not here.
type User struct {
	ID       uint     `gorm:"column:id;primaryKey" json:"id"`
	TenantID *uint    `gorm:"column:tenant_id;index" json:"tenant_id"` // nil = platform admin, sees every tenant
	Tenant   *Tenant  `gorm:"foreignKey:TenantID" json:"-"`
	Username string   `gorm:"column:username;size:100;not null;uniqueIndex" json:"username"`
	Password string   `gorm:"column:password;size:255;not null" json:"-"` // bcrypt hash
	FullName string   `gorm:"column:full_name;size:255" json:"full_name"`
	Email    string   `gorm:"column:email;size:255" json:"email"`
	Role     UserRole `gorm:"column:role;size:20;default:operator" json:"role"`
	IsActive bool     `gorm:"column:is_active;default:true" json:"is_active"`

	// TOTP two-factor
	TwoFactorEnabled bool   `gorm:"column:two_factor_enabled;default:false" json:"two_factor_enabled"`
	TwoFactorSecret  string `gorm:"column:two_factor_secret;size:255" json:"-"`

	LastLoginAt *time.Time `gorm:"column:last_login_at" json:"last_login_at"`

	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (User) TableName() string {
	return "users"
}

// CanSeeTenant reports whether the account may touch rows of tenant id
func (u *User) CanSeeTenant(tenantID uint) bool {
	if u.TenantID == nil {
		return true
	}
	return *u.TenantID == tenantID
}
