package models

import (
	"time"

	"gorm.io/gorm"
)

// Tenant is the partition every subscriber, NAS, package and session
// row belongs to. RADIUS traffic resolves its tenant through the NAS
// that sent the packet; nothing on the wire carries a tenant id.
type Tenant struct {
	ID        uint           `gorm:"column:id;primaryKey" json:"id"`
	Name      string         `gorm:"column:name;size:100;not null;uniqueIndex" json:"name"`
	IsActive  bool           `gorm:"column:is_active;default:true" json:"is_active"`
	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (Tenant) TableName() string {
	return "tenants"
}
