package models

import (
	"time"
)

// AuditLog records one mutating admin action. Written by the audit
// middleware; never updated or deleted.
type AuditLog struct {
	ID         uint      `gorm:"column:id;primaryKey" json:"id"`
	TenantID   *uint     `gorm:"column:tenant_id;index" json:"tenant_id"`
	UserID     uint      `gorm:"column:user_id;index" json:"user_id"`
	Username   string    `gorm:"column:username;size:100" json:"username"`
	Action     string    `gorm:"column:action;size:50;not null" json:"action"` // create/update/delete/disconnect/login
	Resource   string    `gorm:"column:resource;size:50" json:"resource"`
	ResourceID string    `gorm:"column:resource_id;size:50" json:"resource_id"`
	Details    string    `gorm:"column:details;type:text" json:"details"`
	IPAddress  string    `gorm:"column:ip_address;size:50" json:"ip_address"`
	CreatedAt  time.Time `gorm:"column:created_at;index" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}
