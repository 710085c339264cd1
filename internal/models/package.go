package models

import (
	"time"

	"gorm.io/gorm"
)

// Package is a service plan. Rates are megabits per second; the data
// cap is bytes and may exceed 32 bits, which is why it travels to the
// NAS split across a total-limit and a gigawords attribute.
type Package struct {
	ID          uint   `gorm:"column:id;primaryKey" json:"id"`
	TenantID    uint   `gorm:"column:tenant_id;not null;index;uniqueIndex:idx_pkg_tenant_name" json:"tenant_id"`
	Tenant      Tenant `gorm:"foreignKey:TenantID" json:"-"`
	Name        string `gorm:"column:name;size:100;not null;uniqueIndex:idx_pkg_tenant_name" json:"name"`
	Description string `gorm:"column:description;size:255" json:"description"`

	// Rates (Mbps)
	DownloadMbps      int `gorm:"column:download_mbps;not null" json:"download_mbps"`
	UploadMbps        int `gorm:"column:upload_mbps;not null" json:"upload_mbps"`
	BurstDownloadMbps int `gorm:"column:burst_download_mbps;default:0" json:"burst_download_mbps"`
	BurstUploadMbps   int `gorm:"column:burst_upload_mbps;default:0" json:"burst_upload_mbps"`

	// Limits. Zero means unlimited.
	SessionMinutes int   `gorm:"column:session_minutes;default:0" json:"session_minutes"`
	DataCapBytes   int64 `gorm:"column:data_cap_bytes;default:0" json:"data_cap_bytes"`

	Price float64 `gorm:"column:price;type:decimal(15,2);default:0" json:"price"`

	// Timestamps
	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (Package) TableName() string {
	return "packages"
}

// HasBurst reports whether both burst rates are configured
func (p *Package) HasBurst() bool {
	return p.BurstDownloadMbps > 0 && p.BurstUploadMbps > 0
}
