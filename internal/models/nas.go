package models

import (
	"time"

	"gorm.io/gorm"
)

// NasStatus represents the reachability state of a NAS device
type NasStatus string

const (
	NasStatusOnline  NasStatus = "ONLINE"
	NasStatusOffline NasStatus = "OFFLINE"
	NasStatusPending NasStatus = "PENDING"
)

// Nas represents a NAS/router device (MikroTik PPPoE or Hotspot
// gateway). A NAS is matched against an inbound datagram when the
// source address equals either IPAddress or VpnIPAddress.
type Nas struct {
	ID           uint   `gorm:"column:id;primaryKey" json:"id"`
	TenantID     uint   `gorm:"column:tenant_id;not null;index;uniqueIndex:idx_nas_tenant_ip" json:"tenant_id"`
	Tenant       Tenant `gorm:"foreignKey:TenantID" json:"-"`
	Name         string `gorm:"column:name;size:100;not null" json:"name"`
	IPAddress    string `gorm:"column:ip_address;size:50;not null;uniqueIndex:idx_nas_tenant_ip" json:"ip_address"`
	VpnIPAddress string `gorm:"column:vpn_ip_address;size:50;index" json:"vpn_ip_address"` // optional tunnel address, matched like the primary
	Description  string `gorm:"column:description;size:255" json:"description"`

	// RADIUS
	Secret  string `gorm:"column:secret;size:100;not null" json:"-"` // Hidden from API responses for security
	CoAPort int    `gorm:"column:coa_port;default:3799" json:"coa_port"`

	// Status
	Status   NasStatus  `gorm:"column:status;size:20;default:PENDING" json:"status"`
	LastSeen *time.Time `gorm:"column:last_seen" json:"last_seen"`

	// Timestamps
	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (Nas) TableName() string {
	return "nas_devices"
}

// SecretBytes returns the RADIUS shared secret
func (n *Nas) SecretBytes() []byte {
	return []byte(n.Secret)
}

// MatchesAddress reports whether addr is one of the device's addresses
func (n *Nas) MatchesAddress(addr string) bool {
	return addr != "" && (addr == n.IPAddress || addr == n.VpnIPAddress)
}
