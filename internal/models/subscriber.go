package models

import (
	"time"

	"gorm.io/gorm"
)

// SubscriberStatus represents the billing status of a subscriber
type SubscriberStatus string

const (
	SubscriberStatusActive    SubscriberStatus = "ACTIVE"
	SubscriberStatusSuspended SubscriberStatus = "SUSPENDED"
	SubscriberStatusDisabled  SubscriberStatus = "DISABLED"
	SubscriberStatusExpired   SubscriberStatus = "EXPIRED"
)

// ConnectionType represents how the subscriber attaches to the network
type ConnectionType string

const (
	ConnectionPPPoE   ConnectionType = "PPPOE"
	ConnectionHotspot ConnectionType = "HOTSPOT"
	ConnectionDHCP    ConnectionType = "DHCP"
	ConnectionStatic  ConnectionType = "STATIC"
)

// Subscriber represents a PPPoE/Hotspot subscriber. The password is
// stored cleartext: CHAP and PAP verification both need the original
// credential on the server side.
type Subscriber struct {
	ID       uint   `gorm:"column:id;primaryKey" json:"id"`
	TenantID uint   `gorm:"column:tenant_id;not null;index;uniqueIndex:idx_sub_tenant_username" json:"tenant_id"`
	Tenant   Tenant `gorm:"foreignKey:TenantID" json:"-"`
	Username string `gorm:"column:username;size:100;not null;uniqueIndex:idx_sub_tenant_username" json:"username"`
	Password string `gorm:"column:password;size:255;not null" json:"-"`
	FullName string `gorm:"column:full_name;size:255" json:"full_name"`
	Email    string `gorm:"column:email;size:255" json:"email"`
	Phone    string `gorm:"column:phone;size:50" json:"phone"`

	// Service
	ConnectionType ConnectionType   `gorm:"column:connection_type;size:20;default:PPPOE" json:"connection_type"`
	Status         SubscriberStatus `gorm:"column:status;size:20;default:ACTIVE" json:"status"`
	ExpiresAt      time.Time        `gorm:"column:expires_at" json:"expires_at"`
	PackageID      *uint            `gorm:"column:package_id" json:"package_id"`
	Package        *Package         `gorm:"foreignKey:PackageID" json:"package,omitempty"`
	NasID          *uint            `gorm:"column:nas_id" json:"nas_id"`
	Nas            *Nas             `gorm:"foreignKey:NasID" json:"nas,omitempty"`

	// Hotspot voucher lock. When set, only the device with this MAC
	// may authenticate.
	LockedMAC string `gorm:"column:locked_mac;size:50" json:"locked_mac"`

	// Last observed network state, written by the RADIUS path
	LastSeenIP  string     `gorm:"column:last_seen_ip;size:50" json:"last_seen_ip"`
	LastSeenMAC string     `gorm:"column:last_seen_mac;size:50;index" json:"last_seen_mac"`
	LastSeenAt  *time.Time `gorm:"column:last_seen_at" json:"last_seen_at"`
	IsOnline    bool       `gorm:"column:is_online;default:false;index" json:"is_online"`

	// Timestamps
	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (Subscriber) TableName() string {
	return "subscribers"
}

// IsExpired returns true if the subscription has lapsed. A past expiry
// wins over whatever status is stored.
func (s *Subscriber) IsExpired() bool {
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

// EffectiveStatus folds the expiry instant into the stored status
func (s *Subscriber) EffectiveStatus() SubscriberStatus {
	if s.IsExpired() {
		return SubscriberStatusExpired
	}
	return s.Status
}

// DaysRemaining returns the number of days left in the subscription
func (s *Subscriber) DaysRemaining() int {
	if s.IsExpired() {
		return 0
	}
	return int(time.Until(s.ExpiresAt).Hours() / 24)
}
