package models

import (
	"time"
)

// Session is one accounting session as reported by a NAS. A row with a
// null StopTime is live. AcctSessionID comes from the NAS and is the
// de-duplication key: replayed Starts update the existing row instead
// of inserting a second one.
type Session struct {
	ID            uint        `gorm:"column:id;primaryKey" json:"id"`
	AcctSessionID string      `gorm:"column:acct_session_id;size:64;not null;uniqueIndex" json:"acct_session_id"`
	TenantID      uint        `gorm:"column:tenant_id;not null;index" json:"tenant_id"`
	SubscriberID  *uint       `gorm:"column:subscriber_id;index" json:"subscriber_id"` // nil for voucher sessions seen before linkage
	Subscriber    *Subscriber `gorm:"foreignKey:SubscriberID" json:"-"`
	NasID         uint        `gorm:"column:nas_id;not null;index" json:"nas_id"`
	Nas           *Nas        `gorm:"foreignKey:NasID" json:"-"`

	Username         string `gorm:"column:username;size:100;index" json:"username"`
	FramedIP         string `gorm:"column:framed_ip;size:50" json:"framed_ip"`
	CallingStationID string `gorm:"column:calling_station_id;size:50" json:"calling_station_id"`

	StartTime   time.Time  `gorm:"column:start_time" json:"start_time"`
	StopTime    *time.Time `gorm:"column:stop_time;index" json:"stop_time"`
	SessionTime int        `gorm:"column:session_time;default:0" json:"session_time"` // seconds

	// 64-bit counters reconstructed from the 32-bit octets attributes
	// plus their gigawords companions.
	InputOctets  int64 `gorm:"column:input_octets;default:0" json:"input_octets"`
	OutputOctets int64 `gorm:"column:output_octets;default:0" json:"output_octets"`

	TerminateCause string `gorm:"column:terminate_cause;size:32" json:"terminate_cause"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Session) TableName() string {
	return "sessions"
}

// IsActive reports whether the session has not been stopped yet
func (s *Session) IsActive() bool {
	return s.StopTime == nil
}

// TotalOctets returns the combined traffic of both directions
func (s *Session) TotalOctets() int64 {
	return s.InputOctets + s.OutputOctets
}
