// Package store implements the persistence surface of the RADIUS path
// on GORM. Every query that touches subscriber, session or NAS rows is
// scoped to a tenant; the tenant always comes from the caller, never
// from anything on the wire.
package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jazanet/backend/internal/models"
	"github.com/jazanet/backend/internal/radius"
)

// Gorm satisfies radius.Store
type Gorm struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return radius.ErrNotFound
	}
	return err
}

// FindNasByAddress matches a datagram source against the primary and
// VPN addresses. This is the one deliberately tenant-unscoped lookup:
// the matched NAS is what tells us the tenant.
func (g *Gorm) FindNasByAddress(ctx context.Context, addr string) (*models.Nas, error) {
	var nas models.Nas
	err := g.db.WithContext(ctx).
		Where("ip_address = ? OR vpn_ip_address = ?", addr, addr).
		First(&nas).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &nas, nil
}

func (g *Gorm) FindNasByID(ctx context.Context, tenantID, nasID uint) (*models.Nas, error) {
	var nas models.Nas
	err := g.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, nasID).
		First(&nas).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &nas, nil
}

func (g *Gorm) FindSubscriberByUsername(ctx context.Context, tenantID uint, username string) (*models.Subscriber, error) {
	var sub models.Subscriber
	err := g.db.WithContext(ctx).
		Preload("Package").
		Where("tenant_id = ? AND username = ?", tenantID, username).
		First(&sub).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

func (g *Gorm) TouchSubscriberSeen(ctx context.Context, subscriberID uint, ip, mac string, online bool) error {
	updates := map[string]interface{}{
		"last_seen_at": time.Now().UTC(),
		"is_online":    online,
	}
	if ip != "" {
		updates["last_seen_ip"] = ip
	}
	if mac != "" {
		updates["last_seen_mac"] = mac
	}
	return g.db.WithContext(ctx).
		Model(&models.Subscriber{}).
		Where("id = ?", subscriberID).
		Updates(updates).Error
}

// UpsertSessionStart inserts the session row, or, when the NAS reuses
// a session id after a reconnect, revives the existing row: stop time
// cleared, counters reset, start time moved. The unique index on
// acct_session_id makes the race between two replayed Starts safe.
func (g *Gorm) UpsertSessionStart(ctx context.Context, start radius.SessionStart) error {
	sess := models.Session{
		AcctSessionID:    start.AcctSessionID,
		TenantID:         start.TenantID,
		SubscriberID:     start.SubscriberID,
		NasID:            start.NasID,
		Username:         start.Username,
		FramedIP:         start.FramedIP,
		CallingStationID: start.CallingStationID,
		StartTime:        start.StartTime,
	}
	return g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "acct_session_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"tenant_id":          start.TenantID,
			"subscriber_id":      start.SubscriberID,
			"nas_id":             start.NasID,
			"username":           start.Username,
			"framed_ip":          start.FramedIP,
			"calling_station_id": start.CallingStationID,
			"start_time":         start.StartTime,
			"stop_time":          nil,
			"session_time":       0,
			"input_octets":       0,
			"output_octets":      0,
			"terminate_cause":    "",
			"updated_at":         time.Now().UTC(),
		}),
	}).Create(&sess).Error
}

// UpdateSessionInterim touches counters only while the row is live.
// The stop_time IS NULL guard is what keeps a late interim from
// resurrecting a closed session.
func (g *Gorm) UpdateSessionInterim(ctx context.Context, interim radius.SessionInterim) (bool, error) {
	updates := map[string]interface{}{
		"input_octets":  interim.InputOctets,
		"output_octets": interim.OutputOctets,
		"session_time":  interim.SessionTime,
	}
	if interim.FramedIP != "" {
		updates["framed_ip"] = interim.FramedIP
	}
	res := g.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("acct_session_id = ? AND stop_time IS NULL", interim.AcctSessionID).
		Updates(updates)
	return res.RowsAffected > 0, res.Error
}

// CloseSession finalises stop time, counters and terminate cause in
// one write. A retransmitted Stop matches no live row and is a no-op.
func (g *Gorm) CloseSession(ctx context.Context, stop radius.SessionStop) error {
	return g.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("acct_session_id = ? AND stop_time IS NULL", stop.AcctSessionID).
		Updates(map[string]interface{}{
			"stop_time":       stop.StopTime,
			"input_octets":    stop.InputOctets,
			"output_octets":   stop.OutputOctets,
			"session_time":    stop.SessionTime,
			"terminate_cause": stop.TerminateCause,
		}).Error
}

func (g *Gorm) CloseAllSessionsForNas(ctx context.Context, tenantID, nasID uint, cause string) (int64, error) {
	res := g.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("tenant_id = ? AND nas_id = ? AND stop_time IS NULL", tenantID, nasID).
		Updates(map[string]interface{}{
			"stop_time":       time.Now().UTC(),
			"terminate_cause": cause,
		})
	return res.RowsAffected, res.Error
}

func (g *Gorm) ActiveSessionsForUsername(ctx context.Context, tenantID uint, username string) ([]models.Session, error) {
	var sessions []models.Session
	err := g.db.WithContext(ctx).
		Where("tenant_id = ? AND username = ? AND stop_time IS NULL", tenantID, username).
		Order("start_time").
		Find(&sessions).Error
	return sessions, err
}

func (g *Gorm) ActiveSessionCount(ctx context.Context) (int64, error) {
	var n int64
	err := g.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("stop_time IS NULL").
		Count(&n).Error
	return n, err
}

func (g *Gorm) TouchNas(ctx context.Context, nasID uint, seen time.Time) error {
	return g.db.WithContext(ctx).
		Model(&models.Nas{}).
		Where("id = ?", nasID).
		Updates(map[string]interface{}{
			"last_seen": seen,
			"status":    models.NasStatusOnline,
		}).Error
}
