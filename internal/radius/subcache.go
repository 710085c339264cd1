package radius

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jazanet/backend/internal/models"
)

const (
	subscriberCachePrefix = "jazanet:subscriber:"
	subscriberCacheTTL    = 5 * time.Minute
)

// SubscriberInfo is the flattened subscriber view the auth path works
// with. It carries everything an Access-Request decision needs so a
// cache hit never touches the database.
type SubscriberInfo struct {
	ID             uint                    `json:"id"`
	TenantID       uint                    `json:"tenant_id"`
	Username       string                  `json:"username"`
	Password       string                  `json:"password"`
	ConnectionType models.ConnectionType   `json:"connection_type"`
	Status         models.SubscriberStatus `json:"status"`
	ExpiresAt      time.Time               `json:"expires_at"`
	LockedMAC      string                  `json:"locked_mac"`
	HasPackage     bool                    `json:"has_package"`
	DownloadMbps   int                     `json:"download_mbps"`
	UploadMbps     int                     `json:"upload_mbps"`
	BurstDownMbps  int                     `json:"burst_down_mbps"`
	BurstUpMbps    int                     `json:"burst_up_mbps"`
	SessionMinutes int                     `json:"session_minutes"`
	DataCapBytes   int64                   `json:"data_cap_bytes"`
}

// EffectiveStatus mirrors models.Subscriber.EffectiveStatus: a past
// expiry date overrides whatever status the row carries.
func (si *SubscriberInfo) EffectiveStatus() models.SubscriberStatus {
	if !si.ExpiresAt.IsZero() && time.Now().After(si.ExpiresAt) {
		return models.SubscriberStatusExpired
	}
	return si.Status
}

func subscriberInfoFromModel(sub *models.Subscriber) *SubscriberInfo {
	info := &SubscriberInfo{
		ID:             sub.ID,
		TenantID:       sub.TenantID,
		Username:       sub.Username,
		Password:       sub.Password,
		ConnectionType: sub.ConnectionType,
		Status:         sub.Status,
		ExpiresAt:      sub.ExpiresAt,
		LockedMAC:      sub.LockedMAC,
	}
	if sub.Package != nil {
		info.HasPackage = true
		info.DownloadMbps = sub.Package.DownloadMbps
		info.UploadMbps = sub.Package.UploadMbps
		info.BurstDownMbps = sub.Package.BurstDownloadMbps
		info.BurstUpMbps = sub.Package.BurstUploadMbps
		info.SessionMinutes = sub.Package.SessionMinutes
		info.DataCapBytes = sub.Package.DataCapBytes
	}
	return info
}

func subscriberCacheKey(tenantID uint, username string) string {
	return fmt.Sprintf("%s%d:%s", subscriberCachePrefix, tenantID, username)
}

// subscriberCache keeps hot subscribers in Redis so repeated auth
// attempts skip the database. A nil client disables it.
type subscriberCache struct {
	rdb *redis.Client
}

func (c *subscriberCache) get(ctx context.Context, tenantID uint, username string) *SubscriberInfo {
	if c.rdb == nil {
		return nil
	}
	data, err := c.rdb.Get(ctx, subscriberCacheKey(tenantID, username)).Bytes()
	if err != nil {
		return nil
	}
	var info SubscriberInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil
	}
	return &info
}

func (c *subscriberCache) put(ctx context.Context, info *SubscriberInfo) {
	if c.rdb == nil || info == nil {
		return
	}
	data, err := json.Marshal(info)
	if err != nil {
		return
	}
	c.rdb.Set(ctx, subscriberCacheKey(info.TenantID, info.Username), data, subscriberCacheTTL)
}

// InvalidateSubscriberCache drops one subscriber's cached entry.
// Admin handlers call it after any mutation that changes auth
// outcomes (password, status, package, MAC lock).
func InvalidateSubscriberCache(rdb *redis.Client, tenantID uint, username string) {
	if rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rdb.Del(ctx, subscriberCacheKey(tenantID, username))
}

// InvalidateTenantSubscribers drops every cached subscriber of a
// tenant, for bulk operations like package edits.
func InvalidateTenantSubscribers(rdb *redis.Client, tenantID uint) {
	if rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pattern := fmt.Sprintf("%s%d:*", subscriberCachePrefix, tenantID)
	iter := rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		rdb.Del(ctx, iter.Val())
	}
}
