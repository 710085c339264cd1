package radius

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jazanet/backend/internal/models"
)

func TestSubscriberCacheKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "jazanet:subscriber:1:alice", subscriberCacheKey(1, "alice"))
	assert.Equal(t, "jazanet:subscriber:42:x", subscriberCacheKey(42, "x"))
}

func TestSubscriberInfoFromModel(t *testing.T) {
	t.Parallel()

	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	sub := testSubscriber(&models.Package{
		ID:                3,
		DownloadMbps:      50,
		UploadMbps:        25,
		BurstDownloadMbps: 60,
		BurstUploadMbps:   30,
		SessionMinutes:    120,
		DataCapBytes:      1 << 30,
	})
	sub.ExpiresAt = expires
	sub.LockedMAC = "AA:BB:CC:DD:EE:FF"

	info := subscriberInfoFromModel(sub)
	assert.Equal(t, uint(10), info.ID)
	assert.Equal(t, uint(1), info.TenantID)
	assert.Equal(t, "alice", info.Username)
	assert.Equal(t, "pw", info.Password)
	assert.Equal(t, models.ConnectionPPPoE, info.ConnectionType)
	assert.Equal(t, expires, info.ExpiresAt)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", info.LockedMAC)

	require.True(t, info.HasPackage)
	assert.Equal(t, 50, info.DownloadMbps)
	assert.Equal(t, 25, info.UploadMbps)
	assert.Equal(t, 60, info.BurstDownMbps)
	assert.Equal(t, 30, info.BurstUpMbps)
	assert.Equal(t, 120, info.SessionMinutes)
	assert.Equal(t, int64(1<<30), info.DataCapBytes)
}

func TestSubscriberInfoFromModel_NoPackage(t *testing.T) {
	t.Parallel()

	info := subscriberInfoFromModel(testSubscriber(nil))
	assert.False(t, info.HasPackage)
	assert.Zero(t, info.DownloadMbps)
	assert.Zero(t, info.DataCapBytes)
}

func TestSubscriberInfo_EffectiveStatus(t *testing.T) {
	t.Parallel()

	past := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	future := time.Now().Add(24 * time.Hour)

	tests := []struct {
		name      string
		status    models.SubscriberStatus
		expiresAt time.Time
		want      models.SubscriberStatus
	}{
		{"active and current", models.SubscriberStatusActive, future, models.SubscriberStatusActive},
		{"expiry beats active", models.SubscriberStatusActive, past, models.SubscriberStatusExpired},
		{"expiry beats suspended", models.SubscriberStatusSuspended, past, models.SubscriberStatusExpired},
		{"no expiry keeps status", models.SubscriberStatusDisabled, time.Time{}, models.SubscriberStatusDisabled},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			info := &SubscriberInfo{Status: tt.status, ExpiresAt: tt.expiresAt}
			assert.Equal(t, tt.want, info.EffectiveStatus())
		})
	}
}

func TestSubscriberCache_DisabledWithoutRedis(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := &subscriberCache{}

	assert.Nil(t, c.get(ctx, 1, "alice"))
	assert.NotPanics(t, func() { c.put(ctx, subscriberInfoFromModel(testSubscriber(nil))) })
	assert.NotPanics(t, func() { InvalidateSubscriberCache(nil, 1, "alice") })
	assert.NotPanics(t, func() { InvalidateTenantSubscribers(nil, 1) })
}
