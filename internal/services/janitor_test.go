package services

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jazanet/backend/internal/config"
	"github.com/jazanet/backend/internal/models"
	"github.com/jazanet/backend/internal/radius"
)

func newTestJanitor(t *testing.T) *SessionJanitor {
	t.Helper()
	cfg := &config.Config{StaleSessionMinutes: 30}
	return NewSessionJanitor(cfg, zerolog.Nop())
}

func TestSessionJanitor_SweepClosesStaleSessions(t *testing.T) {
	db := swapDB(t)
	j := newTestJanitor(t)

	now := time.Now().UTC()
	old := now.Add(-2 * time.Hour)
	doneStop := now.Add(-3 * time.Hour)

	require.NoError(t, db.Create(&models.Session{
		AcctSessionID: "stale", TenantID: 1, NasID: 1, Username: "ghost",
		StartTime: old,
	}).Error)
	require.NoError(t, db.Create(&models.Session{
		AcctSessionID: "fresh", TenantID: 1, NasID: 1, Username: "connected",
		StartTime: old,
	}).Error)
	require.NoError(t, db.Create(&models.Session{
		AcctSessionID: "young", TenantID: 1, NasID: 1, Username: "newcomer",
		StartTime: now.Add(-5 * time.Minute),
	}).Error)
	require.NoError(t, db.Create(&models.Session{
		AcctSessionID: "done", TenantID: 1, NasID: 1, Username: "gone",
		StartTime: doneStop.Add(-time.Hour), StopTime: &doneStop,
		TerminateCause: radius.CauseUserRequest,
	}).Error)

	// only "stale" has both an old start and an old last update;
	// "fresh" kept its updated_at warm through interim updates
	err := db.Model(&models.Session{}).
		Where("acct_session_id = ?", "stale").
		UpdateColumn("updated_at", old).Error
	require.NoError(t, err)

	j.sweep()

	var stale models.Session
	require.NoError(t, db.Where("acct_session_id = ?", "stale").First(&stale).Error)
	require.NotNil(t, stale.StopTime)
	assert.Equal(t, radius.CauseStaleSession, stale.TerminateCause)
	assert.WithinDuration(t, now, *stale.StopTime, 5*time.Second)

	var fresh models.Session
	require.NoError(t, db.Where("acct_session_id = ?", "fresh").First(&fresh).Error)
	assert.Nil(t, fresh.StopTime)

	var young models.Session
	require.NoError(t, db.Where("acct_session_id = ?", "young").First(&young).Error)
	assert.Nil(t, young.StopTime)

	var done models.Session
	require.NoError(t, db.Where("acct_session_id = ?", "done").First(&done).Error)
	assert.Equal(t, radius.CauseUserRequest, done.TerminateCause)
	require.NotNil(t, done.StopTime)
	assert.Equal(t, doneStop.Unix(), done.StopTime.Unix())
}

func TestSessionJanitor_SweepClearsOnlineFlags(t *testing.T) {
	db := swapDB(t)
	j := newTestJanitor(t)

	now := time.Now().UTC()
	old := now.Add(-2 * time.Hour)
	justNow := now.Add(-time.Minute)

	subs := []models.Subscriber{
		{TenantID: 1, Username: "ghost", Password: "x", IsOnline: true, LastSeenAt: &old},
		{TenantID: 1, Username: "connected", Password: "x", IsOnline: true, LastSeenAt: &old},
		{TenantID: 1, Username: "recent", Password: "x", IsOnline: true, LastSeenAt: &justNow},
		// same username as tenant 1's "connected" but no session of
		// its own; the tenant correlation must not let it ride along
		{TenantID: 2, Username: "connected", Password: "x", IsOnline: true, LastSeenAt: &old},
	}
	for i := range subs {
		require.NoError(t, db.Create(&subs[i]).Error)
	}

	require.NoError(t, db.Create(&models.Session{
		AcctSessionID: "s1", TenantID: 1, NasID: 1, Username: "connected",
		StartTime: old,
	}).Error)

	j.sweep()

	online := func(tenantID uint, username string) bool {
		var sub models.Subscriber
		require.NoError(t, db.Where("tenant_id = ? AND username = ?", tenantID, username).First(&sub).Error)
		return sub.IsOnline
	}

	assert.False(t, online(1, "ghost"))
	assert.True(t, online(1, "connected"))
	assert.True(t, online(1, "recent"))
	assert.False(t, online(2, "connected"))
}

func TestSessionJanitor_StartStop(t *testing.T) {
	swapDB(t)

	j := NewSessionJanitor(&config.Config{}, zerolog.Nop())
	assert.Equal(t, 30*time.Minute, j.threshold) // default when unset

	j.Start()
	j.Start()

	done := make(chan struct{})
	go func() {
		j.Stop()
		j.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
