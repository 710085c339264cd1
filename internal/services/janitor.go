package services

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jazanet/backend/internal/config"
	"github.com/jazanet/backend/internal/database"
	"github.com/jazanet/backend/internal/models"
	"github.com/jazanet/backend/internal/radius"
)

const janitorInterval = 5 * time.Minute

// SessionJanitor closes live sessions that stopped sending interim
// updates. A router that loses power sends neither a Stop nor an
// Accounting-On until it comes back; without the janitor those rows
// stay open forever and their subscribers show online for sessions
// that died hours ago.
type SessionJanitor struct {
	threshold time.Duration
	log       zerolog.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

func NewSessionJanitor(cfg *config.Config, log zerolog.Logger) *SessionJanitor {
	minutes := cfg.StaleSessionMinutes
	if minutes <= 0 {
		minutes = 30
	}
	return &SessionJanitor{
		threshold: time.Duration(minutes) * time.Minute,
		log:       log.With().Str("component", "janitor").Logger(),
		stopChan:  make(chan struct{}),
	}
}

func (j *SessionJanitor) Start() {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return
	}
	j.running = true
	j.mu.Unlock()

	j.wg.Add(1)
	go j.run()

	j.log.Info().
		Dur("threshold", j.threshold).
		Msg("session janitor started")
}

func (j *SessionJanitor) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	j.running = false
	j.mu.Unlock()

	close(j.stopChan)
	j.wg.Wait()
	j.log.Info().Msg("session janitor stopped")
}

func (j *SessionJanitor) run() {
	defer j.wg.Done()

	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stopChan:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

// sweep closes sessions whose last counter update predates the
// threshold, then flips subscribers left without a live session to
// offline. Interim updates bump a session row's updated_at, so a
// healthy session never goes quiet for longer than the NAS interim
// interval.
func (j *SessionJanitor) sweep() {
	if database.DB == nil {
		return
	}

	now := time.Now().UTC()
	cutoff := now.Add(-j.threshold)

	res := database.DB.
		Model(&models.Session{}).
		Where("stop_time IS NULL AND start_time < ? AND updated_at < ?", cutoff, cutoff).
		Updates(map[string]interface{}{
			"stop_time":       now,
			"terminate_cause": radius.CauseStaleSession,
		})
	if res.Error != nil {
		j.log.Error().Err(res.Error).Msg("stale session close failed")
		return
	}
	if res.RowsAffected > 0 {
		j.log.Info().
			Int64("closed", res.RowsAffected).
			Time("cutoff", cutoff).
			Msg("stale sessions closed")
	}

	res = database.DB.
		Model(&models.Subscriber{}).
		Where("is_online = ? AND (last_seen_at IS NULL OR last_seen_at < ?)", true, cutoff).
		Where("NOT EXISTS (SELECT 1 FROM sessions WHERE sessions.tenant_id = subscribers.tenant_id" +
			" AND sessions.username = subscribers.username AND sessions.stop_time IS NULL)").
		Update("is_online", false)
	if res.Error != nil {
		j.log.Error().Err(res.Error).Msg("online flag sync failed")
		return
	}
	if res.RowsAffected > 0 {
		j.log.Info().
			Int64("subscribers", res.RowsAffected).
			Msg("online flags cleared")
	}
}
