package services

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rs/zerolog"

	"github.com/jazanet/backend/internal/config"
	"github.com/jazanet/backend/internal/database"
	"github.com/jazanet/backend/internal/models"
)

// Archiver exports finished sessions to daily CSV files and prunes
// database rows past the retention window. The CSV files are the
// long-term record; only database rows are ever deleted. With an FTP
// host configured each day's file is also shipped off the box.
type Archiver struct {
	cfg *config.Config
	log zerolog.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

func NewArchiver(cfg *config.Config, log zerolog.Logger) *Archiver {
	return &Archiver{
		cfg:      cfg,
		log:      log.With().Str("component", "archiver").Logger(),
		stopChan: make(chan struct{}),
	}
}

func (a *Archiver) Start() {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return
	}
	a.running = true
	a.mu.Unlock()

	a.wg.Add(1)
	go a.run()

	a.log.Info().
		Int("retention_days", a.cfg.ArchiveRetentionDays).
		Str("dir", a.cfg.ArchiveDir).
		Msg("archiver started")
}

func (a *Archiver) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	a.mu.Unlock()

	close(a.stopChan)
	a.wg.Wait()
	a.log.Info().Msg("archiver stopped")
}

func (a *Archiver) run() {
	defer a.wg.Done()

	// First run at 3 AM so the export never competes with peak load
	a.waitForFirstRun()

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopChan:
			return
		case <-ticker.C:
			a.archive()
		}
	}
}

func (a *Archiver) waitForFirstRun() {
	now := time.Now()
	next := time.Date(now.Year(), now.Month(), now.Day(), 3, 0, 0, 0, now.Location())
	if now.After(next) {
		next = next.Add(24 * time.Hour)
	}

	select {
	case <-time.After(time.Until(next)):
		a.archive()
	case <-a.stopChan:
	}
}

func (a *Archiver) archive() {
	if database.DB == nil {
		return
	}

	day := time.Now().AddDate(0, 0, -1)
	path, rows, err := a.ExportDay(day)
	if err != nil {
		a.log.Error().Err(err).Msg("daily export failed")
	} else if rows > 0 {
		a.log.Info().Str("file", path).Int("sessions", rows).Msg("daily export written")
		if a.cfg.ArchiveFTPHost != "" {
			if err := a.upload(path); err != nil {
				a.log.Error().Err(err).Str("file", path).Msg("ftp upload failed")
			}
		}
	}

	a.prune()
}

// ExportDay writes every session that stopped on the given day to a
// CSV file named after the day. Re-running for a day that already has
// a file is a no-op, which keeps the daily schedule idempotent across
// restarts.
func (a *Archiver) ExportDay(day time.Time) (string, int, error) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	if err := os.MkdirAll(a.cfg.ArchiveDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create archive dir: %w", err)
	}

	path := filepath.Join(a.cfg.ArchiveDir, fmt.Sprintf("sessions-%s.csv", from.Format("2006-01-02")))
	if _, err := os.Stat(path); err == nil {
		return path, 0, nil
	}

	var sessions []models.Session
	if err := database.DB.
		Where("stop_time >= ? AND stop_time < ?", from, to).
		Order("stop_time").
		Find(&sessions).Error; err != nil {
		return "", 0, fmt.Errorf("load sessions: %w", err)
	}
	if len(sessions) == 0 {
		return path, 0, nil
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return "", 0, fmt.Errorf("create export file: %w", err)
	}

	w := csv.NewWriter(f)
	header := []string{
		"acct_session_id", "tenant_id", "username", "nas_id",
		"framed_ip", "calling_station_id",
		"start_time", "stop_time", "session_time",
		"input_octets", "output_octets", "terminate_cause",
	}
	if err := w.Write(header); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", 0, err
	}

	for _, s := range sessions {
		stop := ""
		if s.StopTime != nil {
			stop = s.StopTime.UTC().Format(time.RFC3339)
		}
		rec := []string{
			s.AcctSessionID,
			strconv.FormatUint(uint64(s.TenantID), 10),
			s.Username,
			strconv.FormatUint(uint64(s.NasID), 10),
			s.FramedIP,
			s.CallingStationID,
			s.StartTime.UTC().Format(time.RFC3339),
			stop,
			strconv.Itoa(s.SessionTime),
			strconv.FormatInt(s.InputOctets, 10),
			strconv.FormatInt(s.OutputOctets, 10),
			s.TerminateCause,
		}
		if err := w.Write(rec); err != nil {
			f.Close()
			os.Remove(tmp)
			return "", 0, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", 0, err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", 0, err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", 0, err
	}

	return path, len(sessions), nil
}

// prune deletes finished sessions past the retention window. Live
// sessions are never touched no matter how old.
func (a *Archiver) prune() {
	cutoff := time.Now().AddDate(0, 0, -a.cfg.ArchiveRetentionDays)

	res := database.DB.
		Where("stop_time IS NOT NULL AND stop_time < ?", cutoff).
		Delete(&models.Session{})
	if res.Error != nil {
		a.log.Error().Err(res.Error).Msg("session prune failed")
		return
	}
	if res.RowsAffected > 0 {
		a.log.Info().
			Int64("deleted", res.RowsAffected).
			Time("cutoff", cutoff).
			Msg("old sessions pruned")
	}
}

func (a *Archiver) upload(localPath string) error {
	addr := fmt.Sprintf("%s:%d", a.cfg.ArchiveFTPHost, a.cfg.ArchiveFTPPort)
	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(30*time.Second))
	if err != nil {
		return fmt.Errorf("ftp connect: %w", err)
	}
	defer conn.Quit()

	if err := conn.Login(a.cfg.ArchiveFTPUser, a.cfg.ArchiveFTPPassword); err != nil {
		return fmt.Errorf("ftp login: %w", err)
	}

	if p := a.cfg.ArchiveFTPPath; p != "" && p != "/" {
		if err := conn.ChangeDir(p); err != nil {
			conn.MakeDir(p)
			if err := conn.ChangeDir(p); err != nil {
				return fmt.Errorf("ftp chdir %s: %w", p, err)
			}
		}
	}

	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := conn.Stor(filepath.Base(localPath), f); err != nil {
		return fmt.Errorf("ftp store: %w", err)
	}
	return nil
}
