package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/jazanet/backend/internal/config"
	"github.com/jazanet/backend/internal/database"
	"github.com/jazanet/backend/internal/middleware"
	"github.com/jazanet/backend/internal/models"
)

type DashboardHandler struct {
	cfg    *config.Config
	client *http.Client
}

func NewDashboardHandler(cfg *config.Config) *DashboardHandler {
	return &DashboardHandler{
		cfg: cfg,
		client: &http.Client{
			Timeout: 2 * time.Second,
		},
	}
}

type dashboardStats struct {
	Subscribers struct {
		Total    int64 `json:"total"`
		Active   int64 `json:"active"`
		Online   int64 `json:"online"`
		Expired  int64 `json:"expired"`
		Expiring int64 `json:"expiring"`
	} `json:"subscribers"`

	Sessions struct {
		Active     int64 `json:"active"`
		TodayTotal int64 `json:"today_total"`
	} `json:"sessions"`

	Nas struct {
		Total  int64 `json:"total"`
		Online int64 `json:"online"`
	} `json:"nas"`

	// Today's finished traffic in bytes, both directions
	TrafficToday struct {
		Input  int64 `json:"input"`
		Output int64 `json:"output"`
	} `json:"traffic_today"`

	// Live counters from the RADIUS process, absent when it cannot be
	// reached.
	Radius json.RawMessage `json:"radius,omitempty"`
}

func dashboardCacheKey(tid *uint) string {
	if tid == nil {
		return database.CacheKeyDashboard + "all"
	}
	return fmt.Sprintf("%s%d", database.CacheKeyDashboard, *tid)
}

// Stats aggregates the numbers behind the dashboard landing page. The
// result is cached for thirty seconds per tenant; the counts are
// expensive enough and the page polls.
func (h *DashboardHandler) Stats(c *fiber.Ctx) error {
	tid := middleware.CurrentTenantID(c)
	cacheKey := dashboardCacheKey(tid)

	var cached dashboardStats
	if err := database.CacheGet(cacheKey, &cached); err == nil {
		return c.JSON(fiber.Map{
			"success": true,
			"data":    cached,
			"cached":  true,
		})
	}

	var stats dashboardStats
	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	tenantScope(c, database.DB.Model(&models.Subscriber{})).Count(&stats.Subscribers.Total)
	tenantScope(c, database.DB.Model(&models.Subscriber{})).
		Where("status = ?", models.SubscriberStatusActive).Count(&stats.Subscribers.Active)
	tenantScope(c, database.DB.Model(&models.Subscriber{})).
		Where("is_online = ?", true).Count(&stats.Subscribers.Online)
	tenantScope(c, database.DB.Model(&models.Subscriber{})).
		Where("expires_at < ?", now).Count(&stats.Subscribers.Expired)
	tenantScope(c, database.DB.Model(&models.Subscriber{})).
		Where("expires_at BETWEEN ? AND ?", now, now.AddDate(0, 0, 7)).Count(&stats.Subscribers.Expiring)

	tenantScope(c, database.DB.Model(&models.Session{})).
		Where("stop_time IS NULL").Count(&stats.Sessions.Active)
	tenantScope(c, database.DB.Model(&models.Session{})).
		Where("start_time >= ?", midnight).Count(&stats.Sessions.TodayTotal)

	tenantScope(c, database.DB.Model(&models.Nas{})).Count(&stats.Nas.Total)
	tenantScope(c, database.DB.Model(&models.Nas{})).
		Where("status = ?", models.NasStatusOnline).Count(&stats.Nas.Online)

	var traffic struct {
		Input  int64
		Output int64
	}
	tenantScope(c, database.DB.Model(&models.Session{})).
		Select("COALESCE(SUM(input_octets), 0) as input, COALESCE(SUM(output_octets), 0) as output").
		Where("stop_time >= ?", midnight).
		Scan(&traffic)
	stats.TrafficToday.Input = traffic.Input
	stats.TrafficToday.Output = traffic.Output

	stats.Radius = h.radiusSummary()

	database.CacheSet(cacheKey, stats, database.CacheTTLDashboard)

	return c.JSON(fiber.Map{
		"success": true,
		"data":    stats,
	})
}

// radiusSummary fetches live counters from the RADIUS process. Best
// effort: a dead or unconfigured endpoint just leaves the field empty.
func (h *DashboardHandler) radiusSummary() json.RawMessage {
	if h.cfg.RadiusStatusURL == "" {
		return nil
	}

	resp, err := h.client.Get(h.cfg.RadiusStatusURL + "/summary")
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil || !json.Valid(body) {
		return nil
	}
	return body
}

// RecentSessions returns the latest session activity for the dashboard
// feed.
func (h *DashboardHandler) RecentSessions(c *fiber.Ctx) error {
	var sessions []models.Session
	if err := tenantScope(c, database.DB).
		Order("start_time DESC").Limit(10).
		Find(&sessions).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to fetch recent sessions",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    sessions,
	})
}
