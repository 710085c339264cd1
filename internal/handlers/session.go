package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/jazanet/backend/internal/database"
	"github.com/jazanet/backend/internal/models"
)

type SessionHandler struct{}

func NewSessionHandler() *SessionHandler {
	return &SessionHandler{}
}

// List returns live sessions, newest first
func (h *SessionHandler) List(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "25"))
	search := c.Query("search", "")

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 25
	}
	offset := (page - 1) * limit

	query := tenantScope(c, database.DB.Model(&models.Session{})).
		Where("stop_time IS NULL")

	if search != "" {
		pattern := "%" + search + "%"
		query = query.Where("username ILIKE ? OR framed_ip ILIKE ? OR calling_station_id ILIKE ?",
			pattern, pattern, pattern)
	}

	var total int64
	query.Count(&total)

	var sessions []models.Session
	if err := query.Preload("Nas").
		Order("start_time DESC").
		Offset(offset).Limit(limit).
		Find(&sessions).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to fetch sessions",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    sessions,
		"meta": fiber.Map{
			"page":       page,
			"limit":      limit,
			"total":      total,
			"totalPages": (total + int64(limit) - 1) / int64(limit),
		},
	})
}

// History returns finished sessions, optionally narrowed to a username
// or a time window.
func (h *SessionHandler) History(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "25"))
	username := c.Query("username", "")

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 25
	}
	offset := (page - 1) * limit

	query := tenantScope(c, database.DB.Model(&models.Session{})).
		Where("stop_time IS NOT NULL")

	if username != "" {
		query = query.Where("username = ?", username)
	}
	if from := c.Query("from", ""); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			query = query.Where("start_time >= ?", t)
		}
	}
	if to := c.Query("to", ""); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			query = query.Where("start_time <= ?", t)
		}
	}

	var total int64
	query.Count(&total)

	var sessions []models.Session
	if err := query.Preload("Nas").
		Order("stop_time DESC").
		Offset(offset).Limit(limit).
		Find(&sessions).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to fetch session history",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    sessions,
		"meta": fiber.Map{
			"page":       page,
			"limit":      limit,
			"total":      total,
			"totalPages": (total + int64(limit) - 1) / int64(limit),
		},
	})
}

func (h *SessionHandler) Get(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid session ID",
		})
	}

	var session models.Session
	if err := tenantScope(c, database.DB).Preload("Nas").Preload("Subscriber").First(&session, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Session not found",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    session,
	})
}
