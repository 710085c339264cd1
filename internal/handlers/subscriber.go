package handlers

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/jazanet/backend/internal/database"
	"github.com/jazanet/backend/internal/models"
	"github.com/jazanet/backend/internal/radius"
	"github.com/jazanet/backend/internal/store"
)

type SubscriberHandler struct {
	coa *radius.CoAClient
}

func NewSubscriberHandler(coa *radius.CoAClient) *SubscriberHandler {
	return &SubscriberHandler{coa: coa}
}

func validSubscriberStatus(s string) bool {
	switch models.SubscriberStatus(s) {
	case models.SubscriberStatusActive, models.SubscriberStatusSuspended,
		models.SubscriberStatusDisabled, models.SubscriberStatusExpired:
		return true
	}
	return false
}

func validConnectionType(s string) bool {
	switch models.ConnectionType(s) {
	case models.ConnectionPPPoE, models.ConnectionHotspot,
		models.ConnectionDHCP, models.ConnectionStatic:
		return true
	}
	return false
}

// invalidate drops the RADIUS credential cache entry so the next
// Access-Request sees this change instead of the cached row.
func (h *SubscriberHandler) invalidate(tenantID uint, username string) {
	radius.InvalidateSubscriberCache(database.Redis, tenantID, username)
}

func (h *SubscriberHandler) List(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "25"))
	search := c.Query("search", "")
	status := c.Query("status", "")
	connection := c.Query("connection", "")
	online := c.Query("online", "")
	sortBy := c.Query("sort_by", "created_at")
	sortDir := c.Query("sort_dir", "desc")

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 25
	}
	offset := (page - 1) * limit

	query := tenantScope(c, database.DB.Model(&models.Subscriber{}))

	if search != "" {
		pattern := "%" + search + "%"
		query = query.Where(
			"username ILIKE ? OR full_name ILIKE ? OR phone ILIKE ? OR email ILIKE ?",
			pattern, pattern, pattern, pattern,
		)
	}

	if status != "" {
		switch strings.ToLower(status) {
		case "active":
			query = query.Where("status = ?", models.SubscriberStatusActive)
		case "suspended":
			query = query.Where("status = ?", models.SubscriberStatusSuspended)
		case "disabled":
			query = query.Where("status = ?", models.SubscriberStatusDisabled)
		case "expired":
			query = query.Where("expires_at < ?", time.Now())
		case "expiring":
			query = query.Where("expires_at BETWEEN ? AND ?", time.Now(), time.Now().AddDate(0, 0, 7))
		}
	}

	if connection != "" && validConnectionType(strings.ToUpper(connection)) {
		query = query.Where("connection_type = ?", strings.ToUpper(connection))
	}

	if online != "" {
		query = query.Where("is_online = ?", online == "true" || online == "1")
	}

	var total int64
	query.Count(&total)

	allowedSort := map[string]bool{
		"username": true, "full_name": true, "created_at": true,
		"expires_at": true, "is_online": true, "last_seen_at": true,
	}
	if !allowedSort[sortBy] {
		sortBy = "created_at"
	}
	if sortDir != "asc" && sortDir != "desc" {
		sortDir = "desc"
	}

	var subscribers []models.Subscriber
	if err := query.Preload("Package").
		Order(fmt.Sprintf("%s %s", sortBy, sortDir)).
		Offset(offset).Limit(limit).
		Find(&subscribers).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to fetch subscribers",
		})
	}

	var stats struct {
		Total   int64 `json:"total"`
		Online  int64 `json:"online"`
		Active  int64 `json:"active"`
		Expired int64 `json:"expired"`
	}
	tenantScope(c, database.DB.Model(&models.Subscriber{})).Count(&stats.Total)
	tenantScope(c, database.DB.Model(&models.Subscriber{})).Where("is_online = ?", true).Count(&stats.Online)
	tenantScope(c, database.DB.Model(&models.Subscriber{})).Where("status = ?", models.SubscriberStatusActive).Count(&stats.Active)
	tenantScope(c, database.DB.Model(&models.Subscriber{})).Where("expires_at < ?", time.Now()).Count(&stats.Expired)

	return c.JSON(fiber.Map{
		"success": true,
		"data":    subscribers,
		"meta": fiber.Map{
			"page":       page,
			"limit":      limit,
			"total":      total,
			"totalPages": (total + int64(limit) - 1) / int64(limit),
		},
		"stats": stats,
	})
}

func (h *SubscriberHandler) Get(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid subscriber ID",
		})
	}

	var sub models.Subscriber
	if err := tenantScope(c, database.DB).Preload("Package").Preload("Nas").First(&sub, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Subscriber not found",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    sub,
	})
}

type subscriberCreateRequest struct {
	TenantID       uint      `json:"tenant_id"`
	Username       string    `json:"username"`
	Password       string    `json:"password"`
	FullName       string    `json:"full_name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone"`
	ConnectionType string    `json:"connection_type"`
	Status         string    `json:"status"`
	ExpiresAt      time.Time `json:"expires_at"`
	PackageID      *uint     `json:"package_id"`
	NasID          *uint     `json:"nas_id"`
}

func (h *SubscriberHandler) Create(c *fiber.Ctx) error {
	var req subscriberCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Username and password are required",
		})
	}

	tenantID, err := resolveTenantID(c, req.TenantID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": err.Error(),
		})
	}

	connType := models.ConnectionPPPoE
	if req.ConnectionType != "" {
		up := strings.ToUpper(req.ConnectionType)
		if !validConnectionType(up) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "Invalid connection type",
			})
		}
		connType = models.ConnectionType(up)
	}

	status := models.SubscriberStatusActive
	if req.Status != "" {
		up := strings.ToUpper(req.Status)
		if !validSubscriberStatus(up) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "Invalid status",
			})
		}
		status = models.SubscriberStatus(up)
	}

	var existing int64
	database.DB.Model(&models.Subscriber{}).
		Where("tenant_id = ? AND username = ?", tenantID, req.Username).
		Count(&existing)
	if existing > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": "Username already exists",
		})
	}

	if req.PackageID != nil {
		var pkg models.Package
		if err := database.DB.Where("tenant_id = ?", tenantID).First(&pkg, *req.PackageID).Error; err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "Package not found",
			})
		}
	}

	sub := models.Subscriber{
		TenantID:       tenantID,
		Username:       req.Username,
		Password:       req.Password,
		FullName:       req.FullName,
		Email:          req.Email,
		Phone:          req.Phone,
		ConnectionType: connType,
		Status:         status,
		ExpiresAt:      req.ExpiresAt,
		PackageID:      req.PackageID,
		NasID:          req.NasID,
	}

	if err := database.DB.Create(&sub).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to create subscriber",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    sub,
	})
}

type subscriberUpdateRequest struct {
	Password       string     `json:"password"`
	FullName       *string    `json:"full_name"`
	Email          *string    `json:"email"`
	Phone          *string    `json:"phone"`
	ConnectionType string     `json:"connection_type"`
	Status         string     `json:"status"`
	ExpiresAt      *time.Time `json:"expires_at"`
	PackageID      *uint      `json:"package_id"`
	NasID          *uint      `json:"nas_id"`
	LockedMAC      *string    `json:"locked_mac"`
}

func (h *SubscriberHandler) Update(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid subscriber ID",
		})
	}

	var sub models.Subscriber
	if err := tenantScope(c, database.DB).First(&sub, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Subscriber not found",
		})
	}

	var req subscriberUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	updates := map[string]interface{}{}
	if req.Password != "" {
		updates["password"] = req.Password
	}
	if req.FullName != nil {
		updates["full_name"] = *req.FullName
	}
	if req.Email != nil {
		updates["email"] = *req.Email
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	if req.ConnectionType != "" {
		up := strings.ToUpper(req.ConnectionType)
		if !validConnectionType(up) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "Invalid connection type",
			})
		}
		updates["connection_type"] = up
	}
	if req.Status != "" {
		up := strings.ToUpper(req.Status)
		if !validSubscriberStatus(up) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "Invalid status",
			})
		}
		updates["status"] = up
	}
	if req.ExpiresAt != nil {
		updates["expires_at"] = *req.ExpiresAt
	}
	if req.PackageID != nil {
		if *req.PackageID == 0 {
			updates["package_id"] = nil
		} else {
			var pkg models.Package
			if err := database.DB.Where("tenant_id = ?", sub.TenantID).First(&pkg, *req.PackageID).Error; err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"success": false,
					"message": "Package not found",
				})
			}
			updates["package_id"] = *req.PackageID
		}
	}
	if req.NasID != nil {
		if *req.NasID == 0 {
			updates["nas_id"] = nil
		} else {
			updates["nas_id"] = *req.NasID
		}
	}
	if req.LockedMAC != nil {
		updates["locked_mac"] = strings.ToUpper(strings.TrimSpace(*req.LockedMAC))
	}

	if len(updates) > 0 {
		if err := database.DB.Model(&sub).Updates(updates).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"message": "Failed to update subscriber",
			})
		}
		h.invalidate(sub.TenantID, sub.Username)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    sub,
	})
}

func (h *SubscriberHandler) Delete(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid subscriber ID",
		})
	}

	var sub models.Subscriber
	if err := tenantScope(c, database.DB).First(&sub, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Subscriber not found",
		})
	}

	if err := database.DB.Delete(&sub).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to delete subscriber",
		})
	}

	h.invalidate(sub.TenantID, sub.Username)

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Subscriber deleted",
	})
}

type renewRequest struct {
	Days int `json:"days"`
}

// Renew extends the subscription. The extension runs from the current
// expiry when it is still in the future, from now when it has lapsed,
// and flips the account back to active either way.
func (h *SubscriberHandler) Renew(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid subscriber ID",
		})
	}

	var sub models.Subscriber
	if err := tenantScope(c, database.DB).First(&sub, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Subscriber not found",
		})
	}

	var req renewRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}
	if req.Days <= 0 {
		req.Days = 30
	}

	base := time.Now()
	if sub.ExpiresAt.After(base) {
		base = sub.ExpiresAt
	}
	expires := base.AddDate(0, 0, req.Days)

	if err := database.DB.Model(&sub).Updates(map[string]interface{}{
		"expires_at": expires,
		"status":     models.SubscriberStatusActive,
	}).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to renew subscriber",
		})
	}

	h.invalidate(sub.TenantID, sub.Username)

	sub.ExpiresAt = expires
	sub.Status = models.SubscriberStatusActive
	return c.JSON(fiber.Map{
		"success": true,
		"data":    sub,
	})
}

// Disconnect kicks every live session of the subscriber off the NAS
// with RFC 5176 Disconnect-Requests.
func (h *SubscriberHandler) Disconnect(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid subscriber ID",
		})
	}

	var sub models.Subscriber
	if err := tenantScope(c, database.DB).First(&sub, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Subscriber not found",
		})
	}

	results, err := h.coa.DisconnectSubscriber(c.Context(), store.New(database.DB), sub.TenantID, sub.Username)
	if err != nil {
		if errors.Is(err, radius.ErrNoActiveSessions) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"message": "Subscriber has no active sessions",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Disconnect failed",
		})
	}

	ok := 0
	out := make([]fiber.Map, 0, len(results))
	for _, r := range results {
		if r.OK() {
			ok++
		}
		out = append(out, fiber.Map{
			"status":      r.Status.String(),
			"message":     r.Message,
			"error_cause": r.ErrorCause,
		})
	}

	msg := "User disconnected"
	if ok < len(results) {
		msg = fmt.Sprintf("%d of %d sessions disconnected", ok, len(results))
	}

	return c.JSON(fiber.Map{
		"success": ok > 0,
		"message": msg,
		"data":    out,
	})
}

// Sessions lists the subscriber's recent accounting sessions
func (h *SubscriberHandler) Sessions(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid subscriber ID",
		})
	}

	var sub models.Subscriber
	if err := tenantScope(c, database.DB).First(&sub, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Subscriber not found",
		})
	}

	var sessions []models.Session
	if err := database.DB.
		Where("tenant_id = ? AND username = ?", sub.TenantID, sub.Username).
		Order("start_time DESC").Limit(20).
		Find(&sessions).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to fetch sessions",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    sessions,
	})
}
