package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/jazanet/backend/internal/database"
	"github.com/jazanet/backend/internal/models"
)

type NasHandler struct{}

func NewNasHandler() *NasHandler {
	return &NasHandler{}
}

type nasRequest struct {
	TenantID     uint   `json:"tenant_id"`
	Name         string `json:"name"`
	IPAddress    string `json:"ip_address"`
	VpnIPAddress string `json:"vpn_ip_address"`
	Description  string `json:"description"`
	Secret       string `json:"secret"`
	CoAPort      int    `json:"coa_port"`
}

// List returns the tenant's devices together with the number of live
// sessions each one is carrying.
func (h *NasHandler) List(c *fiber.Ctx) error {
	var devices []models.Nas
	if err := tenantScope(c, database.DB).Order("name").Find(&devices).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to load NAS devices",
		})
	}

	counts := map[uint]int64{}
	if len(devices) > 0 {
		ids := make([]uint, 0, len(devices))
		for _, d := range devices {
			ids = append(ids, d.ID)
		}
		var rows []struct {
			NasID uint
			N     int64
		}
		database.DB.Model(&models.Session{}).
			Select("nas_id, COUNT(*) as n").
			Where("nas_id IN ? AND stop_time IS NULL", ids).
			Group("nas_id").
			Scan(&rows)
		for _, r := range rows {
			counts[r.NasID] = r.N
		}
	}

	type nasView struct {
		models.Nas
		ActiveSessions int64 `json:"active_sessions"`
	}
	out := make([]nasView, 0, len(devices))
	for _, d := range devices {
		out = append(out, nasView{Nas: d, ActiveSessions: counts[d.ID]})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    out,
	})
}

func (h *NasHandler) Get(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid NAS ID",
		})
	}

	var nas models.Nas
	if err := tenantScope(c, database.DB).First(&nas, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "NAS not found",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    nas,
	})
}

func (h *NasHandler) Create(c *fiber.Ctx) error {
	var req nasRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	req.Name = strings.TrimSpace(req.Name)
	req.IPAddress = strings.TrimSpace(req.IPAddress)
	if req.Name == "" || req.IPAddress == "" || req.Secret == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Name, IP address and secret are required",
		})
	}

	tenantID, err := resolveTenantID(c, req.TenantID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": err.Error(),
		})
	}

	var existing int64
	database.DB.Model(&models.Nas{}).
		Where("tenant_id = ? AND ip_address = ?", tenantID, req.IPAddress).
		Count(&existing)
	if existing > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": "A NAS with this IP address already exists",
		})
	}

	nas := models.Nas{
		TenantID:     tenantID,
		Name:         req.Name,
		IPAddress:    req.IPAddress,
		VpnIPAddress: strings.TrimSpace(req.VpnIPAddress),
		Description:  req.Description,
		Secret:       req.Secret,
		CoAPort:      req.CoAPort,
		Status:       models.NasStatusPending,
	}
	if nas.CoAPort == 0 {
		nas.CoAPort = 3799
	}

	if err := database.DB.Create(&nas).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to create NAS",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    nas,
	})
}

// Update changes device settings. Secret changes take effect on the
// RADIUS side once its device cache entry expires, a few minutes at
// worst.
func (h *NasHandler) Update(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid NAS ID",
		})
	}

	var nas models.Nas
	if err := tenantScope(c, database.DB).First(&nas, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "NAS not found",
		})
	}

	var req nasRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	updates := map[string]interface{}{}
	if name := strings.TrimSpace(req.Name); name != "" {
		updates["name"] = name
	}
	if ip := strings.TrimSpace(req.IPAddress); ip != "" && ip != nas.IPAddress {
		var clash int64
		database.DB.Model(&models.Nas{}).
			Where("tenant_id = ? AND ip_address = ? AND id <> ?", nas.TenantID, ip, nas.ID).
			Count(&clash)
		if clash > 0 {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"success": false,
				"message": "A NAS with this IP address already exists",
			})
		}
		updates["ip_address"] = ip
	}
	if req.VpnIPAddress != "" {
		updates["vpn_ip_address"] = strings.TrimSpace(req.VpnIPAddress)
	}
	if req.Description != "" {
		updates["description"] = req.Description
	}
	if req.Secret != "" {
		updates["secret"] = req.Secret
	}
	if req.CoAPort > 0 {
		updates["coa_port"] = req.CoAPort
	}

	if len(updates) > 0 {
		if err := database.DB.Model(&nas).Updates(updates).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"message": "Failed to update NAS",
			})
		}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    nas,
	})
}

// Delete removes a device. Devices still carrying live sessions are
// refused; stop or sweep them first.
func (h *NasHandler) Delete(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid NAS ID",
		})
	}

	var nas models.Nas
	if err := tenantScope(c, database.DB).First(&nas, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "NAS not found",
		})
	}

	var live int64
	database.DB.Model(&models.Session{}).
		Where("nas_id = ? AND stop_time IS NULL", nas.ID).
		Count(&live)
	if live > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": "NAS has active sessions",
		})
	}

	if err := database.DB.Delete(&nas).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to delete NAS",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "NAS deleted",
	})
}
