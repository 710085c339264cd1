package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/jazanet/backend/internal/database"
	"github.com/jazanet/backend/internal/models"
)

// TenantHandler manages tenants. Routes using it sit behind AdminOnly;
// tenant operators never see other tenants, let alone manage them.
type TenantHandler struct{}

func NewTenantHandler() *TenantHandler {
	return &TenantHandler{}
}

func (h *TenantHandler) List(c *fiber.Ctx) error {
	var tenants []models.Tenant
	if err := database.DB.Order("name").Find(&tenants).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to load tenants",
		})
	}

	type tenantView struct {
		models.Tenant
		Subscribers int64 `json:"subscribers"`
		NasDevices  int64 `json:"nas_devices"`
	}
	out := make([]tenantView, 0, len(tenants))
	for _, t := range tenants {
		v := tenantView{Tenant: t}
		database.DB.Model(&models.Subscriber{}).Where("tenant_id = ?", t.ID).Count(&v.Subscribers)
		database.DB.Model(&models.Nas{}).Where("tenant_id = ?", t.ID).Count(&v.NasDevices)
		out = append(out, v)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    out,
	})
}

type tenantRequest struct {
	Name     string `json:"name"`
	IsActive *bool  `json:"is_active"`
}

func (h *TenantHandler) Create(c *fiber.Ctx) error {
	var req tenantRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Name is required",
		})
	}

	var existing int64
	database.DB.Model(&models.Tenant{}).Where("name = ?", req.Name).Count(&existing)
	if existing > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": "A tenant with this name already exists",
		})
	}

	tenant := models.Tenant{Name: req.Name, IsActive: true}
	if err := database.DB.Create(&tenant).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to create tenant",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    tenant,
	})
}

func (h *TenantHandler) Update(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid tenant ID",
		})
	}

	var tenant models.Tenant
	if err := database.DB.First(&tenant, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Tenant not found",
		})
	}

	var req tenantRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	updates := map[string]interface{}{}
	if name := strings.TrimSpace(req.Name); name != "" && name != tenant.Name {
		var clash int64
		database.DB.Model(&models.Tenant{}).
			Where("name = ? AND id <> ?", name, tenant.ID).
			Count(&clash)
		if clash > 0 {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"success": false,
				"message": "A tenant with this name already exists",
			})
		}
		updates["name"] = name
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}

	if len(updates) > 0 {
		if err := database.DB.Model(&tenant).Updates(updates).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"message": "Failed to update tenant",
			})
		}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    tenant,
	})
}

// Delete removes an empty tenant. Tenants still holding subscribers or
// devices are refused rather than cascading.
func (h *TenantHandler) Delete(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid tenant ID",
		})
	}

	var tenant models.Tenant
	if err := database.DB.First(&tenant, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Tenant not found",
		})
	}

	var subscribers, devices int64
	database.DB.Model(&models.Subscriber{}).Where("tenant_id = ?", tenant.ID).Count(&subscribers)
	database.DB.Model(&models.Nas{}).Where("tenant_id = ?", tenant.ID).Count(&devices)
	if subscribers > 0 || devices > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": "Tenant still has subscribers or NAS devices",
		})
	}

	if err := database.DB.Delete(&tenant).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to delete tenant",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Tenant deleted",
	})
}
