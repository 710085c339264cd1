package handlers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/jazanet/backend/internal/database"
	"github.com/jazanet/backend/internal/middleware"
	"github.com/jazanet/backend/internal/models"
	"github.com/jazanet/backend/internal/radius"
)

type PackageHandler struct{}

func NewPackageHandler() *PackageHandler {
	return &PackageHandler{}
}

type packageRequest struct {
	TenantID          uint    `json:"tenant_id"`
	Name              string  `json:"name"`
	Description       string  `json:"description"`
	DownloadMbps      int     `json:"download_mbps"`
	UploadMbps        int     `json:"upload_mbps"`
	BurstDownloadMbps int     `json:"burst_download_mbps"`
	BurstUploadMbps   int     `json:"burst_upload_mbps"`
	SessionMinutes    int     `json:"session_minutes"`
	DataCapBytes      int64   `json:"data_cap_bytes"`
	Price             float64 `json:"price"`
}

func packagesListKey(tenantID uint) string {
	return fmt.Sprintf("%s%d:list", database.CacheKeyPackages, tenantID)
}

// List returns the tenant's plans. Tenant-scoped lists are served from
// Redis for a couple of minutes; platform admins always hit the
// database since their view spans tenants.
func (h *PackageHandler) List(c *fiber.Ctx) error {
	tid := middleware.CurrentTenantID(c)

	if tid != nil {
		var cached []models.Package
		if err := database.CacheGet(packagesListKey(*tid), &cached); err == nil {
			return c.JSON(fiber.Map{
				"success": true,
				"data":    cached,
				"cached":  true,
			})
		}
	}

	var packages []models.Package
	if err := tenantScope(c, database.DB).Order("name").Find(&packages).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to load packages",
		})
	}

	if tid != nil {
		database.CacheSet(packagesListKey(*tid), packages, database.CacheTTLPackages)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    packages,
	})
}

func (h *PackageHandler) Get(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid package ID",
		})
	}

	var pkg models.Package
	if err := tenantScope(c, database.DB).First(&pkg, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Package not found",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    pkg,
	})
}

func (h *PackageHandler) Create(c *fiber.Ctx) error {
	var req packageRequest
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
	if req.DownloadMbps <= 0 || req.UploadMbps <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Download and upload rates must be positive",
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
	database.DB.Model(&models.Package{}).
		Where("tenant_id = ? AND name = ?", tenantID, req.Name).
		Count(&existing)
	if existing > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": "A package with this name already exists",
		})
	}

	pkg := models.Package{
		TenantID:          tenantID,
		Name:              req.Name,
		Description:       req.Description,
		DownloadMbps:      req.DownloadMbps,
		UploadMbps:        req.UploadMbps,
		BurstDownloadMbps: req.BurstDownloadMbps,
		BurstUploadMbps:   req.BurstUploadMbps,
		SessionMinutes:    req.SessionMinutes,
		DataCapBytes:      req.DataCapBytes,
		Price:             req.Price,
	}

	if err := database.DB.Create(&pkg).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to create package",
		})
	}

	database.InvalidatePackagesCache(tenantID)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    pkg,
	})
}

// Update changes a plan. Cached subscriber entries of the whole tenant
// are dropped because any of them may embed this plan's limits.
func (h *PackageHandler) Update(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid package ID",
		})
	}

	var pkg models.Package
	if err := tenantScope(c, database.DB).First(&pkg, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Package not found",
		})
	}

	var req struct {
		Name              string   `json:"name"`
		Description       *string  `json:"description"`
		DownloadMbps      *int     `json:"download_mbps"`
		UploadMbps        *int     `json:"upload_mbps"`
		BurstDownloadMbps *int     `json:"burst_download_mbps"`
		BurstUploadMbps   *int     `json:"burst_upload_mbps"`
		SessionMinutes    *int     `json:"session_minutes"`
		DataCapBytes      *int64   `json:"data_cap_bytes"`
		Price             *float64 `json:"price"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	updates := map[string]interface{}{}
	if name := strings.TrimSpace(req.Name); name != "" && name != pkg.Name {
		var clash int64
		database.DB.Model(&models.Package{}).
			Where("tenant_id = ? AND name = ? AND id <> ?", pkg.TenantID, name, pkg.ID).
			Count(&clash)
		if clash > 0 {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"success": false,
				"message": "A package with this name already exists",
			})
		}
		updates["name"] = name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.DownloadMbps != nil && *req.DownloadMbps > 0 {
		updates["download_mbps"] = *req.DownloadMbps
	}
	if req.UploadMbps != nil && *req.UploadMbps > 0 {
		updates["upload_mbps"] = *req.UploadMbps
	}
	if req.BurstDownloadMbps != nil {
		updates["burst_download_mbps"] = *req.BurstDownloadMbps
	}
	if req.BurstUploadMbps != nil {
		updates["burst_upload_mbps"] = *req.BurstUploadMbps
	}
	if req.SessionMinutes != nil {
		updates["session_minutes"] = *req.SessionMinutes
	}
	if req.DataCapBytes != nil {
		updates["data_cap_bytes"] = *req.DataCapBytes
	}
	if req.Price != nil {
		updates["price"] = *req.Price
	}

	if len(updates) > 0 {
		if err := database.DB.Model(&pkg).Updates(updates).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"message": "Failed to update package",
			})
		}
		database.InvalidatePackagesCache(pkg.TenantID)
		radius.InvalidateTenantSubscribers(database.Redis, pkg.TenantID)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    pkg,
	})
}

func (h *PackageHandler) Delete(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid package ID",
		})
	}

	var pkg models.Package
	if err := tenantScope(c, database.DB).First(&pkg, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Package not found",
		})
	}

	var inUse int64
	database.DB.Model(&models.Subscriber{}).
		Where("package_id = ?", pkg.ID).
		Count(&inUse)
	if inUse > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": fmt.Sprintf("Package is assigned to %d subscribers", inUse),
		})
	}

	if err := database.DB.Delete(&pkg).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to delete package",
		})
	}

	database.InvalidatePackagesCache(pkg.TenantID)

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Package deleted",
	})
}
