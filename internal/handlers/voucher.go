package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/jazanet/backend/internal/database"
	"github.com/jazanet/backend/internal/models"
	"github.com/jazanet/backend/internal/radius"
)

// VoucherHandler manages hotspot vouchers. A voucher is a hotspot
// subscriber whose code doubles as username and password; guests type
// one string into the captive portal.
type VoucherHandler struct{}

func NewVoucherHandler() *VoucherHandler {
	return &VoucherHandler{}
}

func voucherCode(prefix string) string {
	code := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	if prefix != "" {
		return strings.ToUpper(prefix) + "-" + code
	}
	return code
}

// Generate creates a batch of voucher accounts
func (h *VoucherHandler) Generate(c *fiber.Ctx) error {
	type generateRequest struct {
		TenantID  uint   `json:"tenant_id"`
		PackageID uint   `json:"package_id"`
		Count     int    `json:"count"`
		Days      int    `json:"days"`
		Prefix    string `json:"prefix"`
	}

	var req generateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	if req.Count < 1 || req.Count > 1000 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Count must be between 1 and 1000",
		})
	}
	if req.Days < 1 {
		req.Days = 30
	}

	tenantID, err := resolveTenantID(c, req.TenantID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": err.Error(),
		})
	}

	if req.PackageID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "package_id is required",
		})
	}
	var pkg models.Package
	if err := database.DB.Where("tenant_id = ?", tenantID).First(&pkg, req.PackageID).Error; err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Package not found",
		})
	}

	batchID := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:12]
	expires := time.Now().AddDate(0, 0, req.Days)

	vouchers := make([]models.Subscriber, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		code := voucherCode(req.Prefix)
		vouchers = append(vouchers, models.Subscriber{
			TenantID:       tenantID,
			Username:       code,
			Password:       code,
			FullName:       "Voucher " + batchID,
			ConnectionType: models.ConnectionHotspot,
			Status:         models.SubscriberStatusActive,
			ExpiresAt:      expires,
			PackageID:      &pkg.ID,
		})
	}

	if err := database.DB.Create(&vouchers).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to generate vouchers",
		})
	}

	codes := make([]string, 0, len(vouchers))
	for _, v := range vouchers {
		codes = append(codes, v.Username)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"batch_id":   batchID,
			"package":    pkg.Name,
			"count":      len(codes),
			"expires_at": expires,
			"codes":      codes,
		},
	})
}

// Lock pins the voucher to the device it was last seen from. After
// this only that MAC passes authentication.
func (h *VoucherHandler) Lock(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid voucher ID",
		})
	}

	var sub models.Subscriber
	if err := tenantScope(c, database.DB).
		Where("connection_type = ?", models.ConnectionHotspot).
		First(&sub, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Voucher not found",
		})
	}

	if sub.LastSeenMAC == "" {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"success": false,
			"message": "Voucher has not been used yet, no device to lock to",
		})
	}

	if err := database.DB.Model(&sub).Update("locked_mac", sub.LastSeenMAC).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to lock voucher",
		})
	}

	radius.InvalidateSubscriberCache(database.Redis, sub.TenantID, sub.Username)

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Voucher locked to " + sub.LastSeenMAC,
	})
}

// Unlock releases the MAC lock so the voucher works from any device
// again.
func (h *VoucherHandler) Unlock(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid voucher ID",
		})
	}

	var sub models.Subscriber
	if err := tenantScope(c, database.DB).
		Where("connection_type = ?", models.ConnectionHotspot).
		First(&sub, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Voucher not found",
		})
	}

	if err := database.DB.Model(&sub).Update("locked_mac", "").Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to unlock voucher",
		})
	}

	radius.InvalidateSubscriberCache(database.Redis, sub.TenantID, sub.Username)

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Voucher unlocked",
	})
}
