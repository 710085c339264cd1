package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/jazanet/backend/internal/middleware"
)

// errNoTenant is returned when a platform admin creates a row without
// saying which tenant it belongs to.
var errNoTenant = errors.New("tenant_id is required")

// tenantScope narrows a query to the caller's tenant. Platform admins
// (nil tenant) see everything.
func tenantScope(c *fiber.Ctx, q *gorm.DB) *gorm.DB {
	if tid := middleware.CurrentTenantID(c); tid != nil {
		return q.Where("tenant_id = ?", *tid)
	}
	return q
}

// resolveTenantID decides which tenant a new row lands in. Tenant
// operators always write into their own tenant regardless of what the
// request claims; platform admins must name one.
func resolveTenantID(c *fiber.Ctx, requested uint) (uint, error) {
	if tid := middleware.CurrentTenantID(c); tid != nil {
		return *tid, nil
	}
	if requested == 0 {
		return 0, errNoTenant
	}
	return requested, nil
}
